package game

import (
	"time"

	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// snapshot is one read of every game record. Actions mutate a snapshot and
// save the records they touched in a single batch.
type snapshot struct {
	players  []string
	progress ProgressState
	visits   VisitHistory
	hands    cards.Collections
	history  []CardAction
	finished []string
	scores   map[string]int

	dirty     map[string]bool
	committed map[string]bool
	after     []func()
}

// recordOrder fixes the batch order so backends see a stable write sequence.
var recordOrder = []string{
	storage.TypePlayers,
	storage.TypeProgressState,
	storage.TypeVisitHistory,
	storage.TypePlayerCards,
	storage.TypeCardHistory,
	storage.TypeFinishedPlayers,
	storage.TypeScores,
}

func (e *Engine) load() (*snapshot, error) {
	s := &snapshot{dirty: make(map[string]bool), committed: make(map[string]bool)}
	if !e.store.Load(storage.TypeProgressState, &s.progress) {
		return nil, ErrNoGame
	}
	if !e.store.Load(storage.TypePlayers, &s.players) {
		s.players = append([]string(nil), s.progress.Players...)
	}
	e.store.Load(storage.TypeVisitHistory, &s.visits)
	e.store.Load(storage.TypePlayerCards, &s.hands)
	e.store.Load(storage.TypeCardHistory, &s.history)
	e.store.Load(storage.TypeFinishedPlayers, &s.finished)
	e.store.Load(storage.TypeScores, &s.scores)

	if s.visits == nil {
		s.visits = VisitHistory{}
	}
	if s.hands == nil {
		s.hands = cards.Collections{}
	}
	if s.scores == nil {
		s.scores = map[string]int{}
	}
	if s.progress.Positions == nil {
		s.progress.Positions = map[string]string{}
	}
	if s.progress.PlayerStates == nil {
		s.progress.PlayerStates = map[string]outcome.Resources{}
	}
	if s.progress.Selected == nil {
		s.progress.Selected = map[string]string{}
	}
	return s, nil
}

func (s *snapshot) touch(types ...string) {
	for _, t := range types {
		s.dirty[t] = true
	}
}

func (s *snapshot) later(fn func()) {
	s.after = append(s.after, fn)
}

func (s *snapshot) isFinished(player string) bool {
	return indexOf(s.finished, player) >= 0
}

func (s *snapshot) records() []storage.Record {
	s.dirty[storage.TypeProgressState] = true
	var out []storage.Record
	for _, t := range recordOrder {
		if !s.dirty[t] {
			continue
		}
		var v interface{}
		switch t {
		case storage.TypePlayers:
			v = s.players
		case storage.TypeProgressState:
			v = s.progress
		case storage.TypeVisitHistory:
			v = s.visits
		case storage.TypePlayerCards:
			v = s.hands
		case storage.TypeCardHistory:
			v = s.history
		case storage.TypeFinishedPlayers:
			v = s.finished
		case storage.TypeScores:
			v = s.scores
		}
		out = append(out, storage.Record{Type: t, Value: v})
	}
	return out
}

// stamp bumps the snapshot timestamp, keeping it strictly increasing.
func (s *snapshot) stamp() {
	now := time.Now().UnixMilli()
	if now <= s.progress.Timestamp {
		now = s.progress.Timestamp + 1
	}
	s.progress.Timestamp = now
}
