package game

import (
	"sort"

	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// finish records player as finished and ends the game once everyone is.
func (e *Engine) finish(s *snapshot, player string) {
	if !s.isFinished(player) {
		s.finished = append(s.finished, player)
		s.touch(storage.TypeFinishedPlayers)
		order := len(s.finished)
		s.later(func() {
			e.emit("info", "game.finished", "", map[string]interface{}{
				"player":       player,
				"finish_order": order,
			})
		})
	}
	e.recomputeEnded(s)
}

// recomputeEnded sets GameEnded when every player has finished. The flag
// only ever goes from false to true.
func (e *Engine) recomputeEnded(s *snapshot) bool {
	if s.progress.GameEnded || len(s.finished) != len(s.progress.Players) {
		return false
	}
	s.progress.GameEnded = true
	rankings := rank(s, e.rules.DayValue)
	s.later(func() {
		e.emit("info", "game.ended", "", map[string]interface{}{
			"finished": append([]string(nil), s.finished...),
			"winner":   rankings[0].Player,
		})
	})
	return true
}

// Rankings orders players for the end-of-game table: finished players first,
// then by score, then by who finished first.
func (e *Engine) Rankings() ([]Ranking, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.load()
	if err != nil {
		return nil, userErr("rankings", err)
	}
	return rank(s, e.rules.DayValue), nil
}

func rank(s *snapshot, dayValue int) []Ranking {
	out := make([]Ranking, 0, len(s.progress.Players))
	for _, p := range s.progress.Players {
		r := Ranking{
			Player: p,
			Score:  Score(s.progress.PlayerStates[p], dayValue),
		}
		if i := indexOf(s.finished, p); i >= 0 {
			r.Finished = true
			r.FinishOrder = i + 1
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.FinishOrder < b.FinishOrder
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
