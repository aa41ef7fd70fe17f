package game

import (
	"github.com/AaronLay10/ProjectBoard/internal/board"
	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
)

// TurnStage is where a player is within a turn.
type TurnStage string

const (
	StageWaiting      TurnStage = "waiting"
	StageAwaitingRoll TurnStage = "awaiting_roll"
	StageRolled       TurnStage = "rolled"
	StageReady        TurnStage = "ready"
	StageMoveSelected TurnStage = "move_selected"
	StageFinished     TurnStage = "finished"
)

// RollState is the dice bookkeeping of the current turn.
// HasRolled is true exactly when RollsCompleted >= RollsRequired.
type RollState struct {
	HasRolled      bool  `json:"has_rolled"`
	Rolls          []int `json:"rolls"`
	RollsRequired  int   `json:"rolls_required"`
	RollsCompleted int   `json:"rolls_completed"`
}

func newRollState(required int) RollState {
	return RollState{HasRolled: required == 0, Rolls: []int{}, RollsRequired: required}
}

func (r RollState) add(value int) RollState {
	r.Rolls = append(append([]int(nil), r.Rolls...), value)
	r.RollsCompleted++
	r.HasRolled = r.RollsCompleted >= r.RollsRequired
	return r
}

// ProgressState is the authoritative session snapshot.
type ProgressState struct {
	Players       []string                     `json:"players"`
	MainPath      []string                     `json:"main_path"`
	ValidSpaces   []string                     `json:"valid_spaces"`
	Positions     map[string]string            `json:"positions"`
	CurrentPlayer int                          `json:"current_player"`
	Roll          RollState                    `json:"roll"`
	Selected      map[string]string            `json:"selected,omitempty"`
	PlayerStates  map[string]outcome.Resources `json:"player_states"`
	GameEnded     bool                         `json:"game_ended"`
	Timestamp     int64                        `json:"timestamp"`
}

// Current returns the name of the player whose turn it is.
func (p *ProgressState) Current() string {
	if p.CurrentPlayer < 0 || p.CurrentPlayer >= len(p.Players) {
		return ""
	}
	return p.Players[p.CurrentPlayer]
}

func (p *ProgressState) hasPlayer(name string) bool {
	return indexOf(p.Players, name) >= 0
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// VisitHistory counts completed visits per player and space.
type VisitHistory map[string]int

// visitKeySep joins player and space in a VisitHistory key. Player names
// may not contain it.
const visitKeySep = "|"

func visitKey(player, space string) string {
	return player + visitKeySep + space
}

// Count returns how many times player has completed a turn at space.
func (v VisitHistory) Count(player, space string) int {
	return v[visitKey(player, space)]
}

// VisitType returns the content variant player sees at space.
func (v VisitHistory) VisitType(player, space string) board.VisitType {
	return board.VisitTypeFor(v.Count(player, space))
}

// CardAction is one entry of the append-only card history.
type CardAction struct {
	Action    string     `json:"action"` // drawn | played | discarded | returned
	Player    string     `json:"player"`
	ID        string     `json:"id"`
	CardID    string     `json:"card_id"`
	Type      cards.Type `json:"type"`
	Space     string     `json:"space"`
	Timestamp int64      `json:"timestamp"`
}

// Card dispositions.
const (
	ActionDrawn     = "drawn"
	ActionPlayed    = "played"
	ActionDiscarded = "discarded"
	ActionReturned  = "returned"
)

// StagedCard is a card leaving a hand this turn.
type StagedCard struct {
	Card        cards.Card `json:"card"`
	Disposition string     `json:"disposition"`
}

// TemporaryState holds one player's uncommitted changes for the current turn.
// It lives in memory only and is merged into ProgressState on commit.
type TemporaryState struct {
	Delta   outcome.Resources `json:"delta"`
	Rolls   []int             `json:"rolls,omitempty"`
	Drawn   []cards.Card      `json:"drawn,omitempty"`
	Removed []StagedCard      `json:"removed,omitempty"`
	History []CardAction      `json:"history,omitempty"`
	Notes   []string          `json:"notes,omitempty"`
}

func (t *TemporaryState) clone() *TemporaryState {
	if t == nil {
		return &TemporaryState{}
	}
	return &TemporaryState{
		Delta:   t.Delta,
		Rolls:   append([]int(nil), t.Rolls...),
		Drawn:   append([]cards.Card(nil), t.Drawn...),
		Removed: append([]StagedCard(nil), t.Removed...),
		History: append([]CardAction(nil), t.History...),
		Notes:   append([]string(nil), t.Notes...),
	}
}

// Empty reports whether nothing is staged.
func (t *TemporaryState) Empty() bool {
	return t == nil || (t.Delta.IsZero() && len(t.Rolls) == 0 && len(t.Drawn) == 0 && len(t.Removed) == 0 && len(t.Notes) == 0)
}

func (t *TemporaryState) drawn(id string) (int, bool) {
	for i, c := range t.Drawn {
		if c.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (t *TemporaryState) removed(id string) bool {
	for _, s := range t.Removed {
		if s.Card.ID == id {
			return true
		}
	}
	return false
}

// count returns the staged actions of kind on family ct.
func (t *TemporaryState) count(action string, ct cards.Type) int {
	n := 0
	switch action {
	case "draw":
		for _, c := range t.Drawn {
			if c.Type == ct {
				n++
			}
		}
		for _, s := range t.Removed {
			// drawn and played in the same turn still counts as drawn
			if s.Card.Type == ct && containsAction(t.History, s.Card.ID, ActionDrawn) {
				n++
			}
		}
	case "remove":
		for _, s := range t.Removed {
			if s.Card.Type == ct {
				n++
			}
		}
	case "return":
		for _, s := range t.Removed {
			if s.Card.Type == ct && s.Disposition == ActionReturned {
				n++
			}
		}
	}
	return n
}

func containsAction(history []CardAction, id, action string) bool {
	for _, h := range history {
		if h.ID == id && h.Action == action {
			return true
		}
	}
	return false
}

// Score is money less debt less the value of elapsed days.
func Score(r outcome.Resources, dayValue int) int {
	return r.Money - r.Debt - r.Time*dayValue
}

// Ranking is one line of the end-of-game table.
type Ranking struct {
	Rank        int    `json:"rank"`
	Player      string `json:"player"`
	Finished    bool   `json:"finished"`
	Score       int    `json:"score"`
	FinishOrder int    `json:"finish_order,omitempty"`
}

// PlayerView is the read model of one player for the presentation layer.
type PlayerView struct {
	Name      string            `json:"name"`
	Position  string            `json:"position"`
	Phase     string            `json:"phase"`
	VisitType board.VisitType   `json:"visit_type"`
	Stage     TurnStage         `json:"stage"`
	Resources outcome.Resources `json:"resources"`
	Staged    *TemporaryState   `json:"staged,omitempty"`
	Selected  string            `json:"selected,omitempty"`
	Moves     []string          `json:"moves"`
}

// View is the full read model.
type View struct {
	Progress ProgressState  `json:"progress"`
	Current  string         `json:"current"`
	Roll     RollState      `json:"roll"`
	Finished []string       `json:"finished"`
	Players  []PlayerView   `json:"players"`
	Scores   map[string]int `json:"scores"`
}
