package board

import "strings"

// VisitType selects which content variant of a space applies.
type VisitType string

const (
	VisitFirst      VisitType = "First"
	VisitSubsequent VisitType = "Subsequent"
)

// ParseVisitType accepts "First"/"Subsequent" in any case; blank means First.
func ParseVisitType(s string) (VisitType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return VisitFirst, true
	case "subsequent":
		return VisitSubsequent, true
	}
	return "", false
}

// VisitTypeFor returns First for a zero visit count and Subsequent otherwise.
func VisitTypeFor(visits int) VisitType {
	if visits == 0 {
		return VisitFirst
	}
	return VisitSubsequent
}

// Fee is a space's entry fee: a fixed amount or a percentage of scope.
type Fee struct {
	Amount  int  `json:"amount"`
	Percent bool `json:"percent,omitempty"`
}

// CardRequirement is a card action a player must stage before ending a turn.
type CardRequirement struct {
	CardType string `json:"card_type"`
	Action   string `json:"action"` // draw | remove | return
	Count    int    `json:"count"`
}

// SpaceVisit is one row of the spaces dataset.
type SpaceVisit struct {
	VisitType        VisitType         `json:"visit_type"`
	Event            string            `json:"event,omitempty"`
	Action           string            `json:"action,omitempty"`
	Outcome          string            `json:"outcome,omitempty"`
	Time             int               `json:"time"`
	Fee              Fee               `json:"fee"`
	Successors       []string          `json:"successors,omitempty"`
	Branches         []string          `json:"branches,omitempty"`
	Negotiate        bool              `json:"negotiate"`
	DiceRolls        int               `json:"dice_rolls"`
	CardRequirements []CardRequirement `json:"card_requirements,omitempty"`
}

// Space is a node of the board. Spaces are immutable after loading.
type Space struct {
	Name   string                    `json:"name"`
	Phase  string                    `json:"phase"`
	Visits map[VisitType]*SpaceVisit `json:"visits"`
}

// Visit returns the row for vt, falling back to the First row when the
// dataset has no Subsequent variant.
func (s *Space) Visit(vt VisitType) *SpaceVisit {
	if v, ok := s.Visits[vt]; ok {
		return v
	}
	if v, ok := s.Visits[VisitFirst]; ok {
		return v
	}
	for _, v := range s.Visits {
		return v
	}
	return nil
}

// DiceOutcomeEntry maps die values 1..6 to outcome text for one roll category
// of one space and visit type.
type DiceOutcomeEntry struct {
	Space     string    `json:"space"`
	VisitType VisitType `json:"visit_type"`
	Category  string    `json:"category"`
	Values    [6]string `json:"values"`
	Raw       [6]string `json:"raw"`
	Movement  bool      `json:"movement"`
}

// Value returns the normalized outcome for roll.
func (d *DiceOutcomeEntry) Value(roll int) (string, bool) {
	if roll < 1 || roll > 6 {
		return "", false
	}
	v := d.Values[roll-1]
	return v, v != ""
}

// Outcome is one category's outcome text for a roll.
type Outcome struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Movement bool   `json:"movement,omitempty"`
}

// SpaceSummary is the persisted board overview.
type SpaceSummary struct {
	Name      string   `json:"name"`
	Phase     string   `json:"phase"`
	Color     string   `json:"color,omitempty"`
	MainPath  bool     `json:"main_path"`
	Negotiate bool     `json:"negotiate"`
	Moves     []string `json:"moves"`
}
