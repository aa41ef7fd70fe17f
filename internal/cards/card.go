// Package cards holds the card catalog, the draw decks and the per-player
// hands, and decides whether and how a card can be played.
package cards

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AaronLay10/ProjectBoard/internal/dataset"
)

// Type is a card family.
type Type string

const (
	TypeBank     Type = "B"
	TypeInvestor Type = "I"
	TypeWork     Type = "W"
	TypeLife     Type = "L"
	TypeExpert   Type = "E"
)

// Types lists every card family in display order.
var Types = []Type{TypeBank, TypeInvestor, TypeWork, TypeLife, TypeExpert}

// ParseType accepts "B".."E" in any case.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// instanceNamespace scopes the name-based instance ids.
var instanceNamespace = uuid.MustParse("6f1d1e9c-4b8a-5a57-9a51-2c6d0b0f7e21")

// Card is one physical card. ID is unique per copy and stable across restarts.
type Card struct {
	ID                string `json:"id"`
	CardID            string `json:"card_id"`
	Type              Type   `json:"type"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Effect            string `json:"effect,omitempty"`
	Phase             string `json:"phase,omitempty"`
	Color             string `json:"color,omitempty"`
	Amount            int    `json:"amount,omitempty"`
	LoanPercent       int    `json:"loan_percent,omitempty"`
	DistributionLevel string `json:"distribution_level,omitempty"`
	Cost              int    `json:"cost,omitempty"`
}

// InstanceID returns the id of copy n of a catalog card.
func InstanceID(cardID string, n int) string {
	return uuid.NewSHA1(instanceNamespace, []byte(fmt.Sprintf("%s#%d", cardID, n))).String()
}

// AnyPhase reports whether the card may be played in every phase.
func (c Card) AnyPhase() bool {
	switch strings.ToLower(strings.TrimSpace(c.Phase)) {
	case "", "any", "any phase", "all", "all phases":
		return true
	}
	return false
}

// AllColors reports whether the card matches every space colour.
func (c Card) AllColors() bool {
	switch strings.ToLower(strings.TrimSpace(c.Color)) {
	case "", "all", "all colors", "all colours", "any":
		return true
	}
	return false
}

// Catalog is the loaded card dataset, expanded to one entry per copy.
type Catalog struct {
	cards []Card
	byID  map[string]Card
}

// CatalogColumns are required in the cards dataset.
var CatalogColumns = []string{"Card ID", "Card Type", "Name"}

// LoadCatalog parses a cards dataset file.
func LoadCatalog(path string) (*Catalog, []string, error) {
	t, err := dataset.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseCatalog(t)
}

// ParseCatalog builds a catalog. Rows with an unknown type are skipped with a
// warning; missing required columns are an error.
func ParseCatalog(t *dataset.Table) (*Catalog, []string, error) {
	if err := t.Require(CatalogColumns...); err != nil {
		return nil, nil, err
	}

	var warnings []string
	c := &Catalog{byID: make(map[string]Card)}
	seen := make(map[string]bool)
	for _, row := range t.Rows {
		cardID := row.String("Card ID")
		typ, ok := ParseType(row.String("Card Type"))
		if cardID == "" || !ok {
			warnings = append(warnings, fmt.Sprintf("%s:%d: skipped card %q with type %q", t.Name, row.Line, cardID, row.String("Card Type")))
			continue
		}
		if seen[cardID] {
			warnings = append(warnings, fmt.Sprintf("%s:%d: duplicate card id %q", t.Name, row.Line, cardID))
			continue
		}
		seen[cardID] = true

		base := Card{
			CardID:            cardID,
			Type:              typ,
			Name:              row.String("Name"),
			Description:       row.String("Description"),
			Effect:            row.String("Effect"),
			Phase:             row.String("Phase"),
			Color:             row.String("Color"),
			Amount:            row.IntOr("Amount", 0),
			LoanPercent:       row.IntOr("Loan Percentage Cost", 0),
			DistributionLevel: row.String("Distribution Level"),
			Cost:              row.IntOr("Cost", 0),
		}
		for n := 1; n <= row.IntOr("Quantity", 1); n++ {
			card := base
			card.ID = InstanceID(cardID, n)
			c.cards = append(c.cards, card)
			c.byID[card.ID] = card
		}
	}
	return c, warnings, nil
}

// Get returns a card instance by id.
func (c *Catalog) Get(id string) (Card, bool) {
	card, ok := c.byID[id]
	return card, ok
}

// ByType returns every instance of a family in catalog order.
func (c *Catalog) ByType(t Type) []Card {
	var out []Card
	for _, card := range c.cards {
		if card.Type == t {
			out = append(out, card)
		}
	}
	return out
}

// Len returns the number of card instances.
func (c *Catalog) Len() int {
	return len(c.cards)
}
