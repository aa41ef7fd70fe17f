package cards

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Filters narrows a draw. Empty fields match every card.
type Filters struct {
	Phase             string `json:"phase,omitempty"`
	DistributionLevel string `json:"distribution_level,omitempty"`
}

func (f Filters) match(c Card) bool {
	if f.Phase != "" && !c.AnyPhase() && !strings.EqualFold(c.Phase, f.Phase) {
		return false
	}
	if f.DistributionLevel != "" && !strings.EqualFold(c.DistributionLevel, f.DistributionLevel) {
		return false
	}
	return true
}

// Decks holds the undrawn cards and the discard pile of every family.
type Decks struct {
	mu      sync.Mutex
	catalog *Catalog
	piles   map[Type][]Card
	discard map[Type][]Card
}

// NewDecks shuffles every family of the catalog with a seeded generator, so
// the same seed deals the same game.
func NewDecks(catalog *Catalog, seed uint64) *Decks {
	d := &Decks{
		catalog: catalog,
		piles:   make(map[Type][]Card),
		discard: make(map[Type][]Card),
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, t := range Types {
		pile := catalog.ByType(t)
		rng.Shuffle(len(pile), func(i, j int) { pile[i], pile[j] = pile[j], pile[i] })
		d.piles[t] = pile
	}
	return d
}

// Draw removes and returns the first card of family t matching f. It returns
// false when nothing matches.
func (d *Decks) Draw(t Type, f Filters) (Card, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pile := d.piles[t]
	for i, c := range pile {
		if f.match(c) {
			d.piles[t] = append(pile[:i:i], pile[i+1:]...)
			return c, true
		}
	}
	return Card{}, false
}

// Return puts a drawn card back at the bottom of its deck.
func (d *Decks) Return(c Card) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.contains(c.ID) {
		return
	}
	d.piles[c.Type] = append(d.piles[c.Type], c)
}

// Discard puts a played or discarded card on its discard pile.
func (d *Decks) Discard(c Card) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.contains(c.ID) {
		return
	}
	d.discard[c.Type] = append(d.discard[c.Type], c)
}

func (d *Decks) contains(id string) bool {
	for _, t := range Types {
		for _, c := range d.piles[t] {
			if c.ID == id {
				return true
			}
		}
		for _, c := range d.discard[t] {
			if c.ID == id {
				return true
			}
		}
	}
	return false
}

// Exclude removes cards from the decks, used when resuming a game whose
// cards are already held. Ids listed in discarded go onto the discard piles.
func (d *Decks) Exclude(held, discarded []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]bool, len(held)+len(discarded))
	for _, id := range held {
		out[id] = true
	}
	toDiscard := make(map[string]bool, len(discarded))
	for _, id := range discarded {
		out[id] = true
		toDiscard[id] = true
	}

	for _, t := range Types {
		kept := d.piles[t][:0]
		for _, c := range d.piles[t] {
			if !out[c.ID] {
				kept = append(kept, c)
			} else if toDiscard[c.ID] {
				d.discard[t] = append(d.discard[t], c)
			}
		}
		d.piles[t] = kept
	}
}

// Remaining returns the number of undrawn cards of family t.
func (d *Decks) Remaining(t Type) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.piles[t])
}

// Discarded returns the discard pile of family t.
func (d *Decks) Discarded(t Type) []Card {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Card(nil), d.discard[t]...)
}

// InDeck reports whether id is undrawn.
func (d *Decks) InDeck(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.piles[cardType(d.catalog, id)] {
		if c.ID == id {
			return true
		}
	}
	return false
}

func cardType(c *Catalog, id string) Type {
	if card, ok := c.Get(id); ok {
		return card.Type
	}
	return ""
}
