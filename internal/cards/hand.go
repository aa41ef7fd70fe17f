package cards

// Hand is one player's cards by family. Methods never modify the receiver;
// they return an updated copy.
type Hand map[Type][]Card

// Clone returns a copy that shares no slices with h.
func (h Hand) Clone() Hand {
	out := make(Hand, len(h))
	for t, cards := range h {
		out[t] = append([]Card(nil), cards...)
	}
	return out
}

// Add returns h with c appended to its family. Adding a card already held is
// a no-op.
func (h Hand) Add(c Card) Hand {
	if _, ok := h.Find(c.ID); ok {
		return h
	}
	out := h.Clone()
	out[c.Type] = append(out[c.Type], c)
	return out
}

// Remove returns h without card id. The second result is false if the card
// was not held, in which case h is returned unchanged.
func (h Hand) Remove(id string) (Hand, Card, bool) {
	for t, cards := range h {
		for i, c := range cards {
			if c.ID != id {
				continue
			}
			out := h.Clone()
			out[t] = append(out[t][:i:i], out[t][i+1:]...)
			return out, c, true
		}
	}
	return h, Card{}, false
}

// Find returns card id if held.
func (h Hand) Find(id string) (Card, bool) {
	for _, cards := range h {
		for _, c := range cards {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Card{}, false
}

// Count returns the number of cards of family t.
func (h Hand) Count(t Type) int {
	return len(h[t])
}

// Len returns the number of cards held.
func (h Hand) Len() int {
	n := 0
	for _, cards := range h {
		n += len(cards)
	}
	return n
}

// IDs returns every held card id.
func (h Hand) IDs() []string {
	var out []string
	for _, t := range Types {
		for _, c := range h[t] {
			out = append(out, c.ID)
		}
	}
	return out
}

// Collections maps player name to hand.
type Collections map[string]Hand

// Holder returns the player holding card id.
func (c Collections) Holder(id string) (string, bool) {
	for player, h := range c {
		if _, ok := h.Find(id); ok {
			return player, true
		}
	}
	return "", false
}

// Duplicates returns card ids held more than once across every hand.
func (c Collections) Duplicates() []string {
	seen := make(map[string]int)
	var dups []string
	for _, h := range c {
		for _, id := range h.IDs() {
			seen[id]++
			if seen[id] == 2 {
				dups = append(dups, id)
			}
		}
	}
	return dups
}
