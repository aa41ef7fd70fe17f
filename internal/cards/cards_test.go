package cards

import (
	"errors"
	"testing"

	"github.com/AaronLay10/ProjectBoard/internal/outcome"
)

func loadCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, warnings, err := LoadCatalog("testdata/cards.csv")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return c
}

var rules = Rules{DebtMultiple: 3, ColorBonus: 1.5, InvestmentPhases: []string{"OWNER", "DESIGN", "FUNDING"}}

func TestCatalogExpandsQuantities(t *testing.T) {
	c := loadCatalog(t)
	if c.Len() != 9 {
		t.Errorf("expected 9 instances, got %d", c.Len())
	}
	banks := c.ByType(TypeBank)
	if len(banks) != 3 {
		t.Fatalf("expected 3 bank cards, got %d", len(banks))
	}
	if banks[0].ID != InstanceID("B001", 1) || banks[1].ID != InstanceID("B001", 2) {
		t.Error("instance ids must be derived from card id and copy number")
	}
	if banks[0].ID == banks[1].ID {
		t.Error("copies must have distinct ids")
	}
	if banks[0].Amount != 10000 || banks[0].LoanPercent != 10 || banks[0].DistributionLevel != "Level 1" {
		t.Errorf("unexpected bank card %+v", banks[0])
	}
	if got, ok := c.Get(banks[2].ID); !ok || got.CardID != "B002" {
		t.Errorf("lookup by instance id failed: %+v", got)
	}
}

func TestDrawFilters(t *testing.T) {
	d := NewDecks(loadCatalog(t), 1)

	c, ok := d.Draw(TypeBank, Filters{DistributionLevel: "level 2"})
	if !ok || c.CardID != "B002" {
		t.Errorf("expected B002 for level 2, got %+v", c)
	}
	if _, ok := d.Draw(TypeBank, Filters{DistributionLevel: "Level 2"}); ok {
		t.Error("level 2 deck should be exhausted")
	}
	if _, ok := d.Draw(TypeWork, Filters{Phase: "OWNER"}); ok {
		t.Error("no work card matches OWNER")
	}
	c, ok = d.Draw(TypeExpert, Filters{Phase: "OWNER"})
	if !ok || c.CardID != "E002" {
		t.Errorf("expected any-phase expert card, got %+v", c)
	}
	if d.Remaining(TypeExpert) != 1 {
		t.Errorf("expected 1 expert card left, got %d", d.Remaining(TypeExpert))
	}
}

func TestDrawExhaustsAndReturns(t *testing.T) {
	d := NewDecks(loadCatalog(t), 1)
	a, _ := d.Draw(TypeWork, Filters{})
	b, _ := d.Draw(TypeWork, Filters{})
	if a.ID == b.ID {
		t.Fatal("draw returned the same card twice")
	}
	if _, ok := d.Draw(TypeWork, Filters{}); ok {
		t.Fatal("expected empty deck")
	}

	d.Return(a)
	d.Return(a)
	if d.Remaining(TypeWork) != 1 || !d.InDeck(a.ID) {
		t.Errorf("expected one returned card, got %d", d.Remaining(TypeWork))
	}

	d.Discard(b)
	if got := d.Discarded(TypeWork); len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("unexpected discard pile %v", got)
	}
}

func TestSeededShuffleIsDeterministic(t *testing.T) {
	c := loadCatalog(t)
	d1, d2 := NewDecks(c, 42), NewDecks(c, 42)
	for i := 0; i < 3; i++ {
		a, _ := d1.Draw(TypeBank, Filters{})
		b, _ := d2.Draw(TypeBank, Filters{})
		if a.ID != b.ID {
			t.Fatalf("draw %d differs: %s vs %s", i, a.ID, b.ID)
		}
	}
}

func TestExclude(t *testing.T) {
	c := loadCatalog(t)
	d := NewDecks(c, 3)
	works := c.ByType(TypeWork)
	d.Exclude([]string{works[0].ID}, []string{works[1].ID})
	if d.Remaining(TypeWork) != 0 {
		t.Errorf("expected work deck empty, got %d", d.Remaining(TypeWork))
	}
	if len(d.Discarded(TypeWork)) != 1 {
		t.Error("expected discarded id on the discard pile")
	}
}

func TestHandIsCopyOnWrite(t *testing.T) {
	c := loadCatalog(t)
	w := c.ByType(TypeWork)[0]

	var empty Hand
	h := empty.Add(w)
	if empty.Len() != 0 {
		t.Error("Add must not modify the receiver")
	}
	if h.Add(w).Len() != 1 {
		t.Error("adding a held card must be a no-op")
	}

	h2, removed, ok := h.Remove(w.ID)
	if !ok || removed.ID != w.ID || h2.Len() != 0 || h.Len() != 1 {
		t.Errorf("unexpected remove result: ok=%v h2=%d h=%d", ok, h2.Len(), h.Len())
	}
	if _, _, ok := h2.Remove(w.ID); ok {
		t.Error("double removal must report failure")
	}
}

func TestCardConservation(t *testing.T) {
	c := loadCatalog(t)
	d := NewDecks(c, 9)
	hands := Collections{"Alice": nil, "Bob": nil}
	players := []string{"Alice", "Bob"}

	for i := 0; ; i++ {
		card, ok := d.Draw(TypeBank, Filters{})
		if !ok {
			break
		}
		p := players[i%2]
		hands[p] = hands[p].Add(card)
	}
	if dups := hands.Duplicates(); len(dups) != 0 {
		t.Errorf("duplicated ids across hands: %v", dups)
	}
	if hands["Alice"].Count(TypeBank)+hands["Bob"].Count(TypeBank) != 3 {
		t.Error("every bank card should be held exactly once")
	}
	id := hands["Bob"].IDs()[0]
	if holder, ok := hands.Holder(id); !ok || holder != "Bob" {
		t.Errorf("holder = %q", holder)
	}
}

func TestFundingCardDebtLimit(t *testing.T) {
	b001 := loadCatalog(t).ByType(TypeBank)[0]

	ok := PlayContext{Phase: "FUNDING", Resources: outcome.Resources{Money: 3667}}
	if err := rules.Check(b001, ok); err != nil {
		t.Errorf("10000 + 1000 <= 3 x 3667 should be accepted: %v", err)
	}

	tooPoor := PlayContext{Phase: "FUNDING", Resources: outcome.Resources{Money: 3666}}
	if err := rules.Check(b001, tooPoor); !errors.Is(err, ErrDebtLimit) {
		t.Errorf("expected ErrDebtLimit, got %v", err)
	}

	inDebt := PlayContext{Phase: "FUNDING", Resources: outcome.Resources{Money: 10000, Debt: 20000}}
	if rules.CanPlay(b001, inDebt) {
		t.Error("existing debt must count toward the limit")
	}

	res := rules.Apply(b001, ok)
	if res.Delta.Money != 10000 || res.Delta.Debt != 11000 {
		t.Errorf("unexpected loan delta %+v", res.Delta)
	}
}

func TestPhaseAndColorRules(t *testing.T) {
	c := loadCatalog(t)
	w := c.ByType(TypeWork)[0]
	experts := c.ByType(TypeExpert)
	e001, e002 := experts[0], experts[1]
	inv := c.ByType(TypeInvestor)[0]

	design := PlayContext{Phase: "DESIGN", SpaceColor: "Blue"}
	construction := PlayContext{Phase: "CONSTRUCTION", SpaceColor: "Yellow"}
	designWrongColor := PlayContext{Phase: "DESIGN", SpaceColor: "Green"}

	if !rules.CanPlay(w, design) || !errors.Is(rules.Check(w, construction), ErrWrongPhase) {
		t.Error("work card must match phase")
	}
	if !rules.CanPlay(e001, design) {
		t.Error("expert card with matching phase and color must be playable")
	}
	if !errors.Is(rules.Check(e001, designWrongColor), ErrWrongColor) {
		t.Error("expert card must match color")
	}
	if !rules.CanPlay(e002, construction) {
		t.Error("any-phase all-colors expert card must be playable anywhere")
	}
	if !rules.CanPlay(inv, PlayContext{Phase: "OWNER"}) || !errors.Is(rules.Check(inv, construction), ErrNotInvestmentPhase) {
		t.Error("investor cards are limited to investment phases")
	}
	if !rules.CanPlay(c.ByType(TypeLife)[0], construction) {
		t.Error("life events are always playable")
	}
}

func TestApplyEffects(t *testing.T) {
	c := loadCatalog(t)
	e001 := c.ByType(TypeExpert)[0]

	res := rules.Apply(e001, PlayContext{Phase: "DESIGN", SpaceColor: "Blue"})
	if !res.ColorBonus {
		t.Error("expected colour bonus")
	}
	if res.Delta.Time != -3 || res.Delta.Discount != 15 || res.Delta.Money != -1000 {
		t.Errorf("unexpected boosted delta %+v", res.Delta)
	}

	res = rules.Apply(e001, PlayContext{Phase: "DESIGN", SpaceColor: "Green"})
	if res.ColorBonus || res.Delta.Time != -2 || res.Delta.Discount != 10 {
		t.Errorf("unexpected plain delta %+v", res.Delta)
	}

	res = rules.Apply(c.ByType(TypeExpert)[1], PlayContext{})
	if res.Delta.Expertise != 1 || res.Delta.Money != -500 {
		t.Errorf("unexpected expediter delta %+v", res.Delta)
	}

	res = rules.Apply(c.ByType(TypeWork)[0], PlayContext{Phase: "DESIGN", Resources: outcome.Resources{Scope: 100000}})
	if res.Delta.Scope != 15000 || res.Delta.Quality != 5 {
		t.Errorf("unexpected work delta %+v", res.Delta)
	}

	res = rules.Apply(c.ByType(TypeLife)[0], PlayContext{})
	if res.Delta.Money != -2000 || res.Delta.Time != 1 {
		t.Errorf("unexpected life event delta %+v", res.Delta)
	}
}
