package game

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

func TestFinishSequence(t *testing.T) {
	h := newHarness(t, "CON-INSPECT")
	h.start(t, "Alice", "Bob")
	e := h.engine

	if err := e.EndTurn("Alice"); err != nil {
		t.Fatalf("alice end turn: %v", err)
	}
	h.checkFinishConsistency(t)
	p := h.progress(t)
	if p.GameEnded {
		t.Fatal("game ended with Bob still playing")
	}
	if p.Current() != "Bob" {
		t.Errorf("current = %s, want Bob", p.Current())
	}
	expectErr(t, e.EndTurn("Alice"), ErrPlayerFinished, true)

	if err := e.EndTurn("Bob"); err != nil {
		t.Fatalf("bob end turn: %v", err)
	}
	h.checkFinishConsistency(t)
	if !h.progress(t).GameEnded {
		t.Fatal("game should end once everyone finished")
	}
	if got := h.finished(); len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Errorf("finish order = %v", got)
	}
	if n := h.count("game.ended"); n != 1 {
		t.Errorf("game.ended emitted %d times", n)
	}
	if n := h.count("game.finished"); n != 2 {
		t.Errorf("game.finished emitted %d times", n)
	}

	rankings, err := e.Rankings()
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	if rankings[0].Player != "Alice" || rankings[0].Rank != 1 || rankings[0].FinishOrder != 1 {
		t.Errorf("tied scores should rank by finish order: %+v", rankings)
	}

	expectErr(t, e.EndTurn("Bob"), ErrGameEnded, true)
	_, err = e.DrawCard("Alice", cards.TypeBank, cards.Filters{})
	expectErr(t, err, ErrGameEnded, true)

	res, err := e.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.IsValid || len(res.Healed) != 0 {
		t.Errorf("finished game should verify clean: %+v", res)
	}
	if h.count("game.ended") != 1 {
		t.Error("verification must not end the game again")
	}
}

func TestRankPutsUnfinishedLast(t *testing.T) {
	s := &snapshot{
		progress: ProgressState{
			Players: []string{"Alice", "Bob", "Carol", "Dave"},
			PlayerStates: map[string]outcome.Resources{
				"Alice": {Money: 90000, Time: 10},
				"Bob":   {Money: 10000},
				"Carol": {Money: 50000, Time: 5},
				"Dave":  {Money: 50000, Time: 5},
			},
		},
		finished: []string{"Dave", "Carol", "Bob"},
	}

	got := rank(s, 1000)
	want := []string{"Dave", "Carol", "Bob", "Alice"}
	for i, r := range got {
		if r.Player != want[i] {
			t.Fatalf("rank %d = %s, want %s (%+v)", i+1, r.Player, want[i], got)
		}
		if r.Rank != i+1 {
			t.Errorf("%s rank = %d", r.Player, r.Rank)
		}
	}
	if got[3].Finished || got[3].FinishOrder != 0 {
		t.Errorf("alice should be unfinished: %+v", got[3])
	}
	if got[0].Score != 45000 {
		t.Errorf("score = %d, want 45000", got[0].Score)
	}
}

func TestVerifyHealsFinishedSet(t *testing.T) {
	h := newHarness(t, "CON-INSPECT")
	h.start(t, "Alice", "Bob")
	if err := h.engine.EndTurn("Alice"); err != nil {
		t.Fatalf("end turn: %v", err)
	}

	if !h.store.Save(storage.TypeFinishedPlayers, []string{}) {
		t.Fatal("failed to overwrite finished players")
	}
	res, err := h.engine.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.IsValid || len(res.Healed) == 0 {
		t.Fatalf("expected a healed valid state, got %+v", res)
	}
	if got := h.finished(); len(got) != 1 || got[0] != "Alice" {
		t.Errorf("finished set not healed: %v", got)
	}
	h.checkFinishConsistency(t)
	if h.count("state.healed") != 1 {
		t.Error("expected a state.healed event")
	}
}

func TestVerifyReportsFinishedPlayerOffFinish(t *testing.T) {
	h := newHarness(t, "CON-INSPECT")
	h.start(t, "Alice", "Bob")

	if !h.store.Save(storage.TypeFinishedPlayers, []string{"Bob"}) {
		t.Fatal("failed to overwrite finished players")
	}
	res, err := h.engine.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.IsValid {
		t.Fatal("expected invalid state")
	}
	if !strings.Contains(res.Reason, "Bob") {
		t.Errorf("reason should name Bob: %q", res.Reason)
	}
	if h.count("state.invalid") != 1 {
		t.Error("expected a state.invalid event")
	}
}

func TestVerifyRejectsUnknownPosition(t *testing.T) {
	h := newHarness(t, "OWNER-SCOPE-INITIATION")
	h.start(t, "Alice")

	p := h.progress(t)
	p.Positions["Alice"] = "NOWHERE"
	if !h.store.Save(storage.TypeProgressState, p) {
		t.Fatal("failed to overwrite progress")
	}
	res, err := h.engine.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.IsValid || !strings.Contains(res.Reason, "NOWHERE") {
		t.Errorf("expected unreachable position to be reported, got %+v", res)
	}
}

func TestVerifierSkipsMissingGame(t *testing.T) {
	h := newHarness(t, "OWNER-SCOPE-INITIATION")
	v := NewVerifier(h.engine, 5*time.Millisecond)
	v.Start()
	time.Sleep(30 * time.Millisecond)
	v.Stop()
	v.Stop()

	if _, err := h.engine.Verify(); !errors.Is(err, ErrNoGame) {
		t.Errorf("expected ErrNoGame, got %v", err)
	}
	if h.count("state.invalid") != 0 {
		t.Error("no game must not be reported as invalid state")
	}
}
