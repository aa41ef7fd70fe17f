package game

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/board"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// Roll rolls one die for the current player, stages the value in the
// player's temporary state and runs the outcome processor on it.
func (e *Engine) Roll(player string) (*Report, error) {
	const op = "roll"
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := checkTurn(s, player); err != nil {
		return nil, wrap(op, err)
	}
	r := e.rollState(s, player)
	if r.RollsRequired == 0 {
		return nil, wrap(op, ErrNoRollRequired)
	}
	if r.RollsCompleted >= r.RollsRequired {
		return nil, wrap(op, ErrAlreadyRolled)
	}

	value := e.dice.Roll()
	t := e.staged(player)
	t.Rolls = append(t.Rolls, value)
	r = r.add(value)

	pos := s.progress.Positions[player]
	vt := s.visits.VisitType(player, pos)
	e.emit("info", "roll.completed", "", map[string]interface{}{
		"player":          player,
		"space":           pos,
		"visit_type":      string(vt),
		"value":           value,
		"rolls_completed": r.RollsCompleted,
		"rolls_required":  r.RollsRequired,
	})

	report, err := e.processor.Execute(Request{
		Player:    player,
		Space:     pos,
		VisitType: vt,
		Roll:      value,
		Base:      e.resources(s, player),
	})
	if err != nil {
		// The roll stays staged; only the report failed to persist.
		e.logger.Warn("outcome report not saved", zap.String("player", player), zap.Error(err))
	}
	return report, nil
}

func (e *Engine) selectLocked(player, target string) error {
	_, err := e.mutate("select move", func(s *snapshot) error {
		if err := checkTurn(s, player); err != nil {
			return err
		}
		if !contains(e.availableMoves(s, player), target) {
			return fmt.Errorf("%w: %s", ErrIllegalMove, target)
		}
		s.progress.Selected[player] = target
		return nil
	})
	if err != nil {
		return err
	}
	e.emit("info", "position.selected", "", map[string]interface{}{
		"player": player,
		"target": target,
	})
	return nil
}

// SelectMove records the destination the current player will move to when
// the turn ends.
func (e *Engine) SelectMove(player, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectLocked(player, target)
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

// applyPosition re-validates target against the moves available now and
// moves the player. Arriving at the finish space runs the finish sequence.
func (e *Engine) applyPosition(s *snapshot, player, target string) error {
	from := s.progress.Positions[player]
	if !contains(e.availableMoves(s, player), target) || !e.board.ValidateMoveSequence(from, target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalMove, from, target)
	}
	s.progress.Positions[player] = target
	delete(s.progress.Selected, player)
	s.later(func() {
		e.emit("info", "position.changed", "", map[string]interface{}{
			"player": player,
			"from":   from,
			"to":     target,
		})
	})
	if target == e.board.FinishSpace() {
		e.finish(s, player)
	}
	return nil
}

// UpdatePlayerPosition moves player to target if it is a legal move from
// the player's current position.
func (e *Engine) UpdatePlayerPosition(player, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.mutate("update position", func(s *snapshot) error {
		if err := checkPlayer(s, player); err != nil {
			return err
		}
		return e.applyPosition(s, player, target)
	})
	return err
}

// commitInto merges t into the player's committed state in s. The staged
// state is dropped only after s has been saved.
func (e *Engine) commitInto(s *snapshot, player string, t *TemporaryState) {
	r := s.progress.PlayerStates[player].Add(t.Delta)
	s.progress.PlayerStates[player] = r
	s.scores[player] = Score(r, e.rules.DayValue)
	if s.progress.Current() == player {
		for _, v := range t.Rolls {
			s.progress.Roll = s.progress.Roll.add(v)
		}
	}
	s.committed[player] = true

	hand := s.hands[player]
	for _, c := range t.Drawn {
		hand = hand.Add(c)
	}
	for _, rc := range t.Removed {
		hand, _, _ = hand.Remove(rc.Card.ID)
	}
	s.hands[player] = hand
	s.history = append(s.history, t.History...)
	s.touch(storage.TypePlayerCards, storage.TypeCardHistory, storage.TypeScores)

	s.later(func() {
		for _, rc := range t.Removed {
			if rc.Disposition == ActionReturned {
				e.decks.Return(rc.Card)
			} else {
				e.decks.Discard(rc.Card)
			}
		}
		delete(e.temp, player)
		e.emit("info", "state.committed", "", map[string]interface{}{
			"player": player,
			"delta":  t.Delta,
			"rolls":  t.Rolls,
			"drawn":  len(t.Drawn),
			"played": len(t.Removed),
			"notes":  t.Notes,
		})
	})
}

// CommitTemporaryState merges the player's staged changes into the
// persisted state. On failure the staged changes are kept.
func (e *Engine) CommitTemporaryState(player string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.mutate("commit", func(s *snapshot) error {
		if !s.progress.hasPlayer(player) {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
		}
		t, ok := e.temp[player]
		if !ok {
			return nil
		}
		e.commitInto(s, player, t.clone())
		return nil
	})
	return err
}

// requirementsMet checks the rolls and card actions a space demands.
func (e *Engine) requirementsMet(s *snapshot, player string, v *board.SpaceVisit) error {
	r := e.rollState(s, player)
	if r.RollsCompleted < r.RollsRequired {
		return fmt.Errorf("%w: %d of %d rolls done", ErrRollRequired, r.RollsCompleted, r.RollsRequired)
	}
	if v == nil {
		return nil
	}
	t := e.temp[player]
	if t == nil {
		t = &TemporaryState{}
	}
	for _, req := range v.CardRequirements {
		ct := cardType(req.CardType)
		if n := t.count(req.Action, ct); n < req.Count {
			return fmt.Errorf("%w: %s %d %s card(s), %d done", ErrRequirementUnmet, req.Action, req.Count, req.CardType, n)
		}
	}
	return nil
}

// fee returns the space fee after any accumulated discount.
func fee(v *board.SpaceVisit, r outcome.Resources) int {
	if v == nil {
		return 0
	}
	amount := v.Fee.Amount
	if v.Fee.Percent {
		amount = r.Scope * amount / 100
	}
	if d := r.Discount; d > 0 {
		if d > 100 {
			d = 100
		}
		amount = amount * (100 - d) / 100
	}
	return amount
}

// EndTurn completes the current player's turn: it stages the space's time
// and fee, commits, counts the visit, moves the player and passes the turn.
func (e *Engine) EndTurn(player string) error {
	const op = "end turn"
	e.mu.Lock()
	defer e.mu.Unlock()

	var target string
	_, err := e.mutate(op, func(s *snapshot) error {
		target = ""
		if err := checkTurn(s, player); err != nil {
			return err
		}
		pos := s.progress.Positions[player]
		v, _ := e.board.SpaceVisit(pos, s.visits.VisitType(player, pos))
		if err := e.requirementsMet(s, player, v); err != nil {
			return err
		}

		moves := e.availableMoves(s, player)
		switch sel := s.progress.Selected[player]; {
		case sel != "":
			target = sel
		case len(moves) == 1:
			target = moves[0]
		case len(moves) > 1:
			return fmt.Errorf("%w: %d moves available", ErrMoveRequired, len(moves))
		}

		// Work on a copy so a failed save leaves the staged state untouched.
		t := e.temp[player].clone()
		if v != nil {
			base := s.progress.PlayerStates[player].Add(t.Delta)
			cost := outcome.Resources{Time: v.Time}
			if v.Fee.Amount > 0 {
				cost.Money = -fee(v, base)
				cost.Discount = -base.Discount
			}
			t.Delta = t.Delta.Add(cost)
		}
		e.commitInto(s, player, t)

		// The move is checked against the visit being completed, so the
		// count for pos only goes up once the player has left it.
		if target != "" {
			if err := e.applyPosition(s, player, target); err != nil {
				return err
			}
		}
		s.visits[visitKey(player, pos)]++
		s.touch(storage.TypeVisitHistory)
		e.advance(s)
		return nil
	})
	if err != nil {
		if IsUserError(err) {
			e.emit("warning", "turn.rejected", err.Error(), map[string]interface{}{"player": player})
		}
		return err
	}
	return nil
}

// Negotiate ends the turn without moving. Staged changes are dropped, the
// negotiation penalty is charged directly and the visit is not counted.
func (e *Engine) Negotiate(player string) error {
	const op = "negotiate"
	e.mu.Lock()
	defer e.mu.Unlock()

	penalty := e.rules.NegotiationPenaltyDays
	s, err := e.mutate(op, func(s *snapshot) error {
		if err := checkTurn(s, player); err != nil {
			return err
		}
		pos := s.progress.Positions[player]
		v, ok := e.board.SpaceVisit(pos, s.visits.VisitType(player, pos))
		if !ok || !v.Negotiate {
			return fmt.Errorf("%w: %s", ErrCannotNegotiate, pos)
		}
		r := s.progress.PlayerStates[player]
		r.Time += penalty
		s.progress.PlayerStates[player] = r
		s.scores[player] = Score(r, e.rules.DayValue)
		s.touch(storage.TypeScores)
		delete(s.progress.Selected, player)
		e.advance(s)
		return nil
	})
	if err != nil {
		return err
	}

	e.discardStaged(player)
	e.emit("info", "turn.negotiated", "", map[string]interface{}{
		"player":       player,
		"space":        s.progress.Positions[player],
		"penalty_days": penalty,
	})
	return nil
}

// discardStaged drops a player's temporary state, returning staged draws to
// the decks.
func (e *Engine) discardStaged(player string) {
	t, ok := e.temp[player]
	if !ok {
		return
	}
	delete(e.temp, player)
	for _, c := range t.Drawn {
		e.decks.Return(c)
		e.emit("info", "cards.returned", "", map[string]interface{}{
			"player": player,
			"card":   c.CardID,
			"id":     c.ID,
		})
	}
	for _, rc := range t.Removed {
		if containsAction(t.History, rc.Card.ID, ActionDrawn) {
			e.decks.Return(rc.Card)
		}
	}
	e.emit("info", "state.discarded", "", map[string]interface{}{
		"player": player,
		"delta":  t.Delta,
	})
}

// advance passes the turn to the next unfinished player and resets the roll
// state for them.
func (e *Engine) advance(s *snapshot) {
	n := len(s.progress.Players)
	prev := s.progress.Current()
	for i := 1; i <= n; i++ {
		idx := (s.progress.CurrentPlayer + i) % n
		if !s.isFinished(s.progress.Players[idx]) {
			s.progress.CurrentPlayer = idx
			break
		}
	}
	next := s.progress.Current()
	s.progress.Roll = e.rollStateFor(s, next)
	s.later(func() {
		e.emit("info", "roll.reset", "", map[string]interface{}{
			"player":         next,
			"rolls_required": s.progress.Roll.RollsRequired,
		})
		e.emit("info", "turn.advanced", "", map[string]interface{}{
			"from":   prev,
			"player": next,
		})
	})
}

func (e *Engine) rollStateFor(s *snapshot, player string) RollState {
	if s.isFinished(player) {
		return newRollState(0)
	}
	pos := s.progress.Positions[player]
	return newRollState(e.board.RequiredRolls(pos, s.visits.VisitType(player, pos)))
}
