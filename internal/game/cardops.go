package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/cards"
)

func cardType(s string) cards.Type {
	t, _ := cards.ParseType(s)
	return t
}

func (e *Engine) action(player, action string, c cards.Card, space string) CardAction {
	return CardAction{
		Action:    action,
		Player:    player,
		ID:        c.ID,
		CardID:    c.CardID,
		Type:      c.Type,
		Space:     space,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (e *Engine) drawLocked(player string, t cards.Type, f cards.Filters) (cards.Card, error) {
	const op = "draw card"
	s, err := e.load()
	if err != nil {
		return cards.Card{}, userErr(op, err)
	}
	if err := checkTurn(s, player); err != nil {
		return cards.Card{}, userErr(op, err)
	}
	c, ok := e.decks.Draw(t, f)
	if !ok {
		return cards.Card{}, userErr(op, fmt.Errorf("%w: type %s", ErrDeckEmpty, t))
	}

	space := s.progress.Positions[player]
	st := e.staged(player)
	st.Drawn = append(st.Drawn, c)
	st.History = append(st.History, e.action(player, ActionDrawn, c, space))
	e.emit("info", "cards.drawn", "", map[string]interface{}{
		"player":    player,
		"card":      c.CardID,
		"id":        c.ID,
		"type":      string(c.Type),
		"space":     space,
		"remaining": e.decks.Remaining(t),
	})
	return c, nil
}

// DrawCard draws a card of family t for the current player into the
// player's staged hand.
func (e *Engine) DrawCard(player string, t cards.Type, f cards.Filters) (cards.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawLocked(player, t, f)
}

// takeCard stages the removal of a held card. It fails without side effects
// when the card is not held or already staged for removal.
func (e *Engine) takeCard(s *snapshot, player, id string) (cards.Card, error) {
	st := e.temp[player]
	if st != nil && st.removed(id) {
		return cards.Card{}, fmt.Errorf("%w: %s", ErrCardNotHeld, id)
	}
	if st != nil {
		if i, ok := st.drawn(id); ok {
			return st.Drawn[i], nil
		}
	}
	c, ok := s.hands[player].Find(id)
	if !ok {
		return cards.Card{}, fmt.Errorf("%w: %s", ErrCardNotHeld, id)
	}
	return c, nil
}

func (e *Engine) stageRemoval(player string, c cards.Card, disposition, space string) {
	st := e.staged(player)
	if i, ok := st.drawn(c.ID); ok {
		st.Drawn = append(st.Drawn[:i:i], st.Drawn[i+1:]...)
	}
	st.Removed = append(st.Removed, StagedCard{Card: c, Disposition: disposition})
	st.History = append(st.History, e.action(player, disposition, c, space))
}

// PlayCard plays a held card for the current player. The card's effect is
// staged and the card leaves the hand on commit.
func (e *Engine) PlayCard(player, id string) (cards.Result, error) {
	const op = "play card"
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return cards.Result{}, userErr(op, err)
	}
	if err := checkTurn(s, player); err != nil {
		return cards.Result{}, userErr(op, err)
	}
	c, err := e.takeCard(s, player, id)
	if err != nil {
		return cards.Result{}, userErr(op, err)
	}

	space := s.progress.Positions[player]
	ctx := cards.PlayContext{
		Phase:      e.board.PhaseForSpace(space),
		SpaceColor: e.board.ColorForSpace(space),
		Resources:  e.resources(s, player),
	}
	if err := e.cardRules.Check(c, ctx); err != nil {
		return cards.Result{}, userErr(op, fmt.Errorf("%w: %w", ErrCardNotPlayable, err))
	}

	res := e.cardRules.Apply(c, ctx)
	e.stageRemoval(player, c, ActionPlayed, space)
	st := e.staged(player)
	st.Delta = st.Delta.Add(res.Delta)
	st.Notes = append(st.Notes, fmt.Sprintf("played %s %s", c.CardID, c.Name))

	e.emit("info", "cards.played", "", map[string]interface{}{
		"player": player,
		"card":   c.CardID,
		"id":     c.ID,
		"type":   string(c.Type),
		"space":  space,
	})
	e.emit("info", "cards.effect_applied", c.Effect, map[string]interface{}{
		"player":      player,
		"card":        c.CardID,
		"delta":       res.Delta,
		"color_bonus": res.ColorBonus,
		"matched":     res.Effects.Matched,
	})

	for _, d := range res.Effects.Draws {
		for i := 0; i < d.Count; i++ {
			if _, err := e.drawLocked(player, cardType(d.Type), cards.Filters{}); err != nil {
				e.logger.Warn("card effect draw failed", zap.String("card", c.CardID), zap.Error(err))
				break
			}
		}
	}
	return res, nil
}

// DiscardCard removes a held card without playing it. At a space that asks
// for cards of that family to be returned, the card goes back to its deck.
func (e *Engine) DiscardCard(player, id string) error {
	const op = "discard card"
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return userErr(op, err)
	}
	if err := checkTurn(s, player); err != nil {
		return userErr(op, err)
	}
	c, err := e.takeCard(s, player, id)
	if err != nil {
		return userErr(op, err)
	}

	space := s.progress.Positions[player]
	disposition := ActionDiscarded
	if v, ok := e.board.SpaceVisit(space, s.visits.VisitType(player, space)); ok {
		for _, req := range v.CardRequirements {
			if req.Action == "return" && cardType(req.CardType) == c.Type {
				disposition = ActionReturned
			}
		}
	}
	e.stageRemoval(player, c, disposition, space)

	name := "cards.discarded"
	if disposition == ActionReturned {
		name = "cards.returned"
	}
	e.emit("info", name, "", map[string]interface{}{
		"player": player,
		"card":   c.CardID,
		"id":     c.ID,
		"type":   string(c.Type),
		"space":  space,
	})
	return nil
}
