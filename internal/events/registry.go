package events

import "fmt"

// Topic groups related events; it is the part of the event name before the first dot.
type Topic string

const (
	TopicAll      Topic = ""
	TopicGame     Topic = "game"
	TopicTurn     Topic = "turn"
	TopicPosition Topic = "position"
	TopicRoll     Topic = "roll"
	TopicCards    Topic = "cards"
	TopicOutcome  Topic = "outcome"
	TopicState    Topic = "state"
	TopicStore    Topic = "store"
	TopicSystem   Topic = "system"
)

var allowedEvents = map[string]struct{}{
	// game
	"game.started":  {},
	"game.resumed":  {},
	"game.ended":    {},
	"game.finished": {},

	// turn
	"turn.advanced":   {},
	"turn.negotiated": {},
	"turn.rejected":   {},

	// position
	"position.changed":  {},
	"position.selected": {},

	// roll
	"roll.completed": {},
	"roll.reset":     {},

	// cards
	"cards.drawn":          {},
	"cards.played":         {},
	"cards.discarded":      {},
	"cards.returned":       {},
	"cards.effect_applied": {},

	// outcome
	"outcome.applied": {},
	"outcome.error":   {},

	// state
	"state.committed": {},
	"state.discarded": {},
	"state.verified":  {},
	"state.healed":    {},
	"state.invalid":   {},

	// store
	"store.error":    {},
	"store.external": {},

	// system
	"system.startup":         {},
	"system.startup_restore": {},
	"system.shutdown":        {},
	"system.error":           {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
