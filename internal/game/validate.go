package game

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("malformed payload: %w", err)
	}
	return v, nil
}

func validatePlayers(payload json.RawMessage) error {
	players, err := decode[[]string](payload)
	if err != nil {
		return err
	}
	return validateRoster(players)
}

func validateProgress(payload json.RawMessage) error {
	p, err := decode[ProgressState](payload)
	if err != nil {
		return err
	}
	if err := validateRoster(p.Players); err != nil {
		return err
	}
	if p.CurrentPlayer < 0 || p.CurrentPlayer >= len(p.Players) {
		return fmt.Errorf("current player index %d out of range", p.CurrentPlayer)
	}
	for _, name := range p.Players {
		if p.Positions[name] == "" {
			return fmt.Errorf("no position for %s", name)
		}
	}
	r := p.Roll
	if r.RollsCompleted < 0 || r.RollsCompleted > r.RollsRequired {
		return fmt.Errorf("rolls completed %d exceeds required %d", r.RollsCompleted, r.RollsRequired)
	}
	return nil
}

func validateVisits(payload json.RawMessage) error {
	v, err := decode[VisitHistory](payload)
	if err != nil {
		return err
	}
	for k, n := range v {
		if n < 0 {
			return fmt.Errorf("negative visit count for %s", k)
		}
	}
	return nil
}

func validateFinished(payload json.RawMessage) error {
	names, err := decode[[]string](payload)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return errors.New("empty finished player name")
		}
		if seen[n] {
			return fmt.Errorf("%s finished twice", n)
		}
		seen[n] = true
	}
	return nil
}

func validateHands(payload json.RawMessage) error {
	hands, err := decode[cards.Collections](payload)
	if err != nil {
		return err
	}
	if dups := hands.Duplicates(); len(dups) > 0 {
		return fmt.Errorf("cards held twice: %v", dups)
	}
	return nil
}

func decodes[T any](payload json.RawMessage) error {
	_, err := decode[T](payload)
	return err
}

// registerValidators installs a validator for every game record type.
func registerValidators(s *storage.Store) {
	s.RegisterValidator(storage.TypePlayers, validatePlayers)
	s.RegisterValidator(storage.TypeProgressState, validateProgress)
	s.RegisterValidator(storage.TypeVisitHistory, validateVisits)
	s.RegisterValidator(storage.TypeFinishedPlayers, validateFinished)
	s.RegisterValidator(storage.TypePlayerCards, validateHands)
	s.RegisterValidator(storage.TypeCardHistory, decodes[[]CardAction])
	s.RegisterValidator(storage.TypeScores, decodes[map[string]int])
	s.RegisterValidator(storage.TypeDiceRoll, decodes[Report])
}
