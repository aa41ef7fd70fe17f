package game

import (
	"time"

	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/storage/postgres"
)

// DefaultRestoreLimit is the default number of log rows to load on startup.
const DefaultRestoreLimit = 1000

// EventSource returns persisted log rows, newest first.
type EventSource interface {
	Query(limit int) ([]postgres.EventRow, error)
}

// RestoredLog is the game log read back from the event sink.
type RestoredLog struct {
	Events        []events.Event
	SessionActive bool
	Players       []string
	Current       string
	Finished      []string
	Ended         bool
}

// RestoreGameLog loads log rows and folds them into a summary of the last
// session. It returns nil when src is nil or holds no rows.
func RestoreGameLog(src EventSource, limit int) (*RestoredLog, error) {
	if src == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	rows, err := src.Query(limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Query returns newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	log := &RestoredLog{Events: make([]events.Event, 0, len(rows))}
	for _, row := range rows {
		e := events.Event{
			Timestamp: row.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:     row.Level,
			Name:      row.Event,
			Fields:    row.Fields,
		}
		if row.Message != nil {
			e.Message = *row.Message
		}
		log.Events = append(log.Events, e)

		switch row.Event {
		case "game.started":
			log.SessionActive = true
			log.Ended = false
			log.Finished = nil
			log.Players = stringList(row.Fields["players"])
			log.Current = ""
			if len(log.Players) > 0 {
				log.Current = log.Players[0]
			}

		case "game.resumed":
			log.SessionActive = true
			if players := stringList(row.Fields["players"]); len(players) > 0 {
				log.Players = players
			}
			if current, ok := row.Fields["current"].(string); ok {
				log.Current = current
			}

		case "turn.advanced", "roll.reset":
			if player, ok := row.Fields["player"].(string); ok {
				log.Current = player
			}

		case "game.finished":
			if player, ok := row.Fields["player"].(string); ok && indexOf(log.Finished, player) < 0 {
				log.Finished = append(log.Finished, player)
			}

		case "game.ended":
			log.Ended = true
			log.SessionActive = false
		}
	}
	return log, nil
}

// stringList converts a decoded JSON array of strings.
func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
