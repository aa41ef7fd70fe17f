package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/ProjectBoard/internal/version"
)

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.readiness.mu.RLock()
	gameReady := s.readiness.gameReady
	mqttConnected := s.readiness.mqttConnected
	postgresConnected := s.readiness.postgresConnected
	s.readiness.mu.RUnlock()

	players, finished, ended := 0, 0, 0
	if v, err := s.game.View(); err == nil {
		players = len(v.Players)
		finished = len(v.Finished)
		if v.Progress.GameEnded {
			ended = 1
		}
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`game="%s",instance="%s",version="%s"`, s.gameID, hostname, version.Version)

	writeMetric("projectboard_uptime_seconds", "gauge",
		"Number of seconds since the service started", time.Since(s.startTime).Seconds(), labels)
	writeMetric("projectboard_game_ready", "gauge",
		"Whether the board and engine are initialized (1) or not (0)", boolGauge(gameReady), labels)
	writeMetric("projectboard_players", "gauge",
		"Number of players in the current game", players, labels)
	writeMetric("projectboard_players_finished", "gauge",
		"Number of players who reached the finish space", finished, labels)
	writeMetric("projectboard_game_ended", "gauge",
		"Whether every player has finished (1) or not (0)", ended, labels)
	writeMetric("projectboard_events_total", "counter",
		"Total number of events emitted since startup", s.bus.TotalCount(), labels)
	writeMetric("projectboard_mqtt_connected", "gauge",
		"Whether the sync broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("projectboard_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
	writeMetric("projectboard_ws_clients", "gauge",
		"Number of active event stream subscribers", s.bus.SubscriberCount(), labels)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
