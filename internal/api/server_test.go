package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AaronLay10/ProjectBoard/internal/board"
	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/config"
	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/game"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
	"github.com/AaronLay10/ProjectBoard/internal/storage/memory"
)

func newTestEngine(t *testing.T, bus *events.Bus) *game.Engine {
	t.Helper()
	rules := config.DefaultRules()
	b := board.New(board.Options{
		SpacesPath:  "../game/testdata/spaces.csv",
		DicePath:    "../game/testdata/dice_outcomes.csv",
		StartSpace:  rules.StartSpace,
		PhaseColors: rules.PhaseColors,
	})
	if res := b.Initialize(); !res.Success {
		t.Fatalf("board init failed: %v", res.Errors)
	}
	catalog, _, err := cards.LoadCatalog("../cards/testdata/cards.csv")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return game.New(game.Options{
		Board:   b,
		Store:   storage.New(memory.New(0), storage.Options{Prefix: "api"}),
		Catalog: catalog,
		Bus:     bus,
		Rules:   rules,
		Dice:    game.NewDice(1),
	})
}

func newTestServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()
	bus := events.NewBus(nil, 256)
	t.Cleanup(bus.Close)
	s := New(Options{GameID: "test", Game: newTestEngine(t, bus), Bus: bus})
	s.Readiness().SetGameReady(true)
	return s, bus
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeAction(t *testing.T, w *httptest.ResponseRecorder) ActionResponse {
	t.Helper()
	var resp ActionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func readiness(t *testing.T, s *Server) (int, ReadinessResponse) {
	t.Helper()
	w := do(t, s.Handler(), "GET", "/ready", nil)
	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, resp
}

func TestReadyEndpoint_AllReady(t *testing.T) {
	s, _ := newTestServer(t)
	s.Readiness().SetMQTTState(true, false)
	s.Readiness().SetPostgresState(true, false)

	code, resp := readiness(t, s)
	if code != http.StatusOK || !resp.Ready {
		t.Errorf("expected ready 200, got %d %+v", code, resp)
	}
	for _, name := range []string{"game", "mqtt", "postgres"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("expected %s status 'ok', got '%s'", name, resp.Checks[name].Status)
		}
	}
}

func TestReadyEndpoint_GameNotReady(t *testing.T) {
	s, _ := newTestServer(t)
	s.Readiness().SetGameReady(false)
	s.Readiness().SetMQTTState(false, true)
	s.Readiness().SetPostgresState(false, true)

	code, resp := readiness(t, s)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if resp.Ready || resp.Checks["game"].Status != "not_ready" {
		t.Errorf("expected game not ready, got %+v", resp)
	}
	if resp.NotReadyMsg == "" {
		t.Error("expected non-empty message")
	}
}

func TestReadyEndpoint_OptionalDependenciesUnavailable(t *testing.T) {
	s, _ := newTestServer(t)
	s.Readiness().SetMQTTState(false, true)
	s.Readiness().SetPostgresState(false, true)

	code, resp := readiness(t, s)
	if code != http.StatusOK || !resp.Ready {
		t.Errorf("optional dependencies must not block readiness: %d %+v", code, resp)
	}
	for _, name := range []string{"mqtt", "postgres"} {
		if resp.Checks[name].Status != "unavailable" || !resp.Checks[name].Optional {
			t.Errorf("%s check = %+v", name, resp.Checks[name])
		}
	}
}

func TestReadyEndpoint_RequiredMQTTNotConnected(t *testing.T) {
	s, _ := newTestServer(t)
	s.Readiness().SetMQTTState(false, false)
	s.Readiness().SetPostgresState(false, false)

	code, resp := readiness(t, s)
	if code != http.StatusServiceUnavailable || resp.Ready {
		t.Errorf("expected 503, got %d %+v", code, resp)
	}
	if resp.Checks["mqtt"].Status != "not_ready" {
		t.Errorf("expected mqtt status 'not_ready', got '%s'", resp.Checks["mqtt"].Status)
	}
	if !strings.Contains(resp.NotReadyMsg, "mqtt") || !strings.Contains(resp.NotReadyMsg, "postgres") {
		t.Errorf("message should name both dependencies: %q", resp.NotReadyMsg)
	}
}

func TestStateWithoutGameIsUserError(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), "GET", "/state", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if resp := decodeAction(t, w); resp.Kind != "user" {
		t.Errorf("expected kind user, got %+v", resp)
	}
}

func TestTurnThroughAPI(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	if w := do(t, h, "POST", "/game", ActionRequest{Players: []string{"Alice", "Bob"}}); w.Code != http.StatusOK {
		t.Fatalf("new game: %d %s", w.Code, w.Body.String())
	}

	w := do(t, h, "GET", "/players/Alice/moves", nil)
	var moves []string
	if err := json.NewDecoder(w.Body).Decode(&moves); err != nil {
		t.Fatalf("decode moves: %v", err)
	}
	if len(moves) != 1 || moves[0] != "OWNER-FUND-INITIATION" {
		t.Errorf("moves = %v", moves)
	}

	w = do(t, h, "POST", "/actions/end-turn", ActionRequest{Player: "Bob"})
	if w.Code != http.StatusConflict {
		t.Errorf("out of turn: expected 409, got %d", w.Code)
	}
	if resp := decodeAction(t, w); resp.OK || resp.Kind != "user" || resp.Error == "" {
		t.Errorf("out of turn response = %+v", resp)
	}

	if w := do(t, h, "POST", "/actions/end-turn", ActionRequest{Player: "Alice"}); w.Code != http.StatusOK {
		t.Fatalf("end turn: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, "GET", "/state", nil)
	var view game.View
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if view.Current != "Bob" || view.Players[0].Position != "OWNER-FUND-INITIATION" {
		t.Errorf("state after end turn: current=%s alice=%s", view.Current, view.Players[0].Position)
	}

	w = do(t, h, "GET", "/players/Alice/cards", nil)
	if w.Code != http.StatusOK {
		t.Errorf("cards: %d", w.Code)
	}
	w = do(t, h, "GET", "/players/Mallory/cards", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("unknown player cards: expected 409, got %d", w.Code)
	}

	w = do(t, h, "GET", "/rankings", nil)
	var rankings []game.Ranking
	if err := json.NewDecoder(w.Body).Decode(&rankings); err != nil {
		t.Fatalf("decode rankings: %v", err)
	}
	if len(rankings) != 2 {
		t.Errorf("rankings = %+v", rankings)
	}
}

func TestActionRequestValidation(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, "POST", "/game", ActionRequest{Players: []string{"Alice"}})

	tests := []struct {
		name string
		path string
		body interface{}
		code int
	}{
		{"missing player", "/actions/end-turn", ActionRequest{}, http.StatusBadRequest},
		{"unknown action", "/actions/teleport", ActionRequest{Player: "Alice"}, http.StatusNotFound},
		{"bad card type", "/actions/draw-card", ActionRequest{Player: "Alice", CardType: "Z"}, http.StatusBadRequest},
		{"invalid json", "/actions/roll", "not an object", http.StatusBadRequest},
		{"bad roster", "/game", ActionRequest{Players: []string{"Alice", "Alice"}}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", tt.path, tt.body)
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestDrawCardThroughAPI(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, "POST", "/game", ActionRequest{Players: []string{"Alice"}})

	w := do(t, h, "POST", "/actions/draw-card", ActionRequest{Player: "Alice", CardType: "B", DistributionLevel: "Level 2"})
	if w.Code != http.StatusOK {
		t.Fatalf("draw: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		OK     bool       `json:"ok"`
		Result cards.Card `json:"result"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.CardID != "B002" {
		t.Errorf("expected the level 2 card, got %+v", resp.Result)
	}
}

// failingGame reports an engine failure for every turn action.
type failingGame struct {
	Game
}

func (failingGame) EndTurn(player string) error {
	return &game.ActionError{Kind: game.KindInternal, Op: "end turn", Err: game.ErrStorage}
}

func TestInternalErrorIs500(t *testing.T) {
	bus := events.NewBus(nil, 16)
	defer bus.Close()
	s := New(Options{Game: failingGame{}, Bus: bus})

	w := do(t, s.Handler(), "POST", "/actions/end-turn", ActionRequest{Player: "Alice"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp := decodeAction(t, w); resp.Kind != "internal" {
		t.Errorf("expected kind internal, got %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, "POST", "/game", ActionRequest{Players: []string{"Alice", "Bob"}})

	w := do(t, h, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"# TYPE projectboard_uptime_seconds gauge",
		"projectboard_game_ready{",
		"projectboard_events_total{",
		`game="test"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if !strings.Contains(body, "projectboard_players{") || !strings.Contains(body, "} 2\n") {
		t.Errorf("expected a player count of 2:\n%s", body)
	}
}
