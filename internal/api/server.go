// Package api is the collaborator surface for the presentation layer: read
// models, turn actions, the live event stream and runtime metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/game"
)

// Game is the part of the engine the API drives.
type Game interface {
	NewGame(players []string) error
	View() (game.View, error)
	AvailableMoves(player string) []string
	Cards(player string) (cards.Hand, error)
	Rankings() ([]game.Ranking, error)

	Roll(player string) (*game.Report, error)
	SelectMove(player, target string) error
	EndTurn(player string) error
	Negotiate(player string) error
	DrawCard(player string, t cards.Type, f cards.Filters) (cards.Card, error)
	PlayCard(player, id string) (cards.Result, error)
	DiscardCard(player, id string) error
}

// Options configures a Server.
type Options struct {
	Addr   string
	GameID string
	Game   Game
	Bus    *events.Bus
	Logger *zap.Logger
}

// Server serves the API for one game session.
type Server struct {
	game      Game
	bus       *events.Bus
	logger    *zap.Logger
	addr      string
	gameID    string
	startTime time.Time
	readiness *Readiness
}

// New creates a server. The game and bus are required.
func New(opts Options) *Server {
	if opts.Game == nil || opts.Bus == nil {
		panic("api: game and bus are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		game:      opts.Game,
		bus:       opts.Bus,
		logger:    opts.Logger,
		addr:      opts.Addr,
		gameID:    opts.GameID,
		startTime: time.Now(),
		readiness: &Readiness{},
	}
}

// Readiness returns the dependency state reported by /ready.
func (s *Server) Readiness() *Readiness {
	return s.readiness
}

// Readiness tracks whether the game and its optional dependencies are up.
type Readiness struct {
	mu                sync.RWMutex
	gameReady         bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// SetGameReady marks the board and engine as initialized.
func (r *Readiness) SetGameReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gameReady = ready
}

// SetMQTTState records the sync broker connection. An optional dependency
// that is down does not make the service unready.
func (r *Readiness) SetMQTTState(connected, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mqttConnected = connected
	r.mqttOptional = optional
}

// SetPostgresState records the database connection.
func (r *Readiness) SetPostgresState(connected, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postgresConnected = connected
	r.postgresOptional = optional
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

// CheckStatus is one dependency in a readiness response.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// ActionRequest is the body of every POST action.
type ActionRequest struct {
	Player            string   `json:"player"`
	Players           []string `json:"players,omitempty"`
	Target            string   `json:"target,omitempty"`
	CardType          string   `json:"card_type,omitempty"`
	CardID            string   `json:"card_id,omitempty"`
	Phase             string   `json:"phase,omitempty"`
	DistributionLevel string   `json:"distribution_level,omitempty"`
}

type ActionResponse struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Kind   string      `json:"kind,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.HandleFunc("GET /state", s.stateHandler)
	mux.HandleFunc("GET /players/{player}/moves", s.movesHandler)
	mux.HandleFunc("GET /players/{player}/cards", s.cardsHandler)
	mux.HandleFunc("GET /rankings", s.rankingsHandler)
	mux.HandleFunc("GET /events", s.eventsHandler)
	mux.HandleFunc("GET /ws", s.wsEventsHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("POST /game", s.newGameHandler)
	mux.HandleFunc("POST /actions/{action}", s.actionHandler)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors: user errors are 409, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	if game.IsUserError(err) {
		writeJSON(w, http.StatusConflict, ActionResponse{OK: false, Error: err.Error(), Kind: game.KindUser.String()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ActionResponse{OK: false, Error: err.Error(), Kind: game.KindInternal.String()})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "projectboard",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	rd := s.readiness
	rd.mu.RLock()
	gameReady := rd.gameReady
	deps := []struct {
		name      string
		connected bool
		optional  bool
	}{
		{"mqtt", rd.mqttConnected, rd.mqttOptional},
		{"postgres", rd.postgresConnected, rd.postgresOptional},
	}
	rd.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckStatus)}
	var reasons []string

	if gameReady {
		resp.Checks["game"] = CheckStatus{Status: "ok"}
	} else {
		resp.Checks["game"] = CheckStatus{Status: "not_ready"}
		resp.Ready = false
		reasons = append(reasons, "game not initialized")
	}
	for _, d := range deps {
		switch {
		case d.connected:
			resp.Checks[d.name] = CheckStatus{Status: "ok", Optional: d.optional}
		case d.optional:
			resp.Checks[d.name] = CheckStatus{Status: "unavailable", Optional: true}
		default:
			resp.Checks[d.name] = CheckStatus{Status: "not_ready"}
			resp.Ready = false
			reasons = append(reasons, d.name+" not connected")
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
		resp.NotReadyMsg = strings.Join(reasons, "; ")
	}
	writeJSON(w, status, resp)
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.game.View()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) movesHandler(w http.ResponseWriter, r *http.Request) {
	moves := s.game.AvailableMoves(r.PathValue("player"))
	if moves == nil {
		moves = []string{}
	}
	writeJSON(w, http.StatusOK, moves)
}

func (s *Server) cardsHandler(w http.ResponseWriter, r *http.Request) {
	hand, err := s.game.Cards(r.PathValue("player"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hand)
}

func (s *Server) rankingsHandler(w http.ResponseWriter, r *http.Request) {
	rankings, err := s.game.Rankings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rankings)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.Snapshot())
}

func (s *Server) newGameHandler(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{OK: false, Error: "invalid JSON"})
		return
	}
	if err := s.game.NewGame(req.Players); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{OK: true})
}

func (s *Server) actionHandler(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{OK: false, Error: "invalid JSON"})
		return
	}
	if req.Player == "" {
		writeJSON(w, http.StatusBadRequest, ActionResponse{OK: false, Error: "player required"})
		return
	}

	var (
		result interface{}
		err    error
	)
	switch action := r.PathValue("action"); action {
	case "roll":
		result, err = s.game.Roll(req.Player)
	case "select-move":
		err = s.game.SelectMove(req.Player, req.Target)
	case "end-turn":
		err = s.game.EndTurn(req.Player)
	case "negotiate":
		err = s.game.Negotiate(req.Player)
	case "draw-card":
		t, ok := cards.ParseType(req.CardType)
		if !ok {
			writeJSON(w, http.StatusBadRequest, ActionResponse{OK: false, Error: "unknown card type"})
			return
		}
		result, err = s.game.DrawCard(req.Player, t, cards.Filters{
			Phase:             req.Phase,
			DistributionLevel: req.DistributionLevel,
		})
	case "play-card":
		result, err = s.game.PlayCard(req.Player, req.CardID)
	case "discard-card":
		err = s.game.DiscardCard(req.Player, req.CardID)
	default:
		writeJSON(w, http.StatusNotFound, ActionResponse{OK: false, Error: "unknown action " + action})
		return
	}

	if err != nil {
		s.logger.Debug("action rejected",
			zap.String("action", r.PathValue("action")),
			zap.String("player", req.Player),
			zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{OK: true, Result: result})
}
