// Package game is the turn and progress state machine. It owns player
// positions, roll state, staged per-turn changes and the finish sequence,
// and persists every committed change through the store.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/board"
	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/config"
	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// Dice produces die values 1..6.
type Dice interface {
	Roll() int
}

type seededDice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDice returns a six-sided die. A zero seed uses the clock.
func NewDice(seed uint64) Dice {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &seededDice{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

func (d *seededDice) Roll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(6) + 1
}

// Options wires an Engine.
type Options struct {
	Board   *board.Board
	Store   *storage.Store
	Catalog *cards.Catalog
	Bus     *events.Bus
	Rules   config.Rules
	Dice    Dice
	Logger  *zap.Logger
}

// Engine is the single state machine of a session. Every public method is
// safe for concurrent use; actions are serialized.
type Engine struct {
	board     *board.Board
	store     *storage.Store
	catalog   *cards.Catalog
	bus       *events.Bus
	rules     config.Rules
	cardRules cards.Rules
	dice      Dice
	logger    *zap.Logger
	processor *Processor

	mu    sync.Mutex
	decks *cards.Decks
	temp  map[string]*TemporaryState
}

// New creates an engine and registers the record validators on the store.
func New(opts Options) *Engine {
	if opts.Board == nil || opts.Store == nil || opts.Catalog == nil {
		panic("game: board, store and catalog are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(opts.Logger, 256)
	}
	rules := opts.Rules.WithDefaults()
	if opts.Dice == nil {
		opts.Dice = NewDice(rules.DiceSeed)
	}

	e := &Engine{
		board:   opts.Board,
		store:   opts.Store,
		catalog: opts.Catalog,
		bus:     opts.Bus,
		rules:   rules,
		cardRules: cards.Rules{
			DebtMultiple:     rules.DebtMultiple,
			ColorBonus:       rules.ColorBonus,
			InvestmentPhases: rules.InvestmentPhases,
		},
		dice:   opts.Dice,
		logger: opts.Logger,
		decks:  cards.NewDecks(opts.Catalog, rules.DiceSeed),
		temp:   make(map[string]*TemporaryState),
	}
	e.processor = NewProcessor(opts.Board, opts.Store, opts.Bus, opts.Logger, engineOps{e})
	registerValidators(opts.Store)
	return e
}

// Decks returns the draw decks of the current game.
func (e *Engine) Decks() *cards.Decks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decks
}

func (e *Engine) emit(level, name, msg string, fields map[string]interface{}) {
	if _, err := e.bus.Emit(level, name, msg, fields); err != nil {
		e.logger.Error("failed to emit event", zap.String("event", name), zap.Error(err))
	}
}

// wrap turns a plain rejection into a user ActionError.
func wrap(op string, err error) error {
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return userErr(op, err)
}

// mutate runs fn against a fresh snapshot and saves the touched records in
// one batch. A failed save reloads and re-runs fn, so every attempt validates
// against current state. Deferred hooks run only after a successful save.
func (e *Engine) mutate(op string, fn func(s *snapshot) error) (*snapshot, error) {
	attempts := e.rules.RetryAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		s, err := e.load()
		if err != nil {
			return nil, wrap(op, err)
		}
		if err := fn(s); err != nil {
			return nil, wrap(op, err)
		}
		s.stamp()
		if e.store.SaveBatch(s.records()) {
			for _, hook := range s.after {
				hook()
			}
			return s, nil
		}
		e.logger.Warn("commit failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))
		if attempt < attempts {
			time.Sleep(e.rules.RetryBackoff())
		}
	}
	e.emit("error", "store.error", "commit failed after retries", map[string]interface{}{
		"op":       op,
		"attempts": attempts,
	})
	return nil, internalErr(op, ErrStorage)
}

// NewGame starts a session with every player on the start space.
func (e *Engine) NewGame(players []string) error {
	const op = "new game"
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.board.Ready() {
		return internalErr(op, ErrNotReady)
	}
	if err := validateRoster(players); err != nil {
		return userErr(op, err)
	}

	start := e.board.StartSpace()
	progress := ProgressState{
		Players:      append([]string(nil), players...),
		MainPath:     e.board.MainPath(),
		ValidSpaces:  e.board.ValidSpaces(),
		Positions:    make(map[string]string, len(players)),
		Selected:     map[string]string{},
		PlayerStates: make(map[string]outcome.Resources, len(players)),
		Timestamp:    time.Now().UnixMilli(),
	}
	hands := make(cards.Collections, len(players))
	scores := make(map[string]int, len(players))
	for _, p := range players {
		progress.Positions[p] = start
		r := outcome.Resources{Money: e.rules.StartingMoney}
		progress.PlayerStates[p] = r
		hands[p] = cards.Hand{}
		scores[p] = Score(r, e.rules.DayValue)
	}
	progress.Roll = newRollState(e.board.RequiredRolls(start, board.VisitFirst))

	records := []storage.Record{
		{Type: storage.TypePlayers, Value: progress.Players},
		{Type: storage.TypeProgressState, Value: progress},
		{Type: storage.TypeVisitHistory, Value: VisitHistory{}},
		{Type: storage.TypePlayerCards, Value: hands},
		{Type: storage.TypeCardHistory, Value: []CardAction{}},
		{Type: storage.TypeFinishedPlayers, Value: []string{}},
		{Type: storage.TypeScores, Value: scores},
		{Type: storage.TypeSpaces, Value: e.board.Summary()},
	}
	saved := false
	for attempt := 1; attempt <= e.rules.RetryAttempts && !saved; attempt++ {
		if saved = e.store.SaveBatch(records); !saved && attempt < e.rules.RetryAttempts {
			time.Sleep(e.rules.RetryBackoff())
		}
	}
	if !saved {
		return internalErr(op, ErrStorage)
	}
	e.store.Clear(storage.TypeDiceRoll)

	e.decks = cards.NewDecks(e.catalog, e.rules.DiceSeed)
	e.temp = make(map[string]*TemporaryState)
	e.emit("info", "game.started", "", map[string]interface{}{
		"players": progress.Players,
		"start":   start,
	})
	return nil
}

// Resume adopts the persisted session. Cards already held or discarded are
// taken out of the decks.
func (e *Engine) Resume() error {
	const op = "resume"
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return userErr(op, err)
	}

	var held []string
	for _, h := range s.hands {
		held = append(held, h.IDs()...)
	}
	last := make(map[string]string)
	for _, h := range s.history {
		last[h.ID] = h.Action
	}
	var discarded []string
	for id, action := range last {
		if action == ActionPlayed || action == ActionDiscarded {
			discarded = append(discarded, id)
		}
	}

	e.decks = cards.NewDecks(e.catalog, e.rules.DiceSeed)
	e.decks.Exclude(held, discarded)
	e.temp = make(map[string]*TemporaryState)
	e.emit("info", "game.resumed", "", map[string]interface{}{
		"players":    s.progress.Players,
		"current":    s.progress.Current(),
		"game_ended": s.progress.GameEnded,
	})
	return nil
}

func validateRoster(players []string) error {
	if len(players) == 0 {
		return fmt.Errorf("%w: no players", ErrInvalidRoster)
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p == "" {
			return fmt.Errorf("%w: empty player name", ErrInvalidRoster)
		}
		if strings.Contains(p, visitKeySep) {
			return fmt.Errorf("%w: player %q contains %q", ErrInvalidRoster, p, visitKeySep)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate player %q", ErrInvalidRoster, p)
		}
		seen[p] = true
	}
	return nil
}

// staged returns the player's temporary state, creating it on first use.
func (e *Engine) staged(player string) *TemporaryState {
	t, ok := e.temp[player]
	if !ok {
		t = &TemporaryState{}
		e.temp[player] = t
	}
	return t
}

// TemporaryState returns a copy of the player's staged changes, or nil.
func (e *Engine) TemporaryState(player string) *TemporaryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.temp[player]
	if !ok {
		return nil
	}
	return t.clone()
}

// checkPlayer rejects unknown and finished players and actions after the end.
func checkPlayer(s *snapshot, player string) error {
	if !s.progress.hasPlayer(player) {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if s.progress.GameEnded {
		return ErrGameEnded
	}
	if s.isFinished(player) {
		return ErrPlayerFinished
	}
	return nil
}

// checkTurn additionally requires player to be the current player.
func checkTurn(s *snapshot, player string) error {
	if err := checkPlayer(s, player); err != nil {
		return err
	}
	if s.progress.Current() != player {
		return fmt.Errorf("%w: current player is %s", ErrNotYourTurn, s.progress.Current())
	}
	return nil
}

// pending returns the player's staged state unless s already holds it.
func (e *Engine) pending(s *snapshot, player string) (*TemporaryState, bool) {
	if s.committed[player] {
		return nil, false
	}
	t, ok := e.temp[player]
	return t, ok
}

// resources returns committed resources plus anything staged.
func (e *Engine) resources(s *snapshot, player string) outcome.Resources {
	r := s.progress.PlayerStates[player]
	if t, ok := e.pending(s, player); ok {
		r = r.Add(t.Delta)
	}
	return r
}

// rollState returns the turn's roll state with the player's staged rolls
// applied. Other players see the persisted state.
func (e *Engine) rollState(s *snapshot, player string) RollState {
	r := s.progress.Roll
	if s.progress.Current() != player {
		return r
	}
	if t, ok := e.pending(s, player); ok {
		for _, v := range t.Rolls {
			r = r.add(v)
		}
	}
	return r
}

func (e *Engine) availableMoves(s *snapshot, player string) []string {
	if s.isFinished(player) {
		return nil
	}
	pos := s.progress.Positions[player]
	if pos == "" || !e.board.IsSpace(pos) {
		return nil
	}
	q := board.MoveQuery{Space: pos, VisitType: s.visits.VisitType(player, pos)}
	if s.progress.Current() == player {
		r := e.rollState(s, player)
		q.HasRolled = r.HasRolled
		q.Rolls = r.Rolls
	}
	var out []string
	for _, m := range e.board.Moves(q) {
		if e.board.IsValidSpace(m) {
			out = append(out, m)
		}
	}
	return out
}

// AvailableMoves returns the legal destinations for player right now.
func (e *Engine) AvailableMoves(player string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.load()
	if err != nil {
		return nil
	}
	return e.availableMoves(s, player)
}

// VisitCount returns how many turns player has completed at space.
func (e *Engine) VisitCount(player, space string) int {
	var v VisitHistory
	e.store.Load(storage.TypeVisitHistory, &v)
	return v.Count(player, space)
}

// Progress returns the persisted progress state.
func (e *Engine) Progress() (ProgressState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.load()
	if err != nil {
		return ProgressState{}, userErr("progress", err)
	}
	return s.progress, nil
}

// Cards returns player's hand including cards staged this turn.
func (e *Engine) Cards(player string) (cards.Hand, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.load()
	if err != nil {
		return nil, userErr("cards", err)
	}
	if !s.progress.hasPlayer(player) {
		return nil, userErr("cards", fmt.Errorf("%w: %s", ErrUnknownPlayer, player))
	}
	return e.handView(s, player), nil
}

func (e *Engine) handView(s *snapshot, player string) cards.Hand {
	h := s.hands[player].Clone()
	if t, ok := e.temp[player]; ok {
		for _, c := range t.Drawn {
			h = h.Add(c)
		}
		for _, r := range t.Removed {
			h, _, _ = h.Remove(r.Card.ID)
		}
	}
	return h
}

// View returns the read model for the presentation layer.
func (e *Engine) View() (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.load()
	if err != nil {
		return View{}, userErr("view", err)
	}

	v := View{
		Progress: s.progress,
		Current:  s.progress.Current(),
		Roll:     e.rollState(s, s.progress.Current()),
		Finished: append([]string{}, s.finished...),
		Scores:   s.scores,
	}
	for _, p := range s.progress.Players {
		pos := s.progress.Positions[p]
		pv := PlayerView{
			Name:      p,
			Position:  pos,
			Phase:     e.board.PhaseForSpace(pos),
			VisitType: s.visits.VisitType(p, pos),
			Stage:     e.stage(s, p),
			Resources: e.resources(s, p),
			Selected:  s.progress.Selected[p],
			Moves:     e.availableMoves(s, p),
		}
		if t, ok := e.temp[p]; ok && !t.Empty() {
			pv.Staged = t.clone()
		}
		if pv.Moves == nil {
			pv.Moves = []string{}
		}
		v.Players = append(v.Players, pv)
	}
	return v, nil
}

func (e *Engine) stage(s *snapshot, player string) TurnStage {
	switch {
	case s.isFinished(player):
		return StageFinished
	case s.progress.Current() != player || s.progress.GameEnded:
		return StageWaiting
	case s.progress.Selected[player] != "":
		return StageMoveSelected
	}
	switch r := e.rollState(s, player); {
	case r.RollsRequired == 0:
		return StageReady
	case r.HasRolled:
		return StageRolled
	}
	return StageAwaitingRoll
}

// engineOps gives the processor access to engine internals while the engine
// lock is already held by the action that ran the processor.
type engineOps struct {
	e *Engine
}

func (o engineOps) Stage(player string, delta outcome.Resources, note string) {
	t := o.e.staged(player)
	t.Delta = t.Delta.Add(delta)
	if note != "" {
		t.Notes = append(t.Notes, note)
	}
}

func (o engineOps) Draw(player string, t cards.Type) (cards.Card, error) {
	return o.e.drawLocked(player, t, cards.Filters{})
}

func (o engineOps) SelectMove(player, target string) error {
	return o.e.selectLocked(player, target)
}
