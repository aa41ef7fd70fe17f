// Package board is the space graph: spaces, dice outcome tables, move
// resolution and the canonical main path, loaded once from the spaces and
// dice datasets.
package board

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/lifecycle"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
)

// ErrNotInitialized is returned by WaitReady when initialization failed.
var ErrNotInitialized = errors.New("board not initialized")

// Options configures a Board.
type Options struct {
	SpacesPath  string
	DicePath    string
	StartSpace  string
	FinishSpace string
	PhaseColors map[string]string
	Logger      *zap.Logger
}

// InitResult reports the outcome of Initialize. Errors are fatal; warnings
// describe cells that were ignored.
type InitResult struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Board answers move and dice questions about the loaded datasets. All query
// methods return zero values until Initialize has succeeded.
type Board struct {
	opts    Options
	logger  *zap.Logger
	barrier *lifecycle.Barrier

	mu     sync.Mutex
	result *InitResult
	g      atomic.Pointer[graph]
}

// graph is the immutable loaded state.
type graph struct {
	spaces    map[string]*Space
	order     []string
	dice      map[diceKey][]*DiceOutcomeEntry
	mainPath  []string
	mainIndex map[string]int
	valid     map[string]bool
	moves     map[string][]string
	parser    *outcome.Parser
}

type diceKey struct {
	space string
	visit VisitType
}

// diceFor returns the dice of name for vt. A visit type without its own row
// uses the First row, so it also uses the First dice.
func (g *graph) diceFor(name string, vt VisitType) []*DiceOutcomeEntry {
	if d := g.dice[diceKey{name, vt}]; len(d) > 0 {
		return d
	}
	s, ok := g.spaces[name]
	if !ok || vt == VisitFirst {
		return nil
	}
	if _, own := s.Visits[vt]; own {
		return nil
	}
	return g.dice[diceKey{name, VisitFirst}]
}

func (g *graph) hasMovementDice(name string, vt VisitType) bool {
	for _, d := range g.diceFor(name, vt) {
		if d.Movement {
			return true
		}
	}
	return false
}

func (g *graph) requiredRolls(name string, vt VisitType) int {
	n := 0
	if s, ok := g.spaces[name]; ok {
		if v := s.Visit(vt); v != nil {
			n = v.DiceRolls
		}
	}
	if n == 0 && g.hasMovementDice(name, vt) {
		n = 1
	}
	return n
}

// New creates an uninitialized board.
func New(opts Options) *Board {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FinishSpace == "" {
		opts.FinishSpace = "FINISH"
	}
	return &Board{
		opts:    opts,
		logger:  opts.Logger,
		barrier: lifecycle.NewBarrier(),
	}
}

// WaitReady blocks until Initialize has finished or ctx is done.
func (b *Board) WaitReady(ctx context.Context) error {
	return b.barrier.Wait(ctx)
}

// Ready reports whether the board initialized successfully.
func (b *Board) Ready() bool {
	return b.g.Load() != nil
}

func (b *Board) loaded() *graph {
	if g := b.g.Load(); g != nil {
		return g
	}
	return &graph{}
}

// StartSpace returns the configured start space, or the first main-path space.
func (b *Board) StartSpace() string {
	if b.opts.StartSpace != "" {
		return b.opts.StartSpace
	}
	if mp := b.loaded().mainPath; len(mp) > 0 {
		return mp[0]
	}
	return ""
}

// FinishSpace returns the terminal space name.
func (b *Board) FinishSpace() string {
	return b.opts.FinishSpace
}

// IsSpace reports whether name is a row in the spaces dataset.
func (b *Board) IsSpace(name string) bool {
	_, ok := b.loaded().spaces[name]
	return ok
}

// Space returns the space named name.
func (b *Board) Space(name string) (*Space, bool) {
	s, ok := b.loaded().spaces[name]
	return s, ok
}

// SpaceVisit returns the row of name for vt.
func (b *Board) SpaceVisit(name string, vt VisitType) (*SpaceVisit, bool) {
	s, ok := b.Space(name)
	if !ok {
		return nil, false
	}
	v := s.Visit(vt)
	return v, v != nil
}

// PhaseForSpace returns the phase of name, or "" for an unknown space.
func (b *Board) PhaseForSpace(name string) string {
	if s, ok := b.Space(name); ok {
		return s.Phase
	}
	return ""
}

// ColorForSpace returns the colour of the space's phase.
func (b *Board) ColorForSpace(name string) string {
	return b.opts.PhaseColors[b.PhaseForSpace(name)]
}

// MainPath returns the canonical progression.
func (b *Board) MainPath() []string {
	return append([]string(nil), b.loaded().mainPath...)
}

// IsOnMainPath reports whether name is on the main path.
func (b *Board) IsOnMainPath(name string) bool {
	_, ok := b.loaded().mainIndex[name]
	return ok
}

// IsValidSpace reports whether name is in the valid-space set.
func (b *Board) IsValidSpace(name string) bool {
	return b.loaded().valid[name]
}

// ValidSpaces returns the valid-space set, sorted.
func (b *Board) ValidSpaces() []string {
	g := b.loaded()
	out := make([]string, 0, len(g.valid))
	for s := range g.valid {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DiceEntries returns every dice category for a space and visit type.
func (b *Board) DiceEntries(name string, vt VisitType) []*DiceOutcomeEntry {
	return b.loaded().diceFor(name, vt)
}

// HasMovementDice reports whether a roll decides where the player goes next.
func (b *Board) HasMovementDice(name string, vt VisitType) bool {
	return b.loaded().hasMovementDice(name, vt)
}

// RequiredRolls returns how many rolls a turn at name needs.
func (b *Board) RequiredRolls(name string, vt VisitType) int {
	return b.loaded().requiredRolls(name, vt)
}

// IsDiceRollRequired reports whether a turn at name needs at least one roll.
func (b *Board) IsDiceRollRequired(name string, vt VisitType) bool {
	return b.RequiredRolls(name, vt) > 0
}

// DiceOutcomes returns the outcome of every category for a roll.
func (b *Board) DiceOutcomes(name string, vt VisitType, roll int) []Outcome {
	var out []Outcome
	for _, d := range b.DiceEntries(name, vt) {
		if text, ok := d.Value(roll); ok {
			out = append(out, Outcome{Category: d.Category, Text: text, Movement: d.Movement})
		}
	}
	return out
}

// DiceOutcome returns the outcome text for a roll at name, preferring the
// movement category of the First visit.
func (b *Board) DiceOutcome(name string, roll int) (string, bool) {
	for _, vt := range []VisitType{VisitFirst, VisitSubsequent} {
		outs := b.DiceOutcomes(name, vt, roll)
		for _, o := range outs {
			if o.Movement {
				return o.Text, true
			}
		}
		if len(outs) > 0 {
			return outs[0].Text, true
		}
	}
	return "", false
}

// Destination extracts a known space from outcome text.
func (b *Board) Destination(text string) (string, bool) {
	g := b.loaded()
	if g.parser == nil {
		return "", false
	}
	for _, m := range g.parser.Parse(text).Moves {
		if _, ok := g.spaces[m]; ok {
			return m, true
		}
	}
	return "", false
}

// Parser returns the outcome parser bound to this board's space names.
func (b *Board) Parser() *outcome.Parser {
	if p := b.loaded().parser; p != nil {
		return p
	}
	return outcome.NewParser(nil)
}

// Summary returns one entry per space in dataset order.
func (b *Board) Summary() []SpaceSummary {
	g := b.loaded()
	out := make([]SpaceSummary, 0, len(g.order))
	for _, name := range g.order {
		s := g.spaces[name]
		v := s.Visit(VisitFirst)
		out = append(out, SpaceSummary{
			Name:      name,
			Phase:     s.Phase,
			Color:     b.opts.PhaseColors[s.Phase],
			MainPath:  b.IsOnMainPath(name),
			Negotiate: v != nil && v.Negotiate,
			Moves:     b.AvailableMovesForSpace(name),
		})
	}
	return out
}
