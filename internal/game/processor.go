package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/board"
	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// Stager receives the resource and card effects of an outcome.
type Stager interface {
	Stage(player string, delta outcome.Resources, note string)
	Draw(player string, t cards.Type) (cards.Card, error)
}

// Positioner receives movement directives.
type Positioner interface {
	SelectMove(player, target string) error
}

// TurnOps is everything the processor drives.
type TurnOps interface {
	Stager
	Positioner
}

// Request identifies one roll to process.
type Request struct {
	Player    string
	Space     string
	VisitType board.VisitType
	Roll      int
	Base      outcome.Resources
}

// Report is what a roll did. It is persisted as the diceRoll record.
type Report struct {
	Player    string            `json:"player"`
	Space     string            `json:"space"`
	VisitType board.VisitType   `json:"visit_type"`
	Roll      int               `json:"roll"`
	Outcomes  []board.Outcome   `json:"outcomes"`
	Effects   outcome.Effects   `json:"effects"`
	Delta     outcome.Resources `json:"delta"`
	Drawn     []string          `json:"drawn,omitempty"`
	Moves     []string          `json:"moves,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Processor turns a roll into staged effects, card draws and a move
// selection, in that order, then persists the report.
type Processor struct {
	board  *board.Board
	store  *storage.Store
	bus    *events.Bus
	logger *zap.Logger
	ops    TurnOps
}

// NewProcessor creates a processor driving ops.
func NewProcessor(b *board.Board, store *storage.Store, bus *events.Bus, logger *zap.Logger, ops TurnOps) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{board: b, store: store, bus: bus, logger: logger, ops: ops}
}

// Execute runs the pipeline. A failing draw or move is recorded in the
// report and the remaining items still run. The returned error only reports
// a failure to persist the report.
func (p *Processor) Execute(req Request) (*Report, error) {
	rep := &Report{
		Player:    req.Player,
		Space:     req.Space,
		VisitType: req.VisitType,
		Roll:      req.Roll,
		Outcomes:  p.board.DiceOutcomes(req.Space, req.VisitType, req.Roll),
		Timestamp: time.Now().UnixMilli(),
	}

	// Stage 1: every rule of every category outcome applies.
	parser := p.board.Parser()
	for _, o := range rep.Outcomes {
		rep.Effects.Merge(parser.Parse(o.Text))
	}
	rep.Delta = rep.Effects.Delta(req.Base)
	if !rep.Delta.IsZero() {
		p.ops.Stage(req.Player, rep.Delta, fmt.Sprintf("roll %d at %s", req.Roll, req.Space))
	}
	p.emit("info", "outcome.applied", "", map[string]interface{}{
		"player":  req.Player,
		"space":   req.Space,
		"roll":    req.Roll,
		"delta":   rep.Delta,
		"matched": rep.Effects.Matched,
	})

	// Stage 2: card draws.
	for _, d := range rep.Effects.Draws {
		t, ok := cards.ParseType(d.Type)
		if !ok {
			p.fail(rep, fmt.Sprintf("unknown card type %q", d.Type))
			continue
		}
		for i := 0; i < d.Count; i++ {
			c, err := p.ops.Draw(req.Player, t)
			if err != nil {
				p.fail(rep, err.Error())
				continue
			}
			rep.Drawn = append(rep.Drawn, c.ID)
		}
	}

	// Stage 3: movement.
	for _, m := range rep.Effects.Moves {
		if err := p.ops.SelectMove(req.Player, m); err != nil {
			p.fail(rep, err.Error())
			continue
		}
		rep.Moves = append(rep.Moves, m)
	}

	// Stage 4: persist.
	if !p.store.Save(storage.TypeDiceRoll, rep) {
		return rep, fmt.Errorf("failed to save %s", storage.TypeDiceRoll)
	}
	return rep, nil
}

func (p *Processor) fail(rep *Report, msg string) {
	rep.Errors = append(rep.Errors, msg)
	p.logger.Warn("outcome item failed",
		zap.String("player", rep.Player),
		zap.String("space", rep.Space),
		zap.Int("roll", rep.Roll),
		zap.String("error", msg))
	p.emit("warning", "outcome.error", msg, map[string]interface{}{
		"player": rep.Player,
		"space":  rep.Space,
		"roll":   rep.Roll,
	})
}

func (p *Processor) emit(level, name, msg string, fields map[string]interface{}) {
	if p.bus == nil {
		return
	}
	if _, err := p.bus.Emit(level, name, msg, fields); err != nil {
		p.logger.Error("failed to emit event", zap.String("event", name), zap.Error(err))
	}
}
