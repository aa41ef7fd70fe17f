package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/dataset"
	"github.com/AaronLay10/ProjectBoard/internal/outcome"
)

// Required dataset columns.
var (
	SpaceColumns = []string{
		"Space Name", "Phase", "Visit Type", "Event", "Action", "Outcome", "Time", "Fee",
		"Space 1", "Space 2", "Space 3", "Space 4", "Space 5", "Negotiate",
	}
	DiceColumns = []string{"Space Name", "Die Roll", "Visit Type", "1", "2", "3", "4", "5", "6"}

	successorColumns = []string{"Space 1", "Space 2", "Space 3", "Space 4", "Space 5"}
	cardColumns      = []string{"W", "B", "I", "L", "E"}
)

// Initialize loads both datasets. It is idempotent: later calls return the
// first call's result without reloading.
func (b *Board) Initialize() InitResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result != nil {
		return *b.result
	}

	res := b.load()
	b.result = &res
	for _, w := range res.Warnings {
		b.logger.Warn("board data warning", zap.String("detail", w))
	}
	if res.Success {
		b.logger.Info("board initialized",
			zap.Int("spaces", len(b.loaded().spaces)),
			zap.Int("main_path", len(b.loaded().mainPath)),
			zap.Int("warnings", len(res.Warnings)))
		b.barrier.Resolve(nil)
	} else {
		b.logger.Error("board initialization failed", zap.Strings("errors", res.Errors))
		b.barrier.Resolve(fmt.Errorf("%w: %s", ErrNotInitialized, strings.Join(res.Errors, "; ")))
	}
	return res
}

func (b *Board) load() InitResult {
	var res InitResult

	spaces, err := dataset.ParseFile(b.opts.SpacesPath)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	dice, err := dataset.ParseFile(b.opts.DicePath)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	if len(res.Errors) > 0 {
		return res
	}

	var mc *dataset.MissingColumnsError
	for _, check := range []error{spaces.Require(SpaceColumns...), dice.Require(DiceColumns...)} {
		if errors.As(check, &mc) {
			res.Errors = append(res.Errors, mc.Error())
		}
	}
	if len(spaces.Rows) == 0 {
		res.Errors = append(res.Errors, spaces.Name+": no spaces defined")
	}
	if len(res.Errors) > 0 {
		return res
	}

	g, warnings := build(spaces, dice, b.opts)
	res.Warnings = warnings
	res.Success = true
	b.g.Store(g)
	return res
}

func isExcluded(ref string) bool {
	switch strings.ToUpper(ref) {
	case "", "N/A", "NA", "NONE", "-":
		return true
	}
	return false
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' || r == ',' })
	var out []string
	for _, f := range fields {
		if ref := outcome.CleanDestination(f); !isExcluded(ref) {
			out = append(out, ref)
		}
	}
	return out
}

func parseFee(s string) Fee {
	s = strings.TrimSpace(s)
	n, ok := dataset.ParseInt(s)
	if !ok {
		return Fee{}
	}
	return Fee{Amount: n, Percent: strings.HasSuffix(s, "%")}
}

func parseDiceRolls(s string) int {
	if b, ok := dataset.ParseBool(s); ok {
		if b {
			return 1
		}
		return 0
	}
	if n, ok := dataset.ParseInt(s); ok && n > 0 {
		return n
	}
	return 0
}

func parseCardRequirement(cardType, cell string) (CardRequirement, bool) {
	fields := strings.Fields(strings.ToLower(cell))
	if len(fields) == 0 {
		return CardRequirement{}, false
	}
	action, count := "draw", 1
	if n, err := strconv.Atoi(fields[0]); err == nil {
		count = n
	} else {
		action = fields[0]
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				count = n
			}
		}
	}
	switch action {
	case "draw", "remove", "return":
	default:
		return CardRequirement{}, false
	}
	if count <= 0 {
		return CardRequirement{}, false
	}
	return CardRequirement{CardType: cardType, Action: action, Count: count}, true
}

func build(spaces, dice *dataset.Table, opts Options) (*graph, []string) {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	g := &graph{
		spaces:    make(map[string]*Space),
		dice:      make(map[diceKey][]*DiceOutcomeEntry),
		mainIndex: make(map[string]int),
		valid:     make(map[string]bool),
		moves:     make(map[string][]string),
	}

	for _, row := range spaces.Rows {
		name := row.String("Space Name")
		if name == "" {
			warn("%s:%d: row without a space name", spaces.Name, row.Line)
			continue
		}
		vt, ok := ParseVisitType(row.String("Visit Type"))
		if !ok {
			warn("%s:%d: %s has unknown visit type %q", spaces.Name, row.Line, name, row.String("Visit Type"))
			continue
		}

		s, exists := g.spaces[name]
		if !exists {
			s = &Space{Name: name, Phase: row.String("Phase"), Visits: make(map[VisitType]*SpaceVisit)}
			g.spaces[name] = s
			g.order = append(g.order, name)
		}
		if _, dup := s.Visits[vt]; dup {
			warn("%s:%d: duplicate %s row for %s ignored", spaces.Name, row.Line, vt, name)
			continue
		}

		v := &SpaceVisit{
			VisitType: vt,
			Event:     row.String("Event"),
			Action:    row.String("Action"),
			Outcome:   row.String("Outcome"),
			Time:      row.IntOr("Time", 0),
			Fee:       parseFee(row.String("Fee")),
			Negotiate: row.Bool("Negotiate"),
			DiceRolls: parseDiceRolls(row.String("Requires Dice Roll")),
			Branches:  splitList(row.String("Branch Paths")),
		}
		for _, col := range successorColumns {
			if ref := outcome.CleanDestination(row.String(col)); !isExcluded(ref) {
				v.Successors = append(v.Successors, ref)
			}
		}
		for _, ct := range cardColumns {
			cell := row.String(ct + " Card")
			if cell == "" {
				continue
			}
			if req, ok := parseCardRequirement(ct, cell); ok {
				v.CardRequirements = append(v.CardRequirements, req)
			} else {
				warn("%s:%d: %s has unreadable %s Card requirement %q", spaces.Name, row.Line, name, ct, cell)
			}
		}
		s.Visits[vt] = v
	}

	g.parser = outcome.NewParser(func(name string) bool {
		_, ok := g.spaces[name]
		return ok
	})

	for _, row := range dice.Rows {
		name := row.String("Space Name")
		vt, ok := ParseVisitType(row.String("Visit Type"))
		if !ok {
			warn("%s:%d: unknown visit type %q", dice.Name, row.Line, row.String("Visit Type"))
			continue
		}
		if _, known := g.spaces[name]; !known {
			warn("%s:%d: dice outcome references unknown space %q", dice.Name, row.Line, name)
			continue
		}
		d := &DiceOutcomeEntry{
			Space:     name,
			VisitType: vt,
			Category:  row.String("Die Roll"),
		}
		d.Movement = strings.EqualFold(d.Category, "Next Step")
		for i := 0; i < 6; i++ {
			raw := row.String(strconv.Itoa(i + 1))
			d.Raw[i] = raw
			d.Values[i] = outcome.Normalize(d.Category, raw)
			if _, known := g.spaces[outcome.CleanDestination(raw)]; known {
				d.Movement = true
			}
		}
		key := diceKey{name, vt}
		g.dice[key] = append(g.dice[key], d)
	}

	// Spaces reachable only through a branch list stay off the main path.
	successorRefs := make(map[string]bool)
	branchRefs := make(map[string]bool)
	for _, name := range g.order {
		for _, v := range g.spaces[name].Visits {
			for _, s := range v.Successors {
				successorRefs[s] = true
			}
			for _, s := range v.Branches {
				branchRefs[s] = true
			}
		}
	}
	for _, name := range g.order {
		if branchRefs[name] && !successorRefs[name] && name != opts.StartSpace {
			continue
		}
		g.mainIndex[name] = len(g.mainPath)
		g.mainPath = append(g.mainPath, name)
	}

	for _, name := range g.mainPath {
		g.valid[name] = true
	}
	if _, ok := g.spaces[opts.FinishSpace]; ok {
		g.valid[opts.FinishSpace] = true
	} else {
		warn("finish space %q is not defined", opts.FinishSpace)
	}
	if opts.StartSpace != "" {
		if _, ok := g.spaces[opts.StartSpace]; !ok {
			warn("start space %q is not defined", opts.StartSpace)
		}
	}

	for _, name := range g.order {
		s := g.spaces[name]
		for _, vt := range []VisitType{VisitFirst, VisitSubsequent} {
			v, ok := s.Visits[vt]
			if !ok {
				continue
			}
			for _, ref := range append(append([]string(nil), v.Successors...), v.Branches...) {
				if _, known := g.spaces[ref]; known {
					g.valid[ref] = true
				} else {
					warn("%s (%s) references unknown space %q", name, vt, ref)
				}
			}
			if v.DiceRolls > 0 && len(g.diceFor(name, vt)) == 0 {
				warn("%s (%s) requires a dice roll but has no dice outcomes", name, vt)
			}
		}
		for _, vt := range []VisitType{VisitFirst, VisitSubsequent} {
			for _, d := range g.dice[diceKey{name, vt}] {
				if !d.Movement {
					continue
				}
				for _, text := range d.Values {
					if dest, ok := destination(g, text); ok {
						g.valid[dest] = true
					}
				}
			}
		}
	}

	for _, name := range g.order {
		g.moves[name] = staticMoves(g, name)
	}

	return g, warnings
}

func destination(g *graph, text string) (string, bool) {
	for _, m := range g.parser.Parse(text).Moves {
		if _, ok := g.spaces[m]; ok {
			return m, true
		}
	}
	return "", false
}
