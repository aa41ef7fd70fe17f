package board

import "go.uber.org/zap"

// MoveQuery is the roll-aware input to Moves.
type MoveQuery struct {
	Space     string
	VisitType VisitType
	HasRolled bool
	Rolls     []int
}

func appendUnique(list []string, seen map[string]bool, items ...string) []string {
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			list = append(list, s)
		}
	}
	return list
}

// declared returns the known successors and branch targets of a row, in
// column order followed by branch order.
func declared(g *graph, v *SpaceVisit) []string {
	if v == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, ref := range v.Successors {
		if _, ok := g.spaces[ref]; ok {
			out = appendUnique(out, seen, ref)
		}
	}
	for _, ref := range v.Branches {
		if _, ok := g.spaces[ref]; ok {
			out = appendUnique(out, seen, ref)
		}
	}
	return out
}

func fallback(g *graph, name string) []string {
	i, ok := g.mainIndex[name]
	if !ok || i+1 >= len(g.mainPath) {
		return nil
	}
	return []string{g.mainPath[i+1]}
}

// staticMoves is every destination a turn at name can lead to, whatever the
// visit type or roll.
func staticMoves(g *graph, name string) []string {
	s := g.spaces[name]
	seen := make(map[string]bool)
	var out []string
	for _, vt := range []VisitType{VisitFirst, VisitSubsequent} {
		for _, d := range g.diceFor(name, vt) {
			if !d.Movement {
				continue
			}
			for _, text := range d.Values {
				if dest, ok := destination(g, text); ok {
					out = appendUnique(out, seen, dest)
				}
			}
		}
		moves := declared(g, s.Visit(vt))
		if len(moves) == 0 && g.requiredRolls(name, vt) == 0 {
			moves = fallback(g, name)
		}
		out = appendUnique(out, seen, moves...)
	}
	return out
}

// AvailableMovesForSpace returns every space a turn at name may move to,
// independent of visit type and roll state.
func (b *Board) AvailableMovesForSpace(name string) []string {
	return append([]string(nil), b.loaded().moves[name]...)
}

// Moves resolves the legal moves for one turn:
//  1. movement dice and no roll yet: none, the player must roll first
//  2. movement dice and rolled: the destination of the latest roll, or none
//     if no roll resolves one
//  3. otherwise the declared successors and branch paths
//  4. if none are declared and no roll is required, the next main-path space
func (b *Board) Moves(q MoveQuery) []string {
	g := b.loaded()
	s, ok := g.spaces[q.Space]
	if !ok {
		return nil
	}

	if g.hasMovementDice(q.Space, q.VisitType) {
		if !q.HasRolled {
			return nil
		}
		for i := len(q.Rolls) - 1; i >= 0; i-- {
			for _, d := range g.diceFor(q.Space, q.VisitType) {
				if !d.Movement {
					continue
				}
				text, ok := d.Value(q.Rolls[i])
				if !ok {
					continue
				}
				if dest, ok := destination(g, text); ok {
					return []string{dest}
				}
			}
		}
		b.logger.Warn("roll resolved no destination",
			zap.String("space", q.Space),
			zap.String("visit_type", string(q.VisitType)),
			zap.Ints("rolls", q.Rolls))
		return nil
	}

	moves := declared(g, s.Visit(q.VisitType))
	if len(moves) == 0 && g.requiredRolls(q.Space, q.VisitType) == 0 {
		moves = fallback(g, q.Space)
	}
	return moves
}

// ValidateMoveSequence reports whether to is a valid space and a legal
// destination from from.
func (b *Board) ValidateMoveSequence(from, to string) bool {
	g := b.loaded()
	if !g.valid[to] {
		return false
	}
	for _, m := range g.moves[from] {
		if m == to {
			return true
		}
	}
	return false
}

// Reachable returns every space reachable from start through legal moves,
// including start itself.
func (b *Board) Reachable(start string) map[string]bool {
	g := b.loaded()
	visited := map[string]bool{}
	if _, ok := g.spaces[start]; !ok {
		return visited
	}
	queue := []string{start}
	visited[start] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.moves[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}
