package world

// Occupancy is the set of cells holding an agent at the start of a tick.
type Occupancy map[Position]struct{}

// NewOccupancy builds an occupancy set from positions.
func NewOccupancy(positions ...Position) Occupancy {
	o := make(Occupancy, len(positions))
	for _, p := range positions {
		o[p] = struct{}{}
	}
	return o
}

// Has reports whether p is occupied.
func (o Occupancy) Has(p Position) bool {
	_, ok := o[p]
	return ok
}

// Neighbors returns the four orthogonal neighbours of p in the order
// down, up, right, left.
func Neighbors(p Position) [4]Position {
	return [4]Position{
		{X: p.X, Y: p.Y + 1},
		{X: p.X, Y: p.Y - 1},
		{X: p.X + 1, Y: p.Y},
		{X: p.X - 1, Y: p.Y},
	}
}

// Manhattan returns |dx| + |dy| between two cells.
func Manhattan(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Adjacent reports whether two cells are the same or orthogonal neighbours.
func Adjacent(a, b Position) bool {
	return Manhattan(a, b) <= 1
}

// Step moves one cell from current toward target using a greedy heuristic:
// the axis with the larger remaining distance goes first (y first on ties),
// falling back to the other axis, then to staying put. Candidates must be
// walkable and unoccupied. This is not shortest-path routing; an agent can
// stall behind an obstacle.
func Step(g *Grid, current, target Position, occupied Occupancy) Position {
	if current == target {
		return current
	}

	dx := abs(target.X - current.X)
	dy := abs(target.Y - current.Y)
	xMove := Position{X: current.X + sign(target.X-current.X), Y: current.Y}
	yMove := Position{X: current.X, Y: current.Y + sign(target.Y-current.Y)}

	order := [2]Position{yMove, xMove}
	if dx > dy {
		order = [2]Position{xMove, yMove}
	}

	for _, next := range order {
		if next == current {
			continue
		}
		if g.IsWalkable(next.X, next.Y) && !occupied.Has(next) {
			return next
		}
	}
	return current
}

// Wander picks uniformly among the walkable, unoccupied orthogonal
// neighbours of current. intn must return a value in [0, n).
func Wander(g *Grid, current Position, occupied Occupancy, intn func(n int) int) Position {
	var valid []Position
	for _, n := range Neighbors(current) {
		if g.IsWalkable(n.X, n.Y) && !occupied.Has(n) {
			valid = append(valid, n)
		}
	}
	if len(valid) == 0 {
		return current
	}
	return valid[intn(len(valid))]
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
