package hex

import "math"

// Layout describes the playable board. World conversion is only used for
// diagnostics and never by simulation logic.
type Layout interface {
	Contains(c Cell) bool
	Neighbors(c Cell) []Cell
	WorldToCell(x, y float64) Cell
	CellToWorld(c Cell) (float64, float64)
}

// Grid is a hexagon-shaped board of the given radius around Origin, using
// pointy-top world coordinates.
type Grid struct {
	Origin Cell
	Radius int
	Size   float64
}

// NewGrid creates a board of the given radius centred on the origin.
func NewGrid(radius int, size float64) *Grid {
	if size <= 0 {
		size = 1
	}
	return &Grid{Radius: radius, Size: size}
}

// Contains reports whether c lies on the board.
func (g *Grid) Contains(c Cell) bool {
	return Distance(g.Origin, c) <= g.Radius
}

// Neighbors returns the on-board neighbours of c.
func (g *Grid) Neighbors(c Cell) []Cell {
	all := c.Neighbors()
	out := all[:0]
	for _, n := range all {
		if g.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Cells enumerates every cell on the board.
func (g *Grid) Cells() []Cell {
	var out []Cell
	for q := -g.Radius; q <= g.Radius; q++ {
		for r := -g.Radius; r <= g.Radius; r++ {
			c := g.Origin.Add(Cell{Q: q, R: r})
			if g.Contains(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// CellToWorld returns the centre of c in world units.
func (g *Grid) CellToWorld(c Cell) (float64, float64) {
	x := g.Size * math.Sqrt(3) * (float64(c.Q) + float64(c.R)/2)
	y := g.Size * 1.5 * float64(c.R)
	return x, y
}

// WorldToCell returns the cell containing the world point.
func (g *Grid) WorldToCell(x, y float64) Cell {
	q := (math.Sqrt(3)/3*x - y/3) / g.Size
	r := (2.0 / 3.0 * y) / g.Size
	return roundAxial(q, r)
}

func roundAxial(q, r float64) Cell {
	s := -q - r
	rq, rr, rs := math.Round(q), math.Round(r), math.Round(s)
	dq, dr, ds := math.Abs(rq-q), math.Abs(rr-r), math.Abs(rs-s)
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return Cell{Q: int(rq), R: int(rr)}
}
