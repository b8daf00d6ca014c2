package hex

import "fmt"

// Cell is an axial hex coordinate.
type Cell struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// C is shorthand for constructing a Cell.
func C(q, r int) Cell {
	return Cell{Q: q, R: r}
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Q, c.R)
}

// Add returns the component-wise sum of two cells.
func (c Cell) Add(o Cell) Cell {
	return Cell{Q: c.Q + o.Q, R: c.R + o.R}
}

// Sub returns the component-wise difference of two cells.
func (c Cell) Sub(o Cell) Cell {
	return Cell{Q: c.Q - o.Q, R: c.R - o.R}
}

// S returns the implicit third cube coordinate.
func (c Cell) S() int {
	return -c.Q - c.R
}

// Neighbor returns the adjacent cell in direction d.
func (c Cell) Neighbor(d Direction) Cell {
	return c.Add(d.Offset())
}

// Neighbors returns all six adjacent cells in direction order.
func (c Cell) Neighbors() []Cell {
	out := make([]Cell, 0, len(directionOffsets))
	for _, off := range directionOffsets {
		out = append(out, c.Add(off))
	}
	return out
}

// Rotate turns the cell around the origin by f sixth-turns counter-clockwise.
func (c Cell) Rotate(f Facing) Cell {
	q, r := c.Q, c.R
	for i := 0; i < int(f.Normalize()); i++ {
		q, r = q+r, -q
	}
	return Cell{Q: q, R: r}
}

// Distance returns the hex distance between two cells.
func Distance(a, b Cell) int {
	d := a.Sub(b)
	return (abs(d.Q) + abs(d.R) + abs(d.S())) / 2
}

// IsAdjacent reports whether a and b share an edge.
func IsAdjacent(a, b Cell) bool {
	return Distance(a, b) == 1
}

// IsContiguous reports whether every consecutive pair of cells in path is adjacent.
func IsContiguous(path []Cell) bool {
	for i := 1; i < len(path); i++ {
		if !IsAdjacent(path[i-1], path[i]) {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
