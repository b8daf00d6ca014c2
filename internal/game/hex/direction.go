package hex

import "fmt"

// Direction is one of the six fixed neighbour directions, counter-clockwise from east.
type Direction int

const (
	DirEast Direction = iota
	DirNorthEast
	DirNorthWest
	DirWest
	DirSouthWest
	DirSouthEast
)

var directionOffsets = [6]Cell{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

var directionNames = map[Direction]string{
	DirEast:      "E",
	DirNorthEast: "NE",
	DirNorthWest: "NW",
	DirWest:      "W",
	DirSouthWest: "SW",
	DirSouthEast: "SE",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DIR_%d", int(d))
}

// Offset returns the unit axial offset for the direction.
func (d Direction) Offset() Cell {
	return directionOffsets[((int(d)%6)+6)%6]
}

// DirectionTo returns the direction from a to an adjacent cell b.
func DirectionTo(a, b Cell) (Direction, bool) {
	diff := b.Sub(a)
	for i, off := range directionOffsets {
		if off == diff {
			return Direction(i), true
		}
	}
	return 0, false
}

// Facing is the orientation of an actor, expressed as the direction its
// canonical footprint has been rotated to.
type Facing int

// Normalize folds f into 0..5.
func (f Facing) Normalize() Facing {
	return Facing(((int(f) % 6) + 6) % 6)
}

func (f Facing) String() string {
	return Direction(f.Normalize()).String()
}

// FacingOf returns the facing that points along d.
func FacingOf(d Direction) Facing {
	return Facing(d).Normalize()
}
