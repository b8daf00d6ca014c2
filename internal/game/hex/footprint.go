package hex

// Footprint is an ordered set of cell offsets relative to the anchor,
// expressed for facing 0 (east).
type Footprint []Cell

// Single is the footprint of a one-cell actor.
var Single = Footprint{{Q: 0, R: 0}}

// Expand rotates the footprint to facing and translates it to anchor.
// The anchor is always part of the result even if the offsets omit it.
func (fp Footprint) Expand(anchor Cell, facing Facing) []Cell {
	if len(fp) == 0 {
		return []Cell{anchor}
	}
	out := make([]Cell, 0, len(fp)+1)
	seen := make(map[Cell]struct{}, len(fp)+1)
	hasAnchor := false
	for _, off := range fp {
		c := anchor.Add(off.Rotate(facing))
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if c == anchor {
			hasAnchor = true
		}
		out = append(out, c)
	}
	if !hasAnchor {
		out = append([]Cell{anchor}, out...)
	}
	return out
}

// Size returns the number of distinct cells the footprint covers.
func (fp Footprint) Size() int {
	return len(fp.Expand(Cell{}, 0))
}
