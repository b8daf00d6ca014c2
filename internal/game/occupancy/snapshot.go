package occupancy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	grid "github.com/hexline/hexline-server-go/internal/game/hex"
)

// PlacementView is a read-only copy of one actor's hard placement.
type PlacementView struct {
	ActorID ActorID     `json:"actor_id"`
	Anchor  grid.Cell   `json:"anchor"`
	Facing  grid.Facing `json:"facing"`
	Cells   []grid.Cell `json:"cells"`
}

// CellView is a read-only copy of one occupancy record.
type CellView struct {
	Cell grid.Cell `json:"cell"`
	Hard ActorID   `json:"hard,omitempty"`
	Soft []ActorID `json:"soft,omitempty"`
}

// Snapshot is the full diagnostic view of a board, ordered
// deterministically so two snapshots of equal state are byte-identical.
type Snapshot struct {
	BoardID string          `json:"board_id"`
	Version uint64          `json:"version"`
	Actors  []PlacementView `json:"actors"`
	Cells   []CellView      `json:"cells"`
}

// Snapshot copies the current state of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		BoardID: s.boardID,
		Version: s.version,
		Actors:  make([]PlacementView, 0, len(s.placements)),
		Cells:   make([]CellView, 0, len(s.cells)),
	}
	for id, p := range s.placements {
		cells := make([]grid.Cell, len(p.cells))
		copy(cells, p.cells)
		snap.Actors = append(snap.Actors, PlacementView{ActorID: id, Anchor: p.anchor, Facing: p.facing, Cells: cells})
	}
	sort.Slice(snap.Actors, func(i, j int) bool { return snap.Actors[i].ActorID < snap.Actors[j].ActorID })

	for c, rec := range s.cells {
		snap.Cells = append(snap.Cells, CellView{Cell: c, Hard: rec.hard, Soft: sortedOwners(rec.soft)})
	}
	sort.Slice(snap.Cells, func(i, j int) bool { return lessCell(snap.Cells[i].Cell, snap.Cells[j].Cell) })
	return snap
}

func lessCell(a, b grid.Cell) bool {
	if a.Q != b.Q {
		return a.Q < b.Q
	}
	return a.R < b.R
}

// Overlaps returns pairs of distinct actors whose hard cells intersect.
// A healthy board always returns nil.
func (snap Snapshot) Overlaps() [][2]ActorID {
	owner := make(map[grid.Cell]ActorID)
	var out [][2]ActorID
	for _, a := range snap.Actors {
		for _, c := range a.Cells {
			if prev, ok := owner[c]; ok && prev != a.ActorID {
				out = append(out, [2]ActorID{prev, a.ActorID})
				continue
			}
			owner[c] = a.ActorID
		}
	}
	return out
}

// Checksum returns a sha256 over the canonical representation of the
// snapshot, used to compare boards across replays.
func (snap Snapshot) Checksum() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("BOARD:%s|%d\n", snap.BoardID, snap.Version))
	for _, a := range snap.Actors {
		buf.WriteString(fmt.Sprintf("ACTOR:%s|%d|%d|%d\n", a.ActorID, a.Anchor.Q, a.Anchor.R, a.Facing))
	}
	for _, c := range snap.Cells {
		buf.WriteString(fmt.Sprintf("CELL:%d|%d|%s", c.Cell.Q, c.Cell.R, c.Hard))
		for _, s := range c.Soft {
			buf.WriteString("|" + string(s))
		}
		buf.WriteByte('\n')
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
