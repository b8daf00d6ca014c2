package occupancy

import (
	"fmt"

	"github.com/hexline/hexline-server-go/internal/game/hex"
)

// Token is an ephemeral reservation handle. It must be committed or
// cancelled exactly once; a consumed token fails safely afterwards.
type Token uint64

// ReserveMode selects which cells of a path reservation are checked for
// exclusivity.
type ReserveMode int

const (
	// ReserveSoftPath is a preview hint; overlaps are allowed.
	ReserveSoftPath ReserveMode = iota
	// ReserveEndOnlyHard checks only the final cell.
	ReserveEndOnlyHard
	// ReservePathHard checks every cell.
	ReservePathHard
)

var reserveModeNames = map[ReserveMode]string{
	ReserveSoftPath:    "SOFT_PATH",
	ReserveEndOnlyHard: "END_ONLY_HARD",
	ReservePathHard:    "PATH_HARD",
}

func (m ReserveMode) String() string {
	if name, ok := reserveModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MODE_%d", int(m))
}

// ReserveResult is the outcome code of ReservePath.
type ReserveResult int

const (
	ReserveOK ReserveResult = iota
	ReserveAlreadyReserved
	ReserveBlocked
	ReserveNoStore
	ReserveNoActor
)

var reserveResultNames = map[ReserveResult]string{
	ReserveOK:              "OK",
	ReserveAlreadyReserved: "ALREADY_RESERVED",
	ReserveBlocked:         "BLOCKED",
	ReserveNoStore:         "NO_STORE",
	ReserveNoActor:         "NO_ACTOR",
}

func (r ReserveResult) String() string {
	if name, ok := reserveResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RESERVE_%d", int(r))
}

type reservation struct {
	token     Token
	actor     ActorID
	mode      ReserveMode
	cells     []hex.Cell
	exclusive []hex.Cell
}

// exclusiveCells returns the subset of path that mode checks.
func exclusiveCells(path []hex.Cell, mode ReserveMode) []hex.Cell {
	switch mode {
	case ReservePathHard:
		out := make([]hex.Cell, len(path))
		copy(out, path)
		return out
	case ReserveEndOnlyHard:
		if len(path) == 0 {
			return nil
		}
		return []hex.Cell{path[len(path)-1]}
	default:
		return nil
	}
}

func (r *reservation) holdsExclusive(c hex.Cell) bool {
	for _, e := range r.exclusive {
		if e == c {
			return true
		}
	}
	return false
}
