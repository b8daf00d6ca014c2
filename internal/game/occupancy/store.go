// Package occupancy owns the authoritative map of which actor stands on
// which hex cell, and the transactional service that is the only sanctioned
// way to change it.
package occupancy

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// ActorID identifies an actor on the board.
type ActorID string

// Actor is the grid-facing view of a unit: its identity and footprint shape.
type Actor struct {
	ID        ActorID
	Footprint hex.Footprint
}

type placement struct {
	anchor    hex.Cell
	facing    hex.Facing
	footprint hex.Footprint
	cells     []hex.Cell
}

type record struct {
	hard ActorID
	soft map[ActorID]int
}

func (r *record) empty() bool {
	return r.hard == "" && len(r.soft) == 0
}

// Store is the spatial ground truth. A cell has at most one hard occupant
// and any number of refcounted soft claims. Every hard mutation bumps the
// version by exactly one.
type Store struct {
	mu         sync.RWMutex
	boardID    string
	layout     hex.Layout
	cells      map[hex.Cell]*record
	placements map[ActorID]*placement
	version    uint64
	logger     *zap.Logger
}

// NewStore creates an empty store. A nil layout accepts every cell.
func NewStore(layout hex.Layout, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		boardID:    uuid.NewString(),
		layout:     layout,
		cells:      make(map[hex.Cell]*record),
		placements: make(map[ActorID]*placement),
		logger:     logger,
	}
}

// BoardID returns the unique id of the board this store describes.
func (s *Store) BoardID() string {
	return s.boardID
}

// Layout returns the board layout, which may be nil.
func (s *Store) Layout() hex.Layout {
	return s.layout
}

// Version returns the hard-mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// CanPlace reports whether actor could stand at anchor with facing. Cells
// currently held by ignore count as free.
func (s *Store) CanPlace(actor Actor, anchor hex.Cell, facing hex.Facing, ignore ActorID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkLocked(actor.Footprint.Expand(anchor, facing), ignore).OK()
}

func (s *Store) checkLocked(cells []hex.Cell, ignore ActorID) rules.Reason {
	for _, c := range cells {
		if s.layout != nil && !s.layout.Contains(c) {
			return rules.ReasonOutOfBounds
		}
		if rec, ok := s.cells[c]; ok && rec.hard != "" && rec.hard != ignore {
			return rules.ReasonBlocked
		}
	}
	return rules.ReasonOK
}

// CellsOf returns the cells hard-occupied by actor.
func (s *Store) CellsOf(id ActorID) []hex.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.placements[id]
	if !ok {
		return nil
	}
	out := make([]hex.Cell, len(p.cells))
	copy(out, p.cells)
	return out
}

// PlacementOf returns the anchor and facing of a placed actor.
func (s *Store) PlacementOf(id ActorID) (hex.Cell, hex.Facing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.placements[id]
	if !ok {
		return hex.Cell{}, 0, false
	}
	return p.anchor, p.facing, true
}

// TryGetActor returns the hard occupant of cell.
func (s *Store) TryGetActor(c hex.Cell) (ActorID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cells[c]
	if !ok || rec.hard == "" {
		return "", false
	}
	return rec.hard, true
}

// SoftOwners returns the actors holding soft claims on cell, sorted.
func (s *Store) SoftOwners(c hex.Cell) []ActorID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cells[c]
	if !ok {
		return nil
	}
	return sortedOwners(rec.soft)
}

// Place puts a new actor on the board.
func (s *Store) Place(actor Actor, anchor hex.Cell, facing hex.Facing) rules.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.placements[actor.ID]; exists {
		return rules.ReasonAlreadyPlaced
	}
	cells := actor.Footprint.Expand(anchor, facing)
	if reason := s.checkLocked(cells, ""); !reason.OK() {
		return reason
	}
	s.writeLocked(actor.ID, &placement{anchor: anchor, facing: facing, footprint: actor.Footprint, cells: cells})
	s.version++
	s.logger.Debug("placed actor",
		zap.String("actor_id", string(actor.ID)),
		zap.Stringer("anchor", anchor),
		zap.Uint64("version", s.version))
	return rules.ReasonOK
}

// Move relocates a placed actor in one step; no reader ever observes the
// actor on neither footprint.
func (s *Store) Move(id ActorID, anchor hex.Cell, facing hex.Facing) rules.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.placements[id]
	if !ok {
		return rules.ReasonNotPlaced
	}
	cells := old.footprint.Expand(anchor, facing)
	if reason := s.checkLocked(cells, id); !reason.OK() {
		return reason
	}
	s.clearLocked(id, old)
	s.writeLocked(id, &placement{anchor: anchor, facing: facing, footprint: old.footprint, cells: cells})
	s.version++
	s.logger.Debug("moved actor",
		zap.String("actor_id", string(id)),
		zap.Stringer("from", old.anchor),
		zap.Stringer("to", anchor),
		zap.Uint64("version", s.version))
	return rules.ReasonOK
}

// Remove takes an actor off the board. It reports whether anything changed.
func (s *Store) Remove(id ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.placements[id]
	if !ok {
		return false
	}
	s.clearLocked(id, p)
	delete(s.placements, id)
	s.version++
	s.logger.Debug("removed actor",
		zap.String("actor_id", string(id)),
		zap.Uint64("version", s.version))
	return true
}

func (s *Store) writeLocked(id ActorID, p *placement) {
	for _, c := range p.cells {
		rec, ok := s.cells[c]
		if !ok {
			rec = &record{}
			s.cells[c] = rec
		}
		rec.hard = id
	}
	s.placements[id] = p
}

func (s *Store) clearLocked(id ActorID, p *placement) {
	for _, c := range p.cells {
		rec, ok := s.cells[c]
		if !ok || rec.hard != id {
			continue
		}
		rec.hard = ""
		if rec.empty() {
			delete(s.cells, c)
		}
	}
}

// TempReserve adds a soft claim for actor on cell. Soft claims never block
// hard writes. It fails only for off-board cells.
func (s *Store) TempReserve(c hex.Cell, actor ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout != nil && !s.layout.Contains(c) {
		return false
	}
	rec, ok := s.cells[c]
	if !ok {
		rec = &record{}
		s.cells[c] = rec
	}
	if rec.soft == nil {
		rec.soft = make(map[ActorID]int)
	}
	rec.soft[actor]++
	return true
}

// TempRelease drops one soft claim of actor on cell.
func (s *Store) TempRelease(c hex.Cell, actor ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(c, actor)
}

func (s *Store) releaseLocked(c hex.Cell, actor ActorID) bool {
	rec, ok := s.cells[c]
	if !ok || rec.soft[actor] == 0 {
		return false
	}
	rec.soft[actor]--
	if rec.soft[actor] == 0 {
		delete(rec.soft, actor)
	}
	if len(rec.soft) == 0 {
		rec.soft = nil
	}
	if rec.empty() {
		delete(s.cells, c)
	}
	return true
}

// TempClearForOwner drops every soft claim held by actor and returns the
// number of cells released.
func (s *Store) TempClearForOwner(actor ActorID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c, rec := range s.cells {
		if rec.soft[actor] == 0 {
			continue
		}
		delete(rec.soft, actor)
		if len(rec.soft) == 0 {
			rec.soft = nil
		}
		if rec.empty() {
			delete(s.cells, c)
		}
		n++
	}
	return n
}

func sortedOwners(m map[ActorID]int) []ActorID {
	if len(m) == 0 {
		return nil
	}
	out := make([]ActorID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
