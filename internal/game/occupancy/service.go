package occupancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/audit"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// ActorContext is the external handle the service decodes into a grid actor.
type ActorContext interface {
	GridActor() (Actor, bool)
}

// BoardBinder is implemented by actor contexts that remember which board
// they were placed on. Mutating such an actor through a service for another
// board is an invariant violation.
type BoardBinder interface {
	BoardID() string
	BindBoard(id string)
}

// TxnID is the permanent audit identifier of a committed hard mutation.
type TxnID uint64

// TxnKind names the hard mutation a transaction performed.
type TxnKind string

const (
	TxnPlace  TxnKind = "place"
	TxnMove   TxnKind = "move"
	TxnRemove TxnKind = "remove"
	TxnCommit TxnKind = "commit"
)

// TxnRecord is the audit record of one transaction.
type TxnRecord struct {
	ID      TxnID
	Kind    TxnKind
	Actor   ActorID
	Anchor  hex.Cell
	Facing  hex.Facing
	Version uint64
	At      time.Time
}

// ActorInfo is the read-only view returned by TryGetActorInfo.
type ActorInfo struct {
	ID     ActorID
	Anchor hex.Cell
	Facing hex.Facing
	Cells  []hex.Cell
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditSink sends every committed transaction to sink.
func WithAuditSink(sink audit.Sink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

// WithEventBus publishes an OCCUPANCY_CHANGED event after each hard mutation.
func WithEventBus(bus *rules.EventBus) ServiceOption {
	return func(s *Service) { s.bus = bus }
}

// Service is the sole write gateway to a Store. Every operation performs
// its mutation within a single call and reports failure as a reason value.
type Service struct {
	mu           sync.Mutex
	store        *Store
	logger       *zap.Logger
	sink         audit.Sink
	bus          *rules.EventBus
	nextTxn      uint64
	nextToken    uint64
	reservations map[Token]*reservation
	byActor      map[ActorID]map[Token]struct{}
	revoked      map[Token]ActorID
	txns         []TxnRecord
	pending      []rules.Event
}

// NewService binds a transaction service to store.
func NewService(store *Store, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:        store,
		logger:       logger,
		reservations: make(map[Token]*reservation),
		byActor:      make(map[ActorID]map[Token]struct{}),
		revoked:      make(map[Token]ActorID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BoardID returns the board id of the underlying store.
func (s *Service) BoardID() string {
	if s.store == nil {
		return ""
	}
	return s.store.BoardID()
}

// StoreVersion returns the hard-mutation counter of the store.
func (s *Service) StoreVersion() uint64 {
	if s.store == nil {
		return 0
	}
	return s.store.Version()
}

// resolve decodes ac, returning ActorMissing or MultiStoreMismatch when it
// cannot be used against this board.
func (s *Service) resolve(ac ActorContext) (Actor, rules.Reason) {
	if s.store == nil {
		return Actor{}, rules.ReasonNoStore
	}
	if ac == nil {
		return Actor{}, rules.ReasonActorMissing
	}
	actor, ok := ac.GridActor()
	if !ok || actor.ID == "" {
		return Actor{}, rules.ReasonActorMissing
	}
	if b, ok := ac.(BoardBinder); ok {
		if bound := b.BoardID(); bound != "" && bound != s.store.BoardID() {
			s.logger.Error("actor mutated through a second occupancy store",
				zap.String("actor_id", string(actor.ID)),
				zap.String("bound_board", bound),
				zap.String("board", s.store.BoardID()))
			return Actor{}, rules.ReasonMultiStore
		}
	}
	return actor, rules.ReasonOK
}

// TryPlace puts the actor on the board for the first time.
func (s *Service) TryPlace(ac ActorContext, anchor hex.Cell, facing hex.Facing) (TxnID, rules.Reason) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0, reason
	}
	if reason := s.store.Place(actor, anchor, facing); !reason.OK() {
		return 0, reason
	}
	if b, ok := ac.(BoardBinder); ok {
		b.BindBoard(s.store.BoardID())
	}
	return s.recordLocked(TxnPlace, actor.ID, anchor, facing), rules.ReasonOK
}

// TryMove relocates a placed actor atomically.
func (s *Service) TryMove(ac ActorContext, anchor hex.Cell, facing hex.Facing) (TxnID, rules.Reason) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0, reason
	}
	if reason := s.store.Move(actor.ID, anchor, facing); !reason.OK() {
		return 0, reason
	}
	return s.recordLocked(TxnMove, actor.ID, anchor, facing), rules.ReasonOK
}

// Remove takes the actor off the board and cancels all of its
// reservations. It is idempotent and reports whether a hard mutation
// happened.
func (s *Service) Remove(ac ActorContext) (TxnID, bool) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0, false
	}
	for tok := range s.byActor[actor.ID] {
		s.revoked[tok] = actor.ID
	}
	s.cancelAllLocked(actor.ID)
	s.store.TempClearForOwner(actor.ID)

	anchor, facing, placed := s.store.PlacementOf(actor.ID)
	if !placed || !s.store.Remove(actor.ID) {
		return 0, false
	}
	if b, ok := ac.(BoardBinder); ok {
		b.BindBoard("")
	}
	return s.recordLocked(TxnRemove, actor.ID, anchor, facing), true
}

// ReservePath soft-reserves cells for the actor. It never touches hard
// occupancy.
func (s *Service) ReservePath(ac ActorContext, cells []hex.Cell, mode ReserveMode) (Token, ReserveResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return 0, ReserveNoStore
	}
	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0, ReserveNoActor
	}
	if len(cells) == 0 {
		return 0, ReserveBlocked
	}
	layout := s.store.Layout()
	for _, c := range cells {
		if layout != nil && !layout.Contains(c) {
			return 0, ReserveBlocked
		}
	}

	exclusive := exclusiveCells(cells, mode)
	for _, c := range exclusive {
		if occ, ok := s.store.TryGetActor(c); ok && occ != actor.ID {
			return 0, ReserveBlocked
		}
		for _, other := range s.reservations {
			if other.actor != actor.ID && other.holdsExclusive(c) {
				return 0, ReserveAlreadyReserved
			}
		}
	}

	s.nextToken++
	tok := Token(s.nextToken)
	res := &reservation{token: tok, actor: actor.ID, mode: mode, exclusive: exclusive}
	res.cells = make([]hex.Cell, len(cells))
	copy(res.cells, cells)
	for _, c := range res.cells {
		s.store.TempReserve(c, actor.ID)
	}
	s.reservations[tok] = res
	if s.byActor[actor.ID] == nil {
		s.byActor[actor.ID] = make(map[Token]struct{})
	}
	s.byActor[actor.ID][tok] = struct{}{}

	s.logger.Debug("reserved path",
		zap.String("actor_id", string(actor.ID)),
		zap.Uint64("token", uint64(tok)),
		zap.Stringer("mode", mode),
		zap.Int("cells", len(cells)))
	return tok, ReserveOK
}

// Commit turns a reservation into a hard write at anchor. It re-validates
// against current hard occupancy, not the state at reservation time. The
// token is consumed whether or not the commit succeeds.
func (s *Service) Commit(ac ActorContext, tok Token, anchor hex.Cell, facing hex.Facing) (TxnID, rules.Reason) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0, reason
	}
	res, ok := s.reservations[tok]
	if !ok {
		s.warnRevokedLocked(tok, actor.ID)
		return 0, rules.ReasonTokenInvalid
	}
	if res.actor != actor.ID {
		return 0, rules.ReasonTokenInvalid
	}
	s.releaseLocked(res)

	if _, _, placed := s.store.PlacementOf(actor.ID); placed {
		reason = s.store.Move(actor.ID, anchor, facing)
	} else {
		reason = s.store.Place(actor, anchor, facing)
		if reason.OK() {
			if b, ok := ac.(BoardBinder); ok {
				b.BindBoard(s.store.BoardID())
			}
		}
	}
	if !reason.OK() {
		s.logger.Debug("commit rejected",
			zap.String("actor_id", string(actor.ID)),
			zap.Uint64("token", uint64(tok)),
			zap.Stringer("anchor", anchor),
			zap.String("reason", reason.String()))
		return 0, reason
	}
	return s.recordLocked(TxnCommit, actor.ID, anchor, facing), rules.ReasonOK
}

// Cancel releases one reservation. It returns false for unknown, consumed,
// or foreign tokens and never mutates the store in that case.
func (s *Service) Cancel(ac ActorContext, tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return false
	}
	res, ok := s.reservations[tok]
	if !ok {
		s.warnRevokedLocked(tok, actor.ID)
		return false
	}
	if res.actor != actor.ID {
		return false
	}
	s.releaseLocked(res)
	return true
}

func (s *Service) warnRevokedLocked(tok Token, actor ActorID) {
	owner, ok := s.revoked[tok]
	if !ok {
		return
	}
	s.logger.Error("reservation token used after its owner was removed",
		zap.Uint64("token", uint64(tok)),
		zap.String("owner", string(owner)),
		zap.String("actor_id", string(actor)))
}

// CancelAll releases every reservation held by the actor and returns how
// many were released.
func (s *Service) CancelAll(ac ActorContext) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0
	}
	return s.cancelAllLocked(actor.ID)
}

// Reservations returns the number of live reservation tokens of the actor.
func (s *Service) Reservations(ac ActorContext) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return 0
	}
	return len(s.byActor[actor.ID])
}

func (s *Service) cancelAllLocked(id ActorID) int {
	n := 0
	for tok := range s.byActor[id] {
		if res, ok := s.reservations[tok]; ok {
			s.releaseLocked(res)
			n++
		}
	}
	return n
}

func (s *Service) releaseLocked(res *reservation) {
	for _, c := range res.cells {
		s.store.TempRelease(c, res.actor)
	}
	delete(s.reservations, res.token)
	if toks := s.byActor[res.actor]; toks != nil {
		delete(toks, res.token)
		if len(toks) == 0 {
			delete(s.byActor, res.actor)
		}
	}
}

// IsFreeFor reports whether the actor could stand at anchor, treating its
// own current cells as free.
func (s *Service) IsFreeFor(ac ActorContext, anchor hex.Cell, facing hex.Facing) bool {
	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return false
	}
	return s.store.CanPlace(actor, anchor, facing, actor.ID)
}

// TryGetActorInfo returns the hard occupant of cell and its placement.
func (s *Service) TryGetActorInfo(c hex.Cell) (ActorInfo, bool) {
	if s.store == nil {
		return ActorInfo{}, false
	}
	id, ok := s.store.TryGetActor(c)
	if !ok {
		return ActorInfo{}, false
	}
	anchor, facing, ok := s.store.PlacementOf(id)
	if !ok {
		return ActorInfo{}, false
	}
	return ActorInfo{ID: id, Anchor: anchor, Facing: facing, Cells: s.store.CellsOf(id)}, true
}

// PlacementOf returns the anchor and facing of the actor, if placed.
func (s *Service) PlacementOf(ac ActorContext) (hex.Cell, hex.Facing, bool) {
	actor, reason := s.resolve(ac)
	if !reason.OK() {
		return hex.Cell{}, 0, false
	}
	return s.store.PlacementOf(actor.ID)
}

// Layout returns the board layout of the underlying store.
func (s *Service) Layout() hex.Layout {
	if s.store == nil {
		return nil
	}
	return s.store.Layout()
}

// DumpAll returns a full snapshot for diagnostics and replay.
func (s *Service) DumpAll() Snapshot {
	if s.store == nil {
		return Snapshot{}
	}
	return s.store.Snapshot()
}

// Transactions returns a copy of the committed transaction log.
func (s *Service) Transactions() []TxnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TxnRecord, len(s.txns))
	copy(out, s.txns)
	return out
}

func (s *Service) recordLocked(kind TxnKind, id ActorID, anchor hex.Cell, facing hex.Facing) TxnID {
	s.nextTxn++
	rec := TxnRecord{
		ID:      TxnID(s.nextTxn),
		Kind:    kind,
		Actor:   id,
		Anchor:  anchor,
		Facing:  facing,
		Version: s.store.Version(),
		At:      time.Now(),
	}
	s.txns = append(s.txns, rec)

	if s.sink != nil {
		entry := audit.Entry{
			TxnID:   uint64(rec.ID),
			BoardID: s.store.BoardID(),
			Kind:    string(kind),
			ActorID: string(id),
			Q:       anchor.Q,
			R:       anchor.R,
			Facing:  int(facing),
			Version: rec.Version,
			At:      rec.At,
		}
		if err := s.sink.Append(context.Background(), entry); err != nil {
			s.logger.Warn("audit sink append failed", zap.Uint64("txn", uint64(rec.ID)), zap.Error(err))
		}
	}
	if s.bus != nil {
		evt := rules.NewEvent(rules.EventOccupancyChanged, string(id), "")
		evt.Version = rec.Version
		evt.Metadata["txn"] = fmt.Sprintf("%d", rec.ID)
		evt.Metadata["kind"] = string(kind)
		s.pending = append(s.pending, evt)
	}
	s.logger.Debug("occupancy transaction",
		zap.Uint64("txn", uint64(rec.ID)),
		zap.String("kind", string(kind)),
		zap.String("actor_id", string(id)),
		zap.Uint64("version", rec.Version))
	return rec.ID
}

// flush publishes events queued during a mutation. It runs after the
// service lock is released so listeners may query the service.
func (s *Service) flush() {
	if s.bus == nil {
		return
	}
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, evt := range events {
		s.bus.Publish(evt)
	}
}
