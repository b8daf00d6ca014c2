// Package audit persists the permanent record of committed occupancy
// transactions.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is one committed hard mutation.
type Entry struct {
	TxnID   uint64    `json:"txn_id"`
	BoardID string    `json:"board_id"`
	Kind    string    `json:"kind"`
	ActorID string    `json:"actor_id"`
	Q       int       `json:"q"`
	R       int       `json:"r"`
	Facing  int       `json:"facing"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// Sink receives committed entries in transaction order.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
	Close() error
}

// MemorySink keeps entries in memory. It is the default sink and the one
// used by tests.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make([]Entry, 0, 64)}
}

// Append records the entry.
func (m *MemorySink) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of all recorded entries.
func (m *MemorySink) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Close is a no-op.
func (m *MemorySink) Close() error { return nil }

// Open returns the sink for driver: memory (or none), sqlite or postgres.
func Open(ctx context.Context, driver, dsn string) (Sink, error) {
	switch driver {
	case "", "memory", "none":
		return NewMemorySink(), nil
	case "sqlite":
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("audit: unknown driver %q", driver)
	}
}
