package cost

import "sync"

// Budget is the time an actor may still spend this turn.
type Budget struct {
	mu        sync.RWMutex
	total     int
	remaining int
}

// NewBudget creates a full budget of the given seconds.
func NewBudget(total int) *Budget {
	if total < 0 {
		total = 0
	}
	return &Budget{total: total, remaining: total}
}

// Total returns the per-turn allowance.
func (b *Budget) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Remaining returns the seconds left this turn.
func (b *Budget) Remaining() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.remaining
}

// Spend deducts seconds. Returns false and changes nothing if the budget
// is insufficient.
func (b *Budget) Spend(seconds int) bool {
	if seconds <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining < seconds {
		return false
	}
	b.remaining -= seconds
	return true
}

// Refund gives seconds back, never exceeding the per-turn allowance.
func (b *Budget) Refund(seconds int) {
	if seconds <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining += seconds
	if b.remaining > b.total {
		b.remaining = b.total
	}
}

// Reset restores the full allowance at turn start.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = b.total
}

// SetTotal changes the per-turn allowance. Remaining time is capped to it.
func (b *Budget) SetTotal(total int) {
	if total < 0 {
		total = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
	if b.remaining > total {
		b.remaining = total
	}
}
