package cost

import "sync"

// Pool is an actor's energy pool.
type Pool struct {
	mu      sync.RWMutex
	current int
	max     int
}

// NewPool creates a full pool.
func NewPool(max int) *Pool {
	if max < 0 {
		max = 0
	}
	return &Pool{current: max, max: max}
}

// Current returns the available energy.
func (p *Pool) Current() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Max returns the pool capacity.
func (p *Pool) Max() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.max
}

// Add restores energy, capped at the pool capacity.
func (p *Pool) Add(amount int) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += amount
	if p.current > p.max {
		p.current = p.max
	}
}

// Spend attempts to spend energy.
// Returns true if successful, false if insufficient energy.
func (p *Pool) Spend(amount int) bool {
	if amount <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < amount {
		return false
	}
	p.current -= amount
	return true
}

// Refill restores the pool to capacity.
func (p *Pool) Refill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.max
}

// Copy creates a detached copy of the pool.
func (p *Pool) Copy() *Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &Pool{current: p.current, max: p.max}
}
