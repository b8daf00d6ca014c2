package modifier

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type entry struct {
	id      string
	mod     any
	removed atomic.Bool
}

// Pipeline runs registered modifiers in insertion order. Each pass works on
// a snapshot taken when the pass starts: a modifier added during a pass is
// first invoked by the next pass, and a modifier removed during a pass is
// skipped if it has not run yet.
type Pipeline struct {
	mu      sync.RWMutex
	entries []*entry
	logger  *zap.Logger
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// Add registers a modifier implementing at least one of CostModifier,
// CooldownPolicy, or ComboPolicy and returns its id.
func (p *Pipeline) Add(mod any) string {
	return p.AddWithID(uuid.NewString(), mod)
}

// AddWithID registers a modifier under a caller-chosen id. An existing
// modifier with the same id is replaced in place, keeping its position.
func (p *Pipeline) AddWithID(id string, mod any) string {
	if mod == nil || !isModifier(mod) {
		p.logger.Warn("ignored value that implements no modifier interface", zap.String("modifier_id", id))
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e := &entry{id: id, mod: mod}
	for i, existing := range p.entries {
		if existing.id == id {
			existing.removed.Store(true)
			p.entries[i] = e
			return id
		}
	}
	p.entries = append(p.entries, e)
	p.logger.Debug("added modifier", zap.String("modifier_id", id), zap.Int("count", len(p.entries)))
	return id
}

// Remove unregisters a modifier by id.
func (p *Pipeline) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.id == id {
			e.removed.Store(true)
			p.entries = append(p.entries[:i:i], p.entries[i+1:]...)
			p.logger.Debug("removed modifier", zap.String("modifier_id", id))
			return true
		}
	}
	return false
}

// Len returns the number of registered modifiers.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *Pipeline) snapshot() []*entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// ApplyCost runs every cost modifier in order. Later modifiers see the
// results of earlier ones. The final cost is floored at zero.
func (p *Pipeline) ApplyCost(rc Context, cost *Cost) {
	for _, e := range p.snapshot() {
		if e.removed.Load() {
			continue
		}
		if m, ok := e.mod.(CostModifier); ok {
			m.ModifyCost(rc, cost)
		}
	}
	cost.Clamp()
}

// ApplyCooldownStart returns the cooldown to start after all policies ran.
func (p *Pipeline) ApplyCooldownStart(rc Context, seconds int) int {
	for _, e := range p.snapshot() {
		if e.removed.Load() {
			continue
		}
		if m, ok := e.mod.(CooldownPolicy); ok {
			m.OnStartCooldown(rc, &seconds)
		}
	}
	if seconds < 0 {
		seconds = 0
	}
	return seconds
}

// ApplyCooldownTick returns the per-turn cooldown delta after all policies
// ran. The base delta is normally -secondsPerTurn.
func (p *Pipeline) ApplyCooldownTick(rc Context, delta int) int {
	for _, e := range p.snapshot() {
		if e.removed.Load() {
			continue
		}
		if m, ok := e.mod.(CooldownPolicy); ok {
			m.OnTickCooldown(rc, &delta)
		}
	}
	return delta
}

// ApplyComboFactor returns the combo multiplier after all policies ran.
func (p *Pipeline) ApplyComboFactor(rc Context, factor float64) float64 {
	for _, e := range p.snapshot() {
		if e.removed.Load() {
			continue
		}
		if m, ok := e.mod.(ComboPolicy); ok {
			m.ModifyComboFactor(rc, &factor)
		}
	}
	if factor < 0 {
		factor = 0
	}
	return factor
}

func isModifier(mod any) bool {
	switch mod.(type) {
	case CostModifier, CooldownPolicy, ComboPolicy:
		return true
	}
	return false
}
