package unit

import (
	"sort"
	"sync"
)

// Roster is the set of units taking part in an encounter.
type Roster struct {
	mu    sync.RWMutex
	units map[string]*Unit
	order []string
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{units: make(map[string]*Unit)}
}

// Add registers a unit. Re-adding an id replaces the unit but keeps its
// position in the order.
func (r *Roster) Add(u *Unit) {
	if u == nil || u.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.ID]; !ok {
		r.order = append(r.order, u.ID)
	}
	r.units[u.ID] = u
}

// Unit looks a unit up by id.
func (r *Roster) Unit(id string) (*Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	return u, ok
}

// Remove drops a unit from the roster.
func (r *Roster) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return false
	}
	delete(r.units, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Ordered returns units in registration order.
func (r *Roster) Ordered() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Unit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.units[id])
	}
	return out
}

// IDs returns the registered ids sorted lexically.
func (r *Roster) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
