// Package watchers observe the combat event stream and keep running
// statistics per actor.
package watchers

import (
	"sort"
	"sync"

	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// Scope decides when a watcher's state is cleared.
type Scope int

const (
	// ScopeTurn clears an actor's entries when that actor's turn starts.
	ScopeTurn Scope = iota
	// ScopeGame keeps entries until Reset.
	ScopeGame
)

// Watcher consumes events. Set serializes calls, so implementations need
// no locking of their own.
type Watcher interface {
	Key() string
	Scope() Scope
	Watch(e rules.Event)
	ResetActor(actorID string)
	Reset()
	// Stats returns the per-actor counters.
	Stats() map[string]int
}

// counter is the common per-actor tally.
type counter struct {
	key    string
	scope  Scope
	counts map[string]int
}

func newCounter(key string, scope Scope) counter {
	return counter{key: key, scope: scope, counts: make(map[string]int)}
}

func (c *counter) Key() string               { return c.key }
func (c *counter) Scope() Scope              { return c.scope }
func (c *counter) ResetActor(actorID string) { delete(c.counts, actorID) }
func (c *counter) Reset()                    { c.counts = make(map[string]int) }
func (c *counter) Count(actorID string) int  { return c.counts[actorID] }

func (c *counter) Stats() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// ActionsResolvedWatcher counts resolved actions per actor this turn.
type ActionsResolvedWatcher struct{ counter }

// NewActionsResolvedWatcher creates the watcher.
func NewActionsResolvedWatcher() *ActionsResolvedWatcher {
	return &ActionsResolvedWatcher{newCounter("actions_resolved", ScopeTurn)}
}

// Watch implements Watcher.
func (w *ActionsResolvedWatcher) Watch(e rules.Event) {
	if e.Type == rules.EventActionResolved && e.ActorID != "" {
		w.counts[e.ActorID]++
	}
}

// DamageDealtWatcher sums landed attack damage per attacker over the game.
type DamageDealtWatcher struct{ counter }

// NewDamageDealtWatcher creates the watcher.
func NewDamageDealtWatcher() *DamageDealtWatcher {
	return &DamageDealtWatcher{newCounter("damage_dealt", ScopeGame)}
}

// Watch implements Watcher.
func (w *DamageDealtWatcher) Watch(e rules.Event) {
	if e.Type == rules.EventAttackLanded && e.ActorID != "" {
		w.counts[e.ActorID] += e.Amount
	}
}

// DamageTakenWatcher sums landed attack damage per target over the game.
type DamageTakenWatcher struct{ counter }

// NewDamageTakenWatcher creates the watcher.
func NewDamageTakenWatcher() *DamageTakenWatcher {
	return &DamageTakenWatcher{newCounter("damage_taken", ScopeGame)}
}

// Watch implements Watcher.
func (w *DamageTakenWatcher) Watch(e rules.Event) {
	if e.Type == rules.EventAttackLanded && e.TargetID != "" {
		w.counts[e.TargetID] += e.Amount
	}
}

// RejectionsWatcher counts rejected and cancelled actions per actor this
// turn.
type RejectionsWatcher struct{ counter }

// NewRejectionsWatcher creates the watcher.
func NewRejectionsWatcher() *RejectionsWatcher {
	return &RejectionsWatcher{newCounter("rejections", ScopeTurn)}
}

// Watch implements Watcher.
func (w *RejectionsWatcher) Watch(e rules.Event) {
	switch e.Type {
	case rules.EventMoveRejected, rules.EventAttackRejected, rules.EventActionRejected:
		if e.ActorID != "" {
			w.counts[e.ActorID]++
		}
	}
}

// Set dispatches bus events to its watchers and clears turn-scoped
// watchers when an actor's turn starts.
type Set struct {
	mu       sync.Mutex
	watchers []Watcher
	subs     *rules.Subscriptions
}

// NewSet creates a set of watchers.
func NewSet(ws ...Watcher) *Set {
	return &Set{watchers: ws}
}

// Default returns a set with the standard combat watchers.
func Default() *Set {
	return NewSet(
		NewActionsResolvedWatcher(),
		NewRejectionsWatcher(),
		NewDamageDealtWatcher(),
		NewDamageTakenWatcher(),
	)
}

// Attach subscribes the set to bus.
func (s *Set) Attach(bus *rules.EventBus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs != nil {
		return
	}
	s.subs = bus.Group()
	s.subs.All(s.Watch)
}

// Detach unsubscribes the set.
func (s *Set) Detach() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	if subs != nil {
		subs.Close()
	}
}

// Watch feeds one event to every watcher.
func (s *Set) Watch(e rules.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Type == rules.EventTurnStarted {
		for _, w := range s.watchers {
			if w.Scope() == ScopeTurn {
				w.ResetActor(e.ActorID)
			}
		}
	}
	for _, w := range s.watchers {
		w.Watch(e)
	}
}

// Count returns one actor's counter of the watcher registered under key.
func (s *Set) Count(key, actorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		if w.Key() == key {
			return w.Stats()[actorID]
		}
	}
	return 0
}

// Stats returns every watcher's counters keyed by watcher key.
func (s *Set) Stats() map[string]map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]int, len(s.watchers))
	for _, w := range s.watchers {
		out[w.Key()] = w.Stats()
	}
	return out
}

// Keys returns the registered watcher keys in sorted order.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.watchers))
	for _, w := range s.watchers {
		keys = append(keys, w.Key())
	}
	sort.Strings(keys)
	return keys
}

// Reset clears every watcher.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		w.Reset()
	}
}
