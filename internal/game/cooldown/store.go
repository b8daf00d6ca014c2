// Package cooldown tracks per-actor, per-ability recharge time in seconds.
package cooldown

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultSecondsPerTurn is the length of one turn in simulated seconds.
const DefaultSecondsPerTurn = 6

type key struct {
	actor   string
	ability string
}

// Store holds remaining seconds per (actor, ability). Entries are created
// lazily and deleted once they reach zero.
type Store struct {
	mu             sync.RWMutex
	secondsPerTurn int
	remaining      map[key]int
	logger         *zap.Logger
}

// NewStore creates a store. A non-positive secondsPerTurn uses the default.
func NewStore(secondsPerTurn int, logger *zap.Logger) *Store {
	if secondsPerTurn <= 0 {
		secondsPerTurn = DefaultSecondsPerTurn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		secondsPerTurn: secondsPerTurn,
		remaining:      make(map[key]int),
		logger:         logger,
	}
}

// SecondsPerTurn returns the seconds-to-turns conversion constant.
func (s *Store) SecondsPerTurn() int {
	return s.secondsPerTurn
}

// For returns a view of the store scoped to one actor.
func (s *Store) For(actor string) *Tracker {
	return &Tracker{store: s, actor: actor}
}

// StartSeconds sets the remaining seconds to exactly seconds. Zero or less
// clears the entry.
func (s *Store) StartSeconds(actor, ability string, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key{actor, ability}, seconds)
	s.logger.Debug("cooldown set",
		zap.String("actor_id", actor),
		zap.String("ability_id", ability),
		zap.Int("seconds", seconds))
}

// AddSeconds applies a signed delta, never dropping below zero.
func (s *Store) AddSeconds(actor, ability string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{actor, ability}
	s.setLocked(k, s.remaining[k]+delta)
}

// SecondsLeft returns the remaining seconds, zero when absent.
func (s *Store) SecondsLeft(actor, ability string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remaining[key{actor, ability}]
}

// Tick applies delta to every entry of the actor and returns the abilities
// that became ready.
func (s *Store) Tick(actor string, delta int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []string
	for k, v := range s.remaining {
		if k.actor != actor {
			continue
		}
		s.setLocked(k, v+delta)
		if _, still := s.remaining[k]; !still {
			ready = append(ready, k.ability)
		}
	}
	sort.Strings(ready)
	return ready
}

// ClearActor drops every entry of the actor.
func (s *Store) ClearActor(actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.remaining {
		if k.actor == actor {
			delete(s.remaining, k)
		}
	}
}

// Abilities returns the abilities of the actor currently recharging.
func (s *Store) Abilities(actor string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.remaining {
		if k.actor == actor {
			out = append(out, k.ability)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) setLocked(k key, seconds int) {
	if seconds <= 0 {
		delete(s.remaining, k)
		return
	}
	s.remaining[k] = seconds
}

// Tracker is the per-actor view used by HUDs and the action controller.
type Tracker struct {
	store *Store
	actor string
}

// Ready reports whether the ability has no remaining cooldown.
func (t *Tracker) Ready(ability string) bool {
	return t.store.SecondsLeft(t.actor, ability) <= 0
}

// StartSeconds sets the remaining seconds of the ability.
func (t *Tracker) StartSeconds(ability string, seconds int) {
	t.store.StartSeconds(t.actor, ability, seconds)
}

// AddSeconds applies a signed delta floored at zero.
func (t *Tracker) AddSeconds(ability string, delta int) {
	t.store.AddSeconds(t.actor, ability, delta)
}

// SecondsLeft returns the remaining seconds of the ability.
func (t *Tracker) SecondsLeft(ability string) int {
	return t.store.SecondsLeft(t.actor, ability)
}

// TurnsLeft returns the remaining whole turns, rounding up.
func (t *Tracker) TurnsLeft(ability string) int {
	secs := t.SecondsLeft(ability)
	if secs <= 0 {
		return 0
	}
	per := t.store.secondsPerTurn
	return (secs + per - 1) / per
}

// Abilities returns the abilities currently recharging.
func (t *Tracker) Abilities() []string {
	return t.store.Abilities(t.actor)
}
