// Package unit is the combat actor: identity, faction, footprint, stats,
// and the per-turn budget and energy pool.
package unit

import (
	"sync"

	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
)

// Faction is the side an actor fights for.
type Faction string

const (
	FactionFriendly Faction = "friendly"
	FactionHostile  Faction = "hostile"
)

// Stats is an actor's stat block.
type Stats struct {
	Speed       int `json:"speed" yaml:"speed"`
	MaxEnergy   int `json:"max_energy" yaml:"max_energy"`
	TurnSeconds int `json:"turn_seconds" yaml:"turn_seconds"`
}

// Unit is one actor on the board.
type Unit struct {
	ID        string
	Faction   Faction
	Footprint hex.Footprint
	Stats     Stats
	Budget    *cost.Budget
	Pool      *cost.Pool

	mu      sync.RWMutex
	boardID string
}

// New creates a unit with a full budget and energy pool. An empty
// footprint means a single cell.
func New(id string, faction Faction, footprint hex.Footprint, stats Stats) *Unit {
	if len(footprint) == 0 {
		footprint = hex.Single
	}
	return &Unit{
		ID:        id,
		Faction:   faction,
		Footprint: footprint,
		Stats:     stats,
		Budget:    cost.NewBudget(stats.TurnSeconds),
		Pool:      cost.NewPool(stats.MaxEnergy),
	}
}

// GridActor implements occupancy.ActorContext.
func (u *Unit) GridActor() (occupancy.Actor, bool) {
	if u == nil || u.ID == "" {
		return occupancy.Actor{}, false
	}
	return occupancy.Actor{ID: occupancy.ActorID(u.ID), Footprint: u.Footprint}, true
}

// BoardID implements occupancy.BoardBinder.
func (u *Unit) BoardID() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.boardID
}

// BindBoard implements occupancy.BoardBinder.
func (u *Unit) BindBoard(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.boardID = id
}

// IsFriendly reports whether the unit acts in the friendly phase.
func (u *Unit) IsFriendly() bool {
	return u.Faction == FactionFriendly
}

// RuleContext builds the modifier snapshot for an action of this unit.
func (u *Unit) RuleContext() modifier.Context {
	return modifier.Context{
		ActorID: u.ID,
		Faction: string(u.Faction),
		Stats: modifier.Stats{
			Speed:       u.Stats.Speed,
			Energy:      u.Pool.Current(),
			MaxEnergy:   u.Pool.Max(),
			TurnSeconds: u.Budget.Total(),
		},
	}
}
