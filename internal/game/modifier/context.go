// Package modifier is the ordered set of pluggable policies that intercept
// cost, cooldown, and combo-factor computation.
package modifier

import "github.com/hexline/hexline-server-go/internal/game/rules"

// Stats is the stat snapshot carried by a Context.
type Stats struct {
	Speed       int
	Energy      int
	MaxEnergy   int
	TurnSeconds int
}

// Context is a value snapshot handed to every modifier invocation.
// Modifiers may only change the pointer arguments they are given.
type Context struct {
	ActorID        string
	Faction        string
	AbilityID      string
	Kind           rules.ActionKind
	ChainDepth     int
	ComboIndex     int
	PlannedSeconds int
	PlannedEnergy  int
	Stats          Stats
	// Preview is set for HUD-only evaluations that must not register any
	// pending bookkeeping.
	Preview bool
}

// Cost is the mutable price passed through cost modifiers.
type Cost struct {
	MoveSeconds   int
	AttackSeconds int
	MoveEnergy    int
	AttackEnergy  int
}

// Seconds returns the total time cost.
func (c Cost) Seconds() int {
	return c.MoveSeconds + c.AttackSeconds
}

// Energy returns the total resource cost.
func (c Cost) Energy() int {
	return c.MoveEnergy + c.AttackEnergy
}

// Clamp floors every component at zero.
func (c *Cost) Clamp() {
	for _, v := range []*int{&c.MoveSeconds, &c.AttackSeconds, &c.MoveEnergy, &c.AttackEnergy} {
		if *v < 0 {
			*v = 0
		}
	}
}

// CostModifier intercepts cost computation at action confirmation.
type CostModifier interface {
	ModifyCost(rc Context, cost *Cost)
}

// CooldownPolicy intercepts cooldown start and per-turn tick.
type CooldownPolicy interface {
	OnStartCooldown(rc Context, startSeconds *int)
	OnTickCooldown(rc Context, tickDelta *int)
}

// ComboPolicy scales a combo or repeat-penalty multiplier.
type ComboPolicy interface {
	ModifyComboFactor(rc Context, factor *float64)
}

// CostFunc adapts a function to CostModifier.
type CostFunc func(rc Context, cost *Cost)

// ModifyCost calls f.
func (f CostFunc) ModifyCost(rc Context, cost *Cost) { f(rc, cost) }

// ComboFunc adapts a function to ComboPolicy.
type ComboFunc func(rc Context, factor *float64)

// ModifyComboFactor calls f.
func (f ComboFunc) ModifyComboFactor(rc Context, factor *float64) { f(rc, factor) }
