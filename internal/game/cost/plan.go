// Package cost turns a tool's proposed price into an affordability decision
// against an actor's turn budget and energy pool.
package cost

import (
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// Channel says which cost slots a plan is charged to.
type Channel int

const (
	ChannelAttack Channel = iota
	ChannelMove
)

func (c Channel) String() string {
	if c == ChannelMove {
		return "move"
	}
	return "attack"
}

// Plan is the proposed price of an action, computed by the tool before any
// rule modification.
type Plan struct {
	Usable      bool
	TimeSeconds int
	Energy      int
	Channel     Channel
	Description string
	// Reason explains why an unusable plan cannot be used.
	Reason rules.Reason
}

// Unusable returns a plan rejected for the given reason.
func Unusable(reason rules.Reason) Plan {
	return Plan{Reason: reason}
}

// Cost places the plan's price into the matching modifier slots.
func (p Plan) Cost() modifier.Cost {
	if p.Channel == ChannelMove {
		return modifier.Cost{MoveSeconds: p.TimeSeconds, MoveEnergy: p.Energy}
	}
	return modifier.Cost{AttackSeconds: p.TimeSeconds, AttackEnergy: p.Energy}
}
