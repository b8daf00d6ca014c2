package tools

import (
	"context"
	"fmt"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Ability is a data-defined action with a fixed price. With Reach zero it
// needs no target; FullRound abilities resolve Turns turn starts later.
type Ability struct {
	AbilityID  string
	ActionKind rules.ActionKind
	Seconds    int
	Energy     int
	Cooldown   int
	Amount     int
	Reach      int
	Hostile    bool
	// Duration is the number of turn starts a FullRound ability waits.
	Duration int
	Tags     []string
	After    []string
	Cue      string
}

func (a *Ability) ID() string             { return a.AbilityID }
func (a *Ability) Kind() rules.ActionKind { return a.ActionKind }
func (a *Ability) ChainTags() []string    { return a.Tags }
func (a *Ability) Channel() cost.Channel  { return cost.ChannelAttack }
func (a *Ability) CooldownSeconds() int   { return a.Cooldown }

func (a *Ability) CanChainAfter(previousID string, previousTags []string) bool {
	return tagsMatch(a.After, previousID, previousTags)
}

func (a *Ability) ValidateTarget(env *action.Env, u *unit.Unit, target action.Target) rules.Reason {
	if a.Reach <= 0 {
		return rules.ReasonOK
	}
	_, reason := unitTarget(env, u, target, a.Reach, a.Hostile)
	return reason
}

func (a *Ability) PlannedCost(action.PlanContext) cost.Plan {
	return cost.Plan{
		Usable:      true,
		TimeSeconds: a.Seconds,
		Energy:      a.Energy,
		Channel:     cost.ChannelAttack,
		Description: fmt.Sprintf("%ds, %d energy", a.Seconds, a.Energy),
	}
}

func (a *Ability) Execute(ctx context.Context, ec *action.ExecContext) (action.Outcome, error) {
	cue := a.Cue
	if cue == "" {
		cue = a.AbilityID
	}
	if err := ec.Await(ctx, cue); err != nil {
		return action.Outcome{}, err
	}
	return action.Outcome{Amount: a.Amount}, nil
}

// Turns implements action.FullRoundTool.
func (a *Ability) Turns() int { return a.Duration }

// OnImmediate implements action.FullRoundTool.
func (a *Ability) OnImmediate(*unit.Unit, action.Target) {}

// OnResolve implements action.FullRoundTool. The effect is announced as
// ActionResolved by the controller; a target that left the board fails it.
func (a *Ability) OnResolve(ctx context.Context, env *action.Env, u *unit.Unit, target action.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Reach <= 0 {
		return nil
	}
	if _, ok := env.Occupancy.TryGetActorInfo(target.Cell); !ok {
		return fmt.Errorf("full-round %s: target at %s is gone", a.AbilityID, target.Cell)
	}
	return nil
}
