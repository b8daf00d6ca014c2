package tools

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Attack strikes a hostile unit in reach. Every resolved use this turn
// raises the price of the next one by EscalationPercent, scaled by the
// combo policies.
type Attack struct {
	AbilityID         string
	Seconds           int
	Energy            int
	Damage            int
	Reach             int
	EscalationPercent int
	Cooldown          int
	Tags              []string
	After             []string
	// Derived runs right after a resolved hit when set.
	Derived action.Tool
	Cue     string

	mu   sync.Mutex
	uses map[string]int
}

// NewAttack creates a melee attack.
func NewAttack(id string, seconds, energy, damage int) *Attack {
	return &Attack{
		AbilityID: id,
		Seconds:   seconds,
		Energy:    energy,
		Damage:    damage,
		Reach:     1,
		Cue:       "attack",
	}
}

func (a *Attack) ID() string             { return a.AbilityID }
func (a *Attack) Kind() rules.ActionKind { return rules.KindStandard }
func (a *Attack) ChainTags() []string    { return append([]string{"attack"}, a.Tags...) }
func (a *Attack) Channel() cost.Channel  { return cost.ChannelAttack }
func (a *Attack) CooldownSeconds() int   { return a.Cooldown }

func (a *Attack) CanChainAfter(previousID string, previousTags []string) bool {
	return tagsMatch(a.After, previousID, previousTags)
}

func (a *Attack) ValidateTarget(env *action.Env, u *unit.Unit, target action.Target) rules.Reason {
	_, reason := unitTarget(env, u, target, a.Reach, true)
	return reason
}

// Uses returns how many times the actor resolved this attack this turn.
func (a *Attack) Uses(actorID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uses[actorID]
}

// RecordUse implements action.UsageTracker.
func (a *Attack) RecordUse(actorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uses == nil {
		a.uses = make(map[string]int)
	}
	a.uses[actorID]++
}

// ResetUsage implements action.UsageTracker.
func (a *Attack) ResetUsage(actorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.uses, actorID)
}

func (a *Attack) PlannedCost(pc action.PlanContext) cost.Plan {
	uses := a.Uses(pc.Unit.ID)
	factor := 1 + float64(a.EscalationPercent*uses)/100
	if pc.Env != nil && pc.Env.Evaluator != nil {
		rc := pc.Rule
		rc.ComboIndex = uses
		factor = pc.Env.Evaluator.ComboFactor(rc, factor)
	}
	seconds := int(math.Ceil(float64(a.Seconds) * factor))
	energy := int(math.Ceil(float64(a.Energy) * factor))
	desc := fmt.Sprintf("%ds, %d energy", seconds, energy)
	if uses > 0 {
		desc = fmt.Sprintf("%s (x%.2f, use %d this turn)", desc, factor, uses+1)
	}
	return cost.Plan{
		Usable:      true,
		TimeSeconds: seconds,
		Energy:      energy,
		Channel:     cost.ChannelAttack,
		Description: desc,
	}
}

func (a *Attack) Execute(ctx context.Context, ec *action.ExecContext) (action.Outcome, error) {
	if err := ec.Await(ctx, a.Cue); err != nil {
		return action.Outcome{}, err
	}
	info, ok := ec.Env.Occupancy.TryGetActorInfo(ec.Target.Cell)
	if !ok {
		return action.Outcome{Reason: rules.ReasonInvalidTarget, Message: "target left the cell"}, nil
	}
	ev := rules.NewEvent(rules.EventAttackLanded, ec.Unit.ID, a.AbilityID)
	ev.TargetID = string(info.ID)
	ev.Amount = a.Damage
	ec.Env.Bus.Publish(ev)

	out := action.Outcome{Amount: a.Damage}
	if a.Derived != nil {
		target := ec.Target
		target.UnitID = string(info.ID)
		out.FollowUp = &action.FollowUp{Tool: a.Derived, Target: target}
	}
	return out, nil
}
