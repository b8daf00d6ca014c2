// Package tools holds the standard action tools: movement, attacks, and
// generic catalog-defined abilities.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Move walks a unit along a path of adjacent cells, paying per step.
type Move struct {
	AbilityID      string
	SecondsPerStep int
	EnergyPerStep  int
	// MaxSteps caps the path length; zero means unlimited.
	MaxSteps int
	// SpeedLimited caps the path at the unit's speed stat.
	SpeedLimited bool
	// RefundThreshold is the number of untaken steps from which the time
	// for them is refunded after an interrupted move.
	RefundThreshold int
	Mode            occupancy.ReserveMode
	Cue             string
}

// NewMove creates a move tool that hard-reserves its destination.
func NewMove(id string, secondsPerStep, energyPerStep int) *Move {
	return &Move{
		AbilityID:       id,
		SecondsPerStep:  secondsPerStep,
		EnergyPerStep:   energyPerStep,
		RefundThreshold: 1,
		Mode:            occupancy.ReserveEndOnlyHard,
		Cue:             "move",
	}
}

func (m *Move) ID() string                          { return m.AbilityID }
func (m *Move) Kind() rules.ActionKind              { return rules.KindStandard }
func (m *Move) ChainTags() []string                 { return []string{"move"} }
func (m *Move) CanChainAfter(string, []string) bool { return true }
func (m *Move) Channel() cost.Channel               { return cost.ChannelMove }

func path(target action.Target) []hex.Cell {
	if len(target.Path) > 0 {
		return target.Path
	}
	return []hex.Cell{target.Cell}
}

// facingAlong returns the facing after stepping from prev into next.
func facingAlong(prev, next hex.Cell, fallback hex.Facing) hex.Facing {
	if d, ok := hex.DirectionTo(prev, next); ok {
		return hex.FacingOf(d)
	}
	return fallback
}

func (m *Move) ValidateTarget(env *action.Env, u *unit.Unit, target action.Target) rules.Reason {
	if m.SpeedLimited && u.Stats.Speed <= 0 {
		return rules.ReasonCantMove
	}
	anchor, facing, placed := env.Occupancy.PlacementOf(u)
	if !placed {
		return rules.ReasonNotPlaced
	}
	steps := path(target)
	if steps[0] == anchor && len(steps) == 1 {
		return rules.ReasonNoPath
	}
	if !hex.IsContiguous(append([]hex.Cell{anchor}, steps...)) {
		return rules.ReasonNoPath
	}
	if m.MaxSteps > 0 && len(steps) > m.MaxSteps {
		return rules.ReasonNoPath
	}
	if m.SpeedLimited && len(steps) > u.Stats.Speed {
		return rules.ReasonNoPath
	}
	layout := env.Occupancy.Layout()
	for _, c := range steps {
		if layout != nil && !layout.Contains(c) {
			return rules.ReasonOutOfBounds
		}
	}
	last := steps[len(steps)-1]
	prev := anchor
	if len(steps) > 1 {
		prev = steps[len(steps)-2]
	}
	if !env.Occupancy.IsFreeFor(u, last, facingAlong(prev, last, facing)) {
		return rules.ReasonPathBlocked
	}
	return rules.ReasonOK
}

func (m *Move) PlannedCost(pc action.PlanContext) cost.Plan {
	n := len(path(pc.Target))
	seconds, energy := n*m.SecondsPerStep, n*m.EnergyPerStep
	return cost.Plan{
		Usable:      true,
		TimeSeconds: seconds,
		Energy:      energy,
		Channel:     cost.ChannelMove,
		Description: fmt.Sprintf("%d step(s): %ds, %d energy", n, seconds, energy),
	}
}

// Prepare reserves the path.
func (m *Move) Prepare(ec *action.ExecContext) rules.Reason {
	_, res := ec.ReservePath(path(ec.Target), m.Mode)
	switch res {
	case occupancy.ReserveOK:
		return rules.ReasonOK
	case occupancy.ReserveNoActor:
		return rules.ReasonActorMissing
	case occupancy.ReserveNoStore:
		return rules.ReasonNoStore
	}
	return rules.ReasonPathBlocked
}

// Execute walks the path one acknowledged step at a time. An interrupted
// walk stops on the last reached cell and refunds the untaken steps.
func (m *Move) Execute(ctx context.Context, ec *action.ExecContext) (action.Outcome, error) {
	tokens := ec.Tokens()
	if len(tokens) == 0 {
		return action.Outcome{Reason: rules.ReasonTokenInvalid}, nil
	}
	anchor, facing, _ := ec.Env.Occupancy.PlacementOf(ec.Unit)
	steps := path(ec.Target)

	reached := -1
	for i := range steps {
		err := ec.Await(ctx, m.Cue)
		if errors.Is(err, action.ErrInterrupted) {
			break
		}
		if err != nil {
			return action.Outcome{}, err
		}
		reached = i
	}
	if reached < 0 {
		return action.Outcome{Reason: rules.ReasonCancelled, Message: "move interrupted before the first step"}, nil
	}

	prev := anchor
	if reached > 0 {
		prev = steps[reached-1]
	}
	final := steps[reached]
	ec.CommitOnResolve(tokens[0], final, facingAlong(prev, final, facing))

	refund := 0
	if untaken := len(steps) - 1 - reached; untaken > 0 && untaken >= m.RefundThreshold {
		refund = untaken * m.SecondsPerStep
	}
	return action.Outcome{RefundSeconds: refund, Amount: reached + 1}, nil
}
