package cost

import (
	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// Decision is an affordable, modifier-adjusted price. It is a plan, not a
// commitment: nothing is deducted until the action resolves.
type Decision struct {
	Cost        modifier.Cost
	Description string
}

// Seconds returns the total time cost.
func (d Decision) Seconds() int { return d.Cost.Seconds() }

// Energy returns the total energy cost.
func (d Decision) Energy() int { return d.Cost.Energy() }

// Evaluator runs plans through the modifier pipeline and checks them
// against the actor's funds.
type Evaluator struct {
	pipeline *modifier.Pipeline
	logger   *zap.Logger
}

// NewEvaluator creates an evaluator. A nil pipeline behaves as an empty one.
func NewEvaluator(pipeline *modifier.Pipeline, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pipeline == nil {
		pipeline = modifier.NewPipeline(logger)
	}
	return &Evaluator{pipeline: pipeline, logger: logger}
}

// Pipeline returns the modifier pipeline the evaluator consults.
func (e *Evaluator) Pipeline() *modifier.Pipeline {
	return e.pipeline
}

// Evaluate checks a plan against the budget and pool. A nil budget or pool
// is treated as unlimited.
func (e *Evaluator) Evaluate(rc modifier.Context, plan Plan, budget *Budget, pool *Pool) (Decision, rules.Reason) {
	seconds, energy := -1, -1
	if budget != nil {
		seconds = budget.Remaining()
	}
	if pool != nil {
		energy = pool.Current()
	}
	return e.Check(rc, plan, seconds, energy)
}

// Check is Evaluate against explicit available funds; a negative amount
// means unlimited.
//
// The pipeline runs exactly once per call. A non-preview call may leave
// pending modifier bookkeeping behind even when it is rejected; the caller
// owns releasing it by publishing ActionCancelled for the ability.
func (e *Evaluator) Check(rc modifier.Context, plan Plan, availableSeconds, availableEnergy int) (Decision, rules.Reason) {
	if !plan.Usable {
		reason := plan.Reason
		if reason.OK() {
			reason = rules.ReasonNotReady
		}
		return Decision{}, reason
	}
	rc.PlannedSeconds = plan.TimeSeconds
	rc.PlannedEnergy = plan.Energy

	c := plan.Cost()
	e.pipeline.ApplyCost(rc, &c)

	if availableSeconds >= 0 && c.Seconds() > availableSeconds {
		e.logger.Debug("plan over budget",
			zap.String("actor_id", rc.ActorID),
			zap.String("ability_id", rc.AbilityID),
			zap.Int("seconds", c.Seconds()),
			zap.Int("available", availableSeconds))
		return Decision{Cost: c}, rules.ReasonNoBudget
	}
	if availableEnergy >= 0 && c.Energy() > availableEnergy {
		e.logger.Debug("plan over energy",
			zap.String("actor_id", rc.ActorID),
			zap.String("ability_id", rc.AbilityID),
			zap.Int("energy", c.Energy()),
			zap.Int("available", availableEnergy))
		return Decision{Cost: c}, rules.ReasonNotEnoughResource
	}
	return Decision{Cost: c, Description: plan.Description}, rules.ReasonOK
}

// ComboFactor runs a base multiplier through the combo policies.
func (e *Evaluator) ComboFactor(rc modifier.Context, base float64) float64 {
	return e.pipeline.ApplyComboFactor(rc, base)
}

// CooldownStart runs a base cooldown through the start policies.
func (e *Evaluator) CooldownStart(rc modifier.Context, seconds int) int {
	return e.pipeline.ApplyCooldownStart(rc, seconds)
}

// CooldownTick runs a base per-turn delta through the tick policies.
func (e *Evaluator) CooldownTick(rc modifier.Context, delta int) int {
	return e.pipeline.ApplyCooldownTick(rc, delta)
}
