package modifier

// Match restricts a policy to an ability and optionally an actor. The zero
// value matches everything.
type Match struct {
	ActorID   string
	AbilityID string
}

func (m Match) applies(rc Context) bool {
	if m.ActorID != "" && m.ActorID != rc.ActorID {
		return false
	}
	if m.AbilityID != "" && m.AbilityID != rc.AbilityID {
		return false
	}
	return true
}

// PercentCost scales every cost component by Percent. -50 halves the cost,
// 100 doubles it.
type PercentCost struct {
	Match
	Percent int
}

// ModifyCost implements CostModifier.
func (p PercentCost) ModifyCost(rc Context, cost *Cost) {
	if !p.applies(rc) {
		return
	}
	scale := func(v int) int { return v + v*p.Percent/100 }
	cost.MoveSeconds = scale(cost.MoveSeconds)
	cost.AttackSeconds = scale(cost.AttackSeconds)
	cost.MoveEnergy = scale(cost.MoveEnergy)
	cost.AttackEnergy = scale(cost.AttackEnergy)
}

// FlatCost adds fixed amounts to the time and energy cost. Negative values
// make the action cheaper.
type FlatCost struct {
	Match
	Seconds int
	Energy  int
}

// ModifyCost implements CostModifier.
func (f FlatCost) ModifyCost(rc Context, cost *Cost) {
	if !f.applies(rc) {
		return
	}
	if cost.AttackSeconds > 0 || cost.MoveSeconds == 0 {
		cost.AttackSeconds += f.Seconds
	} else {
		cost.MoveSeconds += f.Seconds
	}
	if cost.AttackEnergy > 0 || cost.MoveEnergy == 0 {
		cost.AttackEnergy += f.Energy
	} else {
		cost.MoveEnergy += f.Energy
	}
}

// SpeedScaledCooldown makes cooldowns recover faster for quicker actors: the
// per-turn tick becomes -(Base + speed).
type SpeedScaledCooldown struct {
	Match
	Base int
}

// OnStartCooldown implements CooldownPolicy.
func (SpeedScaledCooldown) OnStartCooldown(Context, *int) {}

// OnTickCooldown implements CooldownPolicy.
func (s SpeedScaledCooldown) OnTickCooldown(rc Context, delta *int) {
	if !s.applies(rc) {
		return
	}
	*delta = -(s.Base + rc.Stats.Speed)
}

// FlatCooldownStart lengthens or shortens a cooldown when it starts.
type FlatCooldownStart struct {
	Match
	Seconds int
}

// OnStartCooldown implements CooldownPolicy.
func (f FlatCooldownStart) OnStartCooldown(rc Context, start *int) {
	if !f.applies(rc) {
		return
	}
	*start += f.Seconds
	if *start < 0 {
		*start = 0
	}
}

// OnTickCooldown implements CooldownPolicy.
func (FlatCooldownStart) OnTickCooldown(Context, *int) {}

// ComboScale multiplies the combo factor.
type ComboScale struct {
	Match
	Factor float64
}

// ModifyComboFactor implements ComboPolicy.
func (c ComboScale) ModifyComboFactor(rc Context, factor *float64) {
	if !c.applies(rc) {
		return
	}
	*factor *= c.Factor
}
