package action

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Gate decides whether a unit may activate a kind of action right now.
type Gate interface {
	CanActivate(u *unit.Unit, kind rules.ActionKind) rules.Reason
}

// Channeler is implemented by tools that say whether rejections should be
// reported as move or attack feedback.
type Channeler interface {
	Channel() cost.Channel
}

// Report describes what a confirm, chain selection, or full-round trigger
// did.
type Report struct {
	ActorID         string             `json:"actor_id"`
	AbilityID       string             `json:"ability_id"`
	Kind            rules.ActionKind   `json:"kind"`
	Phase           Phase              `json:"phase"`
	UsedSeconds     int                `json:"used_seconds"`
	RefundedSeconds int                `json:"refunded_seconds"`
	Energy          int                `json:"energy"`
	Amount          int                `json:"amount,omitempty"`
	Txn             occupancy.TxnID    `json:"txn,omitempty"`
	Queued          bool               `json:"queued,omitempty"`
	QueueID         string             `json:"queue_id,omitempty"`
	ChainPrompt     []rules.ActionKind `json:"chain_prompt,omitempty"`
	ChainCandidates []string           `json:"chain_candidates,omitempty"`
	Chain           []Report           `json:"chain,omitempty"`
}

// staged is a confirmed action that passed its precheck and holds its
// finalized price.
type staged struct {
	tool     Tool
	target   Target
	decision cost.Decision
	rc       modifier.Context
	ec       *ExecContext
	depth    int
}

type actorState struct {
	phase  Phase
	tool   Tool
	base   *staged
	queued []*staged
	usage  map[string]UsageTracker
}

// Option configures a Controller.
type Option func(*Controller)

// WithGate restricts activation, typically to the active turn phase.
func WithGate(g Gate) Option {
	return func(c *Controller) { c.gate = g }
}

// WithChainRules replaces the default chain rules.
func WithChainRules(r ChainRules) Option {
	return func(c *Controller) { c.chain = r }
}

// WithChainSource enables chain prompts offering the source's tools.
func WithChainSource(s ChainSource) Option {
	return func(c *Controller) { c.source = s }
}

// WithAcknowledger sets the awaitable Execute phases suspend on.
func WithAcknowledger(a Acknowledger) Option {
	return func(c *Controller) { c.ack = a }
}

// Controller is the per-actor action state machine.
type Controller struct {
	env    *Env
	gate   Gate
	chain  ChainRules
	source ChainSource
	ack    Acknowledger
	queue  *FullRoundQueue
	logger *zap.Logger

	mu     sync.Mutex
	actors map[string]*actorState
}

// NewController wires a controller to its services. Every service in env
// except Units is required.
func NewController(env Env, logger *zap.Logger, opts ...Option) (*Controller, error) {
	switch {
	case env.Occupancy == nil:
		return nil, ErrMissingOccupancy
	case env.Cooldowns == nil:
		return nil, ErrMissingCooldowns
	case env.Evaluator == nil:
		return nil, ErrMissingEvaluator
	case env.Bus == nil:
		return nil, ErrMissingBus
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		env:    &env,
		chain:  DefaultChainRules{MaxDepth: 2},
		ack:    Immediate,
		queue:  NewFullRoundQueue(),
		logger: logger,
		actors: make(map[string]*actorState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SetGate installs the activation gate after construction, for gates that
// themselves depend on the controller.
func (c *Controller) SetGate(g Gate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = g
}

// Env returns the services the controller works against.
func (c *Controller) Env() *Env {
	return c.env
}

// FullRound returns the full-round queue.
func (c *Controller) FullRound() *FullRoundQueue {
	return c.queue
}

func (c *Controller) stateLocked(id string) *actorState {
	st, ok := c.actors[id]
	if !ok {
		st = &actorState{usage: make(map[string]UsageTracker)}
		c.actors[id] = st
	}
	return st
}

// Phase returns the unit's current phase.
func (c *Controller) Phase(u *unit.Unit) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.actors[u.ID]; ok {
		return st.phase
	}
	return PhaseIdle
}

func (c *Controller) transition(u *unit.Unit, to Phase) {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	from := st.phase
	st.phase = to
	c.mu.Unlock()
	c.announce(u, from, to)
}

func (c *Controller) announce(u *unit.Unit, from, to Phase) {
	if from == to {
		return
	}
	c.logger.Debug("phase changed",
		zap.String("actor_id", u.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	ev := rules.NewEvent(rules.EventPhaseChanged, u.ID, "")
	ev.Metadata = map[string]string{"from": from.String(), "to": to.String()}
	c.env.Bus.Publish(ev)
}

// toIdle returns the unit to Idle and clears the aimed tool.
func (c *Controller) toIdle(u *unit.Unit) {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	tool := st.tool
	st.tool = nil
	st.base = nil
	st.queued = nil
	c.mu.Unlock()
	if hook, ok := tool.(AimHook); ok {
		hook.OnExitAim(u)
	}
	c.transition(u, PhaseIdle)
}

func (c *Controller) feedback(u *unit.Unit, tool Tool, reason rules.Reason) {
	eventType := rules.EventAttackRejected
	if ch, ok := tool.(Channeler); ok && ch.Channel() == cost.ChannelMove {
		eventType = rules.EventMoveRejected
	}
	abilityID := ""
	if tool != nil {
		abilityID = tool.ID()
	}
	c.env.Bus.Publish(rules.NewRejection(eventType, u.ID, abilityID, reason))
}

// BeginAim selects a tool. It is rejected while another of the unit's
// actions is in flight, outside the unit's activation window, or while a
// full-round action is pending.
func (c *Controller) BeginAim(u *unit.Unit, tool Tool) error {
	if u == nil {
		return reject(StageAimRejected, rules.ReasonActorMissing)
	}
	if tool == nil {
		return reject(StageAimRejected, rules.ReasonNotReady)
	}

	c.mu.Lock()
	st := c.stateLocked(u.ID)
	reason := rules.ReasonOK
	switch {
	case st.phase.inFlight(), st.phase == PhaseChainPromptOpen:
		reason = rules.ReasonBusy
	case c.queue.Pending(u.ID):
		reason = rules.ReasonFullRoundPending
	case c.gate != nil:
		reason = c.gate.CanActivate(u, tool.Kind())
	}
	var previous Tool
	if reason.OK() {
		previous = st.tool
		st.tool = tool
	}
	c.mu.Unlock()

	if !reason.OK() {
		c.logger.Debug("aim rejected",
			zap.String("actor_id", u.ID),
			zap.String("ability_id", tool.ID()),
			zap.Stringer("reason", reason))
		c.feedback(u, tool, reason)
		return reject(StageAimRejected, reason)
	}
	if hook, ok := previous.(AimHook); ok {
		hook.OnExitAim(u)
	}
	if hook, ok := tool.(AimHook); ok {
		hook.OnEnterAim(u)
	}
	c.transition(u, PhaseAimBegin)
	return nil
}

// CancelAim leaves aim without confirming.
func (c *Controller) CancelAim(u *unit.Unit) bool {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	aiming := st.phase == PhaseAimBegin
	c.mu.Unlock()
	if !aiming {
		return false
	}
	c.toIdle(u)
	return true
}

// Confirm commits the aimed tool to a target. Any rejection before resolve
// returns the unit to Idle with budget, energy, cooldowns, and occupancy
// untouched.
func (c *Controller) Confirm(ctx context.Context, u *unit.Unit, target Target) (Report, error) {
	if u == nil {
		return Report{}, reject(StageAimRejected, rules.ReasonActorMissing)
	}
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	if st.phase.inFlight() || st.phase == PhaseChainPromptOpen {
		c.mu.Unlock()
		return Report{}, reject(StagePreDeductCheckFail, rules.ReasonBusy)
	}
	if st.phase != PhaseAimBegin || st.tool == nil {
		c.mu.Unlock()
		return Report{}, reject(StageAimRejected, rules.ReasonNotReady)
	}
	tool := st.tool
	st.phase = PhaseConfirmStart
	c.mu.Unlock()
	c.announce(u, PhaseAimBegin, PhaseConfirmStart)

	s, err := c.stage(u, tool, target, 0, 0, 0, true)
	if err != nil {
		c.feedback(u, tool, err.Reason)
		c.toIdle(u)
		return Report{}, err
	}

	if frt, ok := tool.(FullRoundTool); ok && tool.Kind() == rules.KindFullRound {
		rep, err := c.queueFullRound(u, frt, s)
		c.toIdle(u)
		return rep, err
	}

	allowed := c.chain.Allowed(tool.Kind(), u.IsFriendly(), 0)
	if candidates := c.candidates(u, s, allowed); len(candidates) > 0 {
		c.mu.Lock()
		st.base = s
		st.queued = nil
		c.mu.Unlock()
		c.transition(u, PhaseChainPromptOpen)
		return Report{
			ActorID:         u.ID,
			AbilityID:       tool.ID(),
			Kind:            tool.Kind(),
			Phase:           PhaseChainPromptOpen,
			ChainPrompt:     allowed,
			ChainCandidates: candidates,
		}, nil
	}
	return c.runChain(ctx, u, []*staged{s})
}

// stage runs target validation, the cooldown and cost precheck, and the
// tool's preparation. reservedSeconds and reservedEnergy are already
// promised to earlier actions of the same chain.
func (c *Controller) stage(u *unit.Unit, tool Tool, target Target, depth, reservedSeconds, reservedEnergy int, track bool) (*staged, *Error) {
	if reason := tool.ValidateTarget(c.env, u, target); !reason.OK() {
		c.logger.Debug("target invalid",
			zap.String("actor_id", u.ID),
			zap.String("ability_id", tool.ID()),
			zap.Stringer("reason", reason))
		return nil, reject(StageTargetInvalid, reason)
	}
	if track {
		c.transition(u, PhasePrecheckOK)
	}
	if !c.env.Cooldowns.For(u.ID).Ready(tool.ID()) {
		return nil, reject(StagePreDeductCheckFail, rules.ReasonOnCooldown)
	}
	if track {
		c.transition(u, PhasePreDeductCheck)
	}

	rc := u.RuleContext()
	rc.AbilityID = tool.ID()
	rc.Kind = tool.Kind()
	rc.ChainDepth = depth
	plan := tool.PlannedCost(PlanContext{Env: c.env, Unit: u, Target: target, Rule: rc})

	seconds := u.Budget.Remaining() - reservedSeconds
	energy := u.Pool.Current() - reservedEnergy
	decision, reason := c.env.Evaluator.Check(rc, plan, seconds, energy)
	if !reason.OK() {
		c.logger.Debug("precheck failed",
			zap.String("actor_id", u.ID),
			zap.String("ability_id", tool.ID()),
			zap.Stringer("reason", reason))
		if plan.Usable {
			c.discardPending(u, tool)
		}
		return nil, reject(StagePreDeductCheckFail, reason)
	}

	ec := &ExecContext{Env: c.env, Unit: u, Target: target, ChainDepth: depth, ack: c.ack}
	if p, ok := tool.(Preparer); ok {
		if reason := p.Prepare(ec); !reason.OK() {
			ec.release()
			c.discardPending(u, tool)
			return nil, reject(StagePreDeductCheckFail, reason)
		}
	}
	ec.Decision = decision
	return &staged{tool: tool, target: target, decision: decision, rc: rc, ec: ec, depth: depth}, nil
}

// discardPending raises ActionCancelled for a confirmation the cost
// pipeline already saw, so modifiers drop any pending usage they recorded.
func (c *Controller) discardPending(u *unit.Unit, tool Tool) {
	c.env.Bus.Publish(rules.NewEvent(rules.EventActionCancelled, u.ID, tool.ID()))
}

// candidates lists chainable tool ids after prev for the allowed kinds.
func (c *Controller) candidates(u *unit.Unit, prev *staged, allowed []rules.ActionKind) []string {
	if c.source == nil || len(allowed) == 0 {
		return nil
	}
	var ids []string
	for _, t := range c.source.ChainCandidates(u) {
		if t == nil || !kindAllowed(t.Kind(), allowed) {
			continue
		}
		if !t.CanChainAfter(prev.tool.ID(), prev.tool.ChainTags()) {
			continue
		}
		ids = append(ids, t.ID())
	}
	return ids
}

// SelectChain adds a follow-up to the open chain prompt. The kind filter
// runs before tag compatibility and before any cost check. A rejected
// selection keeps the prompt open.
func (c *Controller) SelectChain(ctx context.Context, u *unit.Unit, tool Tool, target Target) (Report, error) {
	if tool == nil {
		return Report{}, reject(StageChainRejected, rules.ReasonNotReady)
	}
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	if st.phase != PhaseChainPromptOpen || st.base == nil {
		c.mu.Unlock()
		return Report{}, reject(StageChainRejected, rules.ReasonWrongPhase)
	}
	base := st.base
	prev := base
	if n := len(st.queued); n > 0 {
		prev = st.queued[n-1]
	}
	depth := len(st.queued)
	reservedSeconds, reservedEnergy := base.decision.Seconds(), base.decision.Energy()
	for _, q := range st.queued {
		reservedSeconds += q.decision.Seconds()
		reservedEnergy += q.decision.Energy()
	}
	c.mu.Unlock()

	allowed := c.chain.Allowed(base.tool.Kind(), u.IsFriendly(), depth)
	if !kindAllowed(tool.Kind(), allowed) {
		c.logger.Debug("chain kind not allowed",
			zap.String("actor_id", u.ID),
			zap.String("ability_id", tool.ID()),
			zap.Stringer("kind", tool.Kind()))
		c.feedback(u, tool, rules.ReasonKindNotAllowed)
		return Report{}, reject(StageChainRejected, rules.ReasonKindNotAllowed)
	}
	if !tool.CanChainAfter(prev.tool.ID(), prev.tool.ChainTags()) {
		c.feedback(u, tool, rules.ReasonChainIncompatible)
		return Report{}, reject(StageChainRejected, rules.ReasonChainIncompatible)
	}

	s, err := c.stage(u, tool, target, depth+1, reservedSeconds, reservedEnergy, false)
	if err != nil {
		c.feedback(u, tool, err.Reason)
		return Report{}, err
	}

	c.mu.Lock()
	if st.phase != PhaseChainPromptOpen || st.base != base {
		c.mu.Unlock()
		c.cancelStaged(u, s)
		return Report{}, reject(StageChainRejected, rules.ReasonWrongPhase)
	}
	st.queued = append(st.queued, s)
	next := len(st.queued)
	c.mu.Unlock()

	nextAllowed := c.chain.Allowed(base.tool.Kind(), u.IsFriendly(), next)
	if candidates := c.candidates(u, s, nextAllowed); len(candidates) > 0 {
		return Report{
			ActorID:         u.ID,
			AbilityID:       tool.ID(),
			Kind:            tool.Kind(),
			Phase:           PhaseChainPromptOpen,
			ChainPrompt:     nextAllowed,
			ChainCandidates: candidates,
		}, nil
	}
	return c.runPrompt(ctx, u)
}

// SkipChain closes the chain prompt and runs the base action plus any
// selected follow-ups.
func (c *Controller) SkipChain(ctx context.Context, u *unit.Unit) (Report, error) {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	open := st.phase == PhaseChainPromptOpen && st.base != nil
	c.mu.Unlock()
	if !open {
		return Report{}, reject(StageChainRejected, rules.ReasonWrongPhase)
	}
	return c.runPrompt(ctx, u)
}

func (c *Controller) runPrompt(ctx context.Context, u *unit.Unit) (Report, error) {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	if st.base == nil {
		c.mu.Unlock()
		return Report{}, reject(StageChainRejected, rules.ReasonWrongPhase)
	}
	list := append([]*staged{st.base}, st.queued...)
	st.base = nil
	st.queued = nil
	c.mu.Unlock()
	return c.runChain(ctx, u, list)
}

// CancelChain abandons the open chain prompt. Every staged action raises
// ActionCancelled and all of the unit's reservations are released. Returns
// the number of cancelled actions.
func (c *Controller) CancelChain(u *unit.Unit) int {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	if st.phase != PhaseChainPromptOpen || st.base == nil {
		c.mu.Unlock()
		return 0
	}
	list := append([]*staged{st.base}, st.queued...)
	st.base = nil
	st.queued = nil
	c.mu.Unlock()

	for _, s := range list {
		c.cancelStaged(u, s)
	}
	released := c.env.Occupancy.CancelAll(u)
	c.logger.Debug("chain cancelled",
		zap.String("actor_id", u.ID),
		zap.Int("actions", len(list)),
		zap.Int("reservations", released))
	c.toIdle(u)
	return len(list)
}

func (c *Controller) cancelStaged(u *unit.Unit, s *staged) {
	s.ec.release()
	c.env.Bus.Publish(rules.NewEvent(rules.EventActionCancelled, u.ID, s.tool.ID()))
}

// runChain executes and resolves staged actions in order. The first failure
// cancels the rest.
func (c *Controller) runChain(ctx context.Context, u *unit.Unit, list []*staged) (Report, error) {
	var head Report
	for i, s := range list {
		rep, err := c.executeAndResolve(ctx, u, s)
		if i == 0 {
			head = rep
		} else if err == nil {
			head.Chain = append(head.Chain, rep)
		}
		if err != nil {
			for _, rest := range list[i+1:] {
				c.cancelStaged(u, rest)
			}
			c.toIdle(u)
			return head, err
		}
	}
	c.toIdle(u)
	head.Phase = PhaseIdle
	return head, nil
}

// executeAndResolve runs one staged action through execute and resolve and,
// for top-level actions, one layer of derived follow-up.
func (c *Controller) executeAndResolve(ctx context.Context, u *unit.Unit, s *staged) (Report, error) {
	c.transition(u, PhaseExecuteBegin)
	outcome, err := s.tool.Execute(ctx, s.ec)
	c.transition(u, PhaseExecuteEnd)

	if err != nil {
		c.cancelStaged(u, s)
		reason := rules.ReasonCancelled
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.logger.Debug("execute cancelled", zap.String("actor_id", u.ID), zap.Error(err))
		} else {
			c.logger.Warn("execute failed", zap.String("actor_id", u.ID), zap.String("ability_id", s.tool.ID()), zap.Error(err))
		}
		return Report{}, &Error{Stage: StageConfirmAbort, Reason: reason, Message: err.Error()}
	}
	if !outcome.Reason.OK() {
		c.cancelStaged(u, s)
		c.feedback(u, s.tool, outcome.Reason)
		return Report{}, &Error{Stage: StageConfirmAbort, Reason: outcome.Reason, Message: outcome.Message}
	}

	c.transition(u, PhaseResolveBegin)
	rep, rerr := c.resolve(u, s, outcome)
	if rerr != nil {
		return rep, rerr
	}
	c.transition(u, PhaseResolveEnd)

	if outcome.FollowUp != nil && s.depth == 0 {
		if derived, err := c.followUp(ctx, u, s, outcome.FollowUp); err == nil {
			rep.Chain = append(rep.Chain, derived)
		} else {
			c.logger.Debug("derived action skipped",
				zap.String("actor_id", u.ID),
				zap.String("ability_id", outcome.FollowUp.Tool.ID()),
				zap.Error(err))
		}
	}
	return rep, nil
}

func (c *Controller) followUp(ctx context.Context, u *unit.Unit, base *staged, fu *FollowUp) (Report, error) {
	if fu.Tool == nil {
		return Report{}, reject(StageChainRejected, rules.ReasonNotReady)
	}
	if k := fu.Tool.Kind(); k != rules.KindDerived && k != rules.KindFree {
		return Report{}, reject(StageChainRejected, rules.ReasonKindNotAllowed)
	}
	if !fu.Tool.CanChainAfter(base.tool.ID(), base.tool.ChainTags()) {
		return Report{}, reject(StageChainRejected, rules.ReasonChainIncompatible)
	}
	s, err := c.stage(u, fu.Tool, fu.Target, base.depth+1, 0, 0, false)
	if err != nil {
		c.feedback(u, fu.Tool, err.Reason)
		return Report{}, err
	}
	return c.executeAndResolve(ctx, u, s)
}

// resolve deducts the price, starts the cooldown, and commits the pending
// reservation. If the commit fails every applied effect is reverted and
// ActionRejected is raised instead of ActionResolved.
func (c *Controller) resolve(u *unit.Unit, s *staged, outcome Outcome) (Report, error) {
	abilityID := s.tool.ID()
	seconds, energy := s.decision.Seconds(), s.decision.Energy()

	if !u.Budget.Spend(seconds) {
		c.rejectResolve(u, s, rules.ReasonNoBudget)
		return Report{}, reject(StageConfirmAbort, rules.ReasonNoBudget)
	}
	if !u.Pool.Spend(energy) {
		u.Budget.Refund(seconds)
		c.rejectResolve(u, s, rules.ReasonNotEnoughResource)
		return Report{}, reject(StageConfirmAbort, rules.ReasonNotEnoughResource)
	}
	refund := outcome.RefundSeconds
	if refund < 0 {
		refund = 0
	}
	if refund > seconds {
		refund = seconds
	}
	u.Budget.Refund(refund)

	tracker := c.env.Cooldowns.For(u.ID)
	previousCooldown := tracker.SecondsLeft(abilityID)
	if ct, ok := s.tool.(CooldownTool); ok {
		if start := c.env.Evaluator.CooldownStart(s.rc, ct.CooldownSeconds()); start > 0 {
			tracker.StartSeconds(abilityID, start)
		}
	}

	var txn occupancy.TxnID
	if pc := s.ec.commit; pc != nil {
		var reason rules.Reason
		txn, reason = c.env.Occupancy.Commit(u, pc.token, pc.anchor, pc.facing)
		if !reason.OK() {
			u.Budget.Refund(seconds - refund)
			u.Pool.Add(energy)
			tracker.StartSeconds(abilityID, previousCooldown)
			c.logger.Info("late commit failed, action reverted",
				zap.String("actor_id", u.ID),
				zap.String("ability_id", abilityID),
				zap.Stringer("reason", reason))
			c.rejectResolve(u, s, rules.ReasonBlocked)
			c.env.Bus.Publish(rules.NewRejection(rules.EventMoveRejected, u.ID, abilityID, rules.ReasonBlocked))
			return Report{}, reject(StageBlocked, rules.ReasonBlocked)
		}
	}
	s.ec.release()

	if ut, ok := s.tool.(UsageTracker); ok {
		ut.RecordUse(u.ID)
		c.mu.Lock()
		c.stateLocked(u.ID).usage[abilityID] = ut
		c.mu.Unlock()
	}

	ev := rules.NewEvent(rules.EventActionResolved, u.ID, abilityID)
	ev.TargetID = s.target.UnitID
	ev.Amount = outcome.Amount
	ev.Metadata = map[string]string{
		"seconds": strconv.Itoa(seconds - refund),
		"energy":  strconv.Itoa(energy),
		"depth":   strconv.Itoa(s.depth),
	}
	if txn != 0 {
		ev.Metadata["txn"] = strconv.FormatUint(uint64(txn), 10)
	}
	c.env.Bus.Publish(ev)

	c.logger.Debug("action resolved",
		zap.String("actor_id", u.ID),
		zap.String("ability_id", abilityID),
		zap.Int("seconds", seconds-refund),
		zap.Int("energy", energy),
		zap.Uint64("txn", uint64(txn)))

	return Report{
		ActorID:         u.ID,
		AbilityID:       abilityID,
		Kind:            s.tool.Kind(),
		Phase:           PhaseResolveEnd,
		UsedSeconds:     seconds - refund,
		RefundedSeconds: refund,
		Energy:          energy,
		Amount:          outcome.Amount,
		Txn:             txn,
	}, nil
}

func (c *Controller) rejectResolve(u *unit.Unit, s *staged, reason rules.Reason) {
	s.ec.release()
	c.env.Bus.Publish(rules.NewRejection(rules.EventActionRejected, u.ID, s.tool.ID(), reason))
}

// queueFullRound captures the price now and defers the effect to a later
// turn start.
func (c *Controller) queueFullRound(u *unit.Unit, tool FullRoundTool, s *staged) (Report, error) {
	seconds, energy := s.decision.Seconds(), s.decision.Energy()
	if !u.Budget.Spend(seconds) {
		c.rejectResolve(u, s, rules.ReasonNoBudget)
		return Report{}, reject(StageConfirmAbort, rules.ReasonNoBudget)
	}
	if !u.Pool.Spend(energy) {
		u.Budget.Refund(seconds)
		c.rejectResolve(u, s, rules.ReasonNotEnoughResource)
		return Report{}, reject(StageConfirmAbort, rules.ReasonNotEnoughResource)
	}
	if ct, ok := s.tool.(CooldownTool); ok {
		if start := c.env.Evaluator.CooldownStart(s.rc, ct.CooldownSeconds()); start > 0 {
			c.env.Cooldowns.StartSeconds(u.ID, tool.ID(), start)
		}
	}
	s.ec.release()

	turns := tool.Turns()
	if turns < 1 {
		turns = 1
	}
	tool.OnImmediate(u, s.target)
	id := c.queue.Push(&QueuedFullRound{
		Unit:      u,
		Tool:      tool,
		Target:    s.target,
		Decision:  s.decision,
		TurnsLeft: turns,
	})

	ev := rules.NewEvent(rules.EventFullRoundQueued, u.ID, tool.ID())
	ev.Metadata = map[string]string{"queue_id": id, "turns": strconv.Itoa(turns)}
	c.env.Bus.Publish(ev)
	c.logger.Debug("full-round action queued",
		zap.String("actor_id", u.ID),
		zap.String("ability_id", tool.ID()),
		zap.String("queue_id", id),
		zap.Int("turns", turns))

	return Report{
		ActorID:     u.ID,
		AbilityID:   tool.ID(),
		Kind:        tool.Kind(),
		Phase:       PhaseIdle,
		UsedSeconds: seconds,
		Energy:      energy,
		Queued:      true,
		QueueID:     id,
	}, nil
}

// HasPendingFullRound reports whether the unit waits on a full-round action.
func (c *Controller) HasPendingFullRound(u *unit.Unit) bool {
	return c.queue.Pending(u.ID)
}

// AdvanceFullRound counts one turn start for the unit and resolves every
// full-round action that became due.
func (c *Controller) AdvanceFullRound(ctx context.Context, u *unit.Unit) ([]Report, error) {
	var (
		reports []Report
		errs    []error
	)
	for _, item := range c.queue.Advance(u.ID) {
		abilityID := item.Tool.ID()
		trig := rules.NewEvent(rules.EventFullRoundTriggered, u.ID, abilityID)
		trig.Metadata = map[string]string{"queue_id": item.ID}
		c.env.Bus.Publish(trig)

		if err := item.Tool.OnResolve(ctx, c.env, u, item.Target); err != nil {
			c.logger.Warn("full-round resolution failed",
				zap.String("actor_id", u.ID),
				zap.String("ability_id", abilityID),
				zap.Error(err))
			c.env.Bus.Publish(rules.NewRejection(rules.EventActionRejected, u.ID, abilityID, rules.ReasonCancelled))
			errs = append(errs, err)
			continue
		}
		if ut, ok := item.Tool.(UsageTracker); ok {
			ut.RecordUse(u.ID)
			c.mu.Lock()
			c.stateLocked(u.ID).usage[abilityID] = ut
			c.mu.Unlock()
		}
		ev := rules.NewEvent(rules.EventActionResolved, u.ID, abilityID)
		ev.TargetID = item.Target.UnitID
		ev.Metadata = map[string]string{"queue_id": item.ID}
		c.env.Bus.Publish(ev)
		reports = append(reports, Report{
			ActorID:     u.ID,
			AbilityID:   abilityID,
			Kind:        item.Tool.Kind(),
			Phase:       PhaseResolveEnd,
			UsedSeconds: item.Decision.Seconds(),
			Energy:      item.Decision.Energy(),
			QueueID:     item.ID,
		})
	}
	return reports, errors.Join(errs...)
}

// ResetTurnUsage clears the per-turn usage counters of every tool the unit
// resolved.
func (c *Controller) ResetTurnUsage(u *unit.Unit) {
	c.mu.Lock()
	st := c.stateLocked(u.ID)
	trackers := make([]UsageTracker, 0, len(st.usage))
	for _, ut := range st.usage {
		trackers = append(trackers, ut)
	}
	st.usage = make(map[string]UsageTracker)
	c.mu.Unlock()
	for _, ut := range trackers {
		ut.ResetUsage(u.ID)
	}
}

// Remove despawns the unit: pending chain and full-round actions are
// cancelled, its cooldowns cleared, and it is removed from the board.
func (c *Controller) Remove(u *unit.Unit) {
	c.mu.Lock()
	st, ok := c.actors[u.ID]
	delete(c.actors, u.ID)
	c.mu.Unlock()

	if ok && st.base != nil {
		for _, s := range append([]*staged{st.base}, st.queued...) {
			c.cancelStaged(u, s)
		}
	}
	for _, item := range c.queue.RemoveActor(u.ID) {
		c.env.Bus.Publish(rules.NewEvent(rules.EventActionCancelled, u.ID, item.Tool.ID()))
	}
	c.env.Cooldowns.ClearActor(u.ID)
	c.env.Occupancy.Remove(u)
	c.logger.Debug("actor removed", zap.String("actor_id", u.ID))
}
