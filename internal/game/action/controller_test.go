package action_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/action/tools"
	"github.com/hexline/hexline-server-go/internal/game/cooldown"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

type harness struct {
	t        *testing.T
	bus      *rules.EventBus
	svc      *occupancy.Service
	cds      *cooldown.Store
	pipeline *modifier.Pipeline
	roster   *unit.Roster
	loadout  *tools.Loadout
	ctrl     *action.Controller

	mu     sync.Mutex
	events []rules.Event
}

func newHarness(t *testing.T, opts ...action.Option) *harness {
	logger := zaptest.NewLogger(t)
	h := &harness{
		t:        t,
		bus:      rules.NewEventBus(),
		cds:      cooldown.NewStore(cooldown.DefaultSecondsPerTurn, logger),
		pipeline: modifier.NewPipeline(logger),
		roster:   unit.NewRoster(),
		loadout:  tools.NewLoadout(),
	}
	h.svc = occupancy.NewService(occupancy.NewStore(hex.NewGrid(6, 1), logger), logger, occupancy.WithEventBus(h.bus))
	h.bus.Subscribe(func(e rules.Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})

	env := action.Env{
		Occupancy: h.svc,
		Cooldowns: h.cds,
		Evaluator: cost.NewEvaluator(h.pipeline, logger),
		Bus:       h.bus,
		Units:     h.roster,
	}
	opts = append([]action.Option{action.WithChainSource(h.loadout)}, opts...)
	ctrl, err := action.NewController(env, logger, opts...)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) spawn(id string, faction unit.Faction, at hex.Cell, stats unit.Stats) *unit.Unit {
	u := unit.New(id, faction, nil, stats)
	h.roster.Add(u)
	_, reason := h.svc.TryPlace(u, at, 0)
	require.True(h.t, reason.OK(), reason.String())
	return u
}

func (h *harness) count(eventType rules.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (h *harness) last(eventType rules.EventType) (rules.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == eventType {
			return h.events[i], true
		}
	}
	return rules.Event{}, false
}

func (h *harness) confirm(u *unit.Unit, tool action.Tool, target action.Target) (action.Report, error) {
	require.NoError(h.t, h.ctrl.BeginAim(u, tool))
	return h.ctrl.Confirm(context.Background(), u, target)
}

func requireStage(t *testing.T, err error, stage action.Stage, reason rules.Reason) {
	t.Helper()
	ae, ok := action.AsError(err)
	require.True(t, ok, "expected *action.Error, got %v", err)
	assert.Equal(t, stage, ae.Stage)
	assert.Equal(t, reason, ae.Reason)
}

var standard = unit.Stats{Speed: 3, MaxEnergy: 20, TurnSeconds: 6}

func TestMoveConfirmResolveCommits(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	move := tools.NewMove("move", 2, 5)
	before := h.svc.StoreVersion()

	rep, err := h.confirm(a, move, action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)

	occupant, ok := h.svc.TryGetActorInfo(hex.C(1, 0))
	require.True(t, ok)
	assert.Equal(t, occupancy.ActorID("a"), occupant.ID)
	_, ok = h.svc.TryGetActorInfo(hex.C(0, 0))
	assert.False(t, ok)

	assert.Equal(t, 4, a.Budget.Remaining())
	assert.Equal(t, 15, a.Pool.Current())
	assert.Equal(t, before+1, h.svc.StoreVersion())
	assert.Equal(t, 2, rep.UsedSeconds)
	assert.NotZero(t, rep.Txn)
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(a))
	assert.Equal(t, 0, h.svc.Reservations(a))
	assert.Equal(t, 1, h.count(rules.EventActionResolved))
}

func TestBudgetGateAbortLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), unit.Stats{MaxEnergy: 20, TurnSeconds: 2})
	move := tools.NewMove("move", 3, 5)
	snapshot := h.svc.DumpAll().Checksum()

	_, err := h.confirm(a, move, action.Target{Cell: hex.C(1, 0)})
	requireStage(t, err, action.StagePreDeductCheckFail, rules.ReasonNoBudget)

	assert.Equal(t, 2, a.Budget.Remaining())
	assert.Equal(t, 20, a.Pool.Current())
	assert.Empty(t, h.cds.Abilities("a"))
	assert.Equal(t, snapshot, h.svc.DumpAll().Checksum())
	assert.Equal(t, 0, h.svc.Reservations(a))
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(a))
	assert.Equal(t, 0, h.count(rules.EventActionResolved))
	assert.Equal(t, 1, h.count(rules.EventMoveRejected))
}

func TestTargetInvalidAndCooldownRejections(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	h.spawn("b", unit.FactionFriendly, hex.C(1, 0), standard)
	move := tools.NewMove("move", 1, 0)

	_, err := h.confirm(a, move, action.Target{Cell: hex.C(3, 0)})
	requireStage(t, err, action.StageTargetInvalid, rules.ReasonNoPath)

	_, err = h.confirm(a, move, action.Target{Cell: hex.C(1, 0)})
	requireStage(t, err, action.StageTargetInvalid, rules.ReasonPathBlocked)

	h.cds.StartSeconds("a", "move", 6)
	_, err = h.confirm(a, move, action.Target{Cell: hex.C(0, 1)})
	requireStage(t, err, action.StagePreDeductCheckFail, rules.ReasonOnCooldown)
	assert.Equal(t, 6, a.Budget.Remaining())
}

func TestLateCommitFailureRevertsCostAndCooldown(t *testing.T) {
	h := newHarness(t)
	b := h.spawn("b", unit.FactionFriendly, hex.C(0, 0), standard)
	c := unit.New("c", unit.FactionHostile, nil, standard)
	h.roster.Add(c)

	// A higher-priority placement lands on the destination while b's move
	// is still animating.
	raced := false
	ack := action.AckFunc(func(ctx context.Context, actorID, cue string) error {
		if actorID == "b" && !raced {
			raced = true
			_, reason := h.svc.TryPlace(c, hex.C(1, 0), 0)
			require.True(t, reason.OK())
		}
		return nil
	})
	h.ctrl, _ = action.NewController(*h.ctrl.Env(), zaptest.NewLogger(t), action.WithAcknowledger(ack))

	move := &cooldownMove{Move: tools.NewMove("move", 2, 5), seconds: 12}
	_, err := h.confirm(b, move, action.Target{Cell: hex.C(1, 0)})
	requireStage(t, err, action.StageBlocked, rules.ReasonBlocked)

	anchor, _, placed := h.svc.PlacementOf(b)
	require.True(t, placed)
	assert.Equal(t, hex.C(0, 0), anchor)
	assert.Equal(t, 6, b.Budget.Remaining())
	assert.Equal(t, 20, b.Pool.Current())
	assert.Equal(t, 0, h.cds.SecondsLeft("b", "move"))
	assert.Equal(t, 0, h.svc.Reservations(b))

	assert.Equal(t, 0, h.count(rules.EventActionResolved))
	assert.Equal(t, 1, h.count(rules.EventActionRejected))
	ev, ok := h.last(rules.EventMoveRejected)
	require.True(t, ok)
	assert.Equal(t, rules.ReasonBlocked, ev.Reason)
	assert.Empty(t, h.svc.DumpAll().Overlaps())
}

type cooldownMove struct {
	*tools.Move
	seconds int
}

func (m *cooldownMove) CooldownSeconds() int { return m.seconds }

func TestCooldownStartsThroughPolicies(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	h.pipeline.Add(modifier.FlatCooldownStart{Match: modifier.Match{AbilityID: "move"}, Seconds: 3})

	move := &cooldownMove{Move: tools.NewMove("move", 1, 0), seconds: 6}
	_, err := h.confirm(a, move, action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)
	assert.Equal(t, 9, h.cds.SecondsLeft("a", "move"))
	assert.Equal(t, 2, h.cds.For("a").TurnsLeft("move"))
}

func TestConfirmWhileExecutingIsBusy(t *testing.T) {
	release := make(chan struct{})
	ack := action.AckFunc(func(ctx context.Context, actorID, cue string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	h := newHarness(t, action.WithAcknowledger(ack))
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	move := tools.NewMove("move", 1, 1)
	require.NoError(t, h.ctrl.BeginAim(a, move))

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Confirm(context.Background(), a, action.Target{Cell: hex.C(1, 0)})
		done <- err
	}()
	require.Eventually(t, func() bool {
		return h.ctrl.Phase(a) == action.PhaseExecuteBegin
	}, time.Second, time.Millisecond)

	requireStage(t, h.ctrl.BeginAim(a, move), action.StageAimRejected, rules.ReasonBusy)
	_, err := h.ctrl.Confirm(context.Background(), a, action.Target{Cell: hex.C(0, 1)})
	requireStage(t, err, action.StagePreDeductCheckFail, rules.ReasonBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(a))
}

func TestCancelledExecuteReleasesReservation(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	move := tools.NewMove("move", 1, 1)
	require.NoError(t, h.ctrl.BeginAim(a, move))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.ctrl.Confirm(ctx, a, action.Target{Cell: hex.C(1, 0)})
	requireStage(t, err, action.StageConfirmAbort, rules.ReasonCancelled)

	assert.Equal(t, 0, h.svc.Reservations(a))
	assert.Equal(t, 6, a.Budget.Remaining())
	assert.Equal(t, 1, h.count(rules.EventActionCancelled))
}

func TestInterruptedMoveRefundsUntakenSteps(t *testing.T) {
	steps := 0
	ack := action.AckFunc(func(ctx context.Context, actorID, cue string) error {
		steps++
		if steps > 1 {
			return action.ErrInterrupted
		}
		return nil
	})
	h := newHarness(t, action.WithAcknowledger(ack))
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	move := tools.NewMove("move", 2, 5)

	rep, err := h.confirm(a, move, action.Target{Path: []hex.Cell{hex.C(1, 0), hex.C(2, 0), hex.C(3, 0)}})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.UsedSeconds)
	assert.Equal(t, 4, rep.RefundedSeconds)
	assert.Equal(t, 4, a.Budget.Remaining())
	assert.Equal(t, 5, a.Pool.Current())

	anchor, _, _ := h.svc.PlacementOf(a)
	assert.Equal(t, hex.C(1, 0), anchor)
}

// countingTool records whether its price was ever asked for.
type countingTool struct {
	*tools.Ability
	planned int
}

func (c *countingTool) PlannedCost(pc action.PlanContext) cost.Plan {
	c.planned++
	return c.Ability.PlannedCost(pc)
}

func TestChainPromptFiltersKindBeforeCost(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	strike := &tools.Ability{AbilityID: "strike", ActionKind: rules.KindStandard, Seconds: 2}
	followThrough := &tools.Ability{AbilityID: "follow-through", ActionKind: rules.KindDerived, Seconds: 1}
	parry := &countingTool{Ability: &tools.Ability{AbilityID: "parry", ActionKind: rules.KindReaction, Seconds: 1}}
	h.loadout.Assign("a", strike, followThrough, parry)

	rep, err := h.confirm(a, strike, action.Target{})
	require.NoError(t, err)
	assert.Equal(t, action.PhaseChainPromptOpen, rep.Phase)
	assert.Equal(t, []rules.ActionKind{rules.KindDerived}, rep.ChainPrompt)
	assert.Equal(t, []string{"follow-through"}, rep.ChainCandidates)

	_, err = h.ctrl.SelectChain(context.Background(), a, parry, action.Target{})
	requireStage(t, err, action.StageChainRejected, rules.ReasonKindNotAllowed)
	assert.Zero(t, parry.planned, "kind filter runs before any cost check")
	assert.Equal(t, action.PhaseChainPromptOpen, h.ctrl.Phase(a))

	rep, err = h.ctrl.SelectChain(context.Background(), a, followThrough, action.Target{})
	require.NoError(t, err)
	assert.Equal(t, "strike", rep.AbilityID)
	require.Len(t, rep.Chain, 1)
	assert.Equal(t, "follow-through", rep.Chain[0].AbilityID)
	assert.Equal(t, 3, a.Budget.Total()-a.Budget.Remaining())
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(a))
}

func TestChainPrecheckIsCumulative(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	strike := &tools.Ability{AbilityID: "strike", ActionKind: rules.KindStandard, Seconds: 4}
	lunge := &tools.Ability{AbilityID: "lunge", ActionKind: rules.KindDerived, Seconds: 3}
	h.loadout.Assign("a", strike, lunge)

	_, err := h.confirm(a, strike, action.Target{})
	require.NoError(t, err)
	_, err = h.ctrl.SelectChain(context.Background(), a, lunge, action.Target{})
	requireStage(t, err, action.StagePreDeductCheckFail, rules.ReasonNoBudget)

	rep, err := h.ctrl.SkipChain(context.Background(), a)
	require.NoError(t, err)
	assert.Empty(t, rep.Chain)
	assert.Equal(t, 2, a.Budget.Remaining())
}

func TestChainTagsMustBeCompatible(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	strike := &tools.Ability{AbilityID: "strike", ActionKind: rules.KindStandard, Seconds: 1, Tags: []string{"blade"}}
	volley := &tools.Ability{AbilityID: "volley", ActionKind: rules.KindDerived, Seconds: 1, After: []string{"bow"}}
	riposte := &tools.Ability{AbilityID: "riposte", ActionKind: rules.KindDerived, Seconds: 1, After: []string{"blade"}}
	h.loadout.Assign("a", strike, volley, riposte)

	rep, err := h.confirm(a, strike, action.Target{})
	require.NoError(t, err)
	assert.Equal(t, []string{"riposte"}, rep.ChainCandidates)

	_, err = h.ctrl.SelectChain(context.Background(), a, volley, action.Target{})
	requireStage(t, err, action.StageChainRejected, rules.ReasonChainIncompatible)
	assert.Equal(t, 1, h.ctrl.CancelChain(a))
}

func TestVoucherChargeConsumedExactlyOnce(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), unit.Stats{MaxEnergy: 20, TurnSeconds: 12})
	dash := &tools.Ability{AbilityID: "dash", ActionKind: rules.KindStandard, Seconds: 3, Energy: 2}
	flourish := &tools.Ability{AbilityID: "flourish", ActionKind: rules.KindDerived, Seconds: 1}
	h.loadout.Assign("a", dash, flourish)

	voucher := modifier.NewVoucher(modifier.Match{AbilityID: "dash"}, 1)
	voucher.Attach(h.bus)
	defer voucher.Detach()
	h.pipeline.Add(voucher)

	// Cancelled before resolution: no charge.
	_, err := h.confirm(a, dash, action.Target{})
	require.NoError(t, err)
	assert.Equal(t, 1, voucher.Pending())
	assert.Equal(t, 1, h.ctrl.CancelChain(a))
	assert.Equal(t, 0, voucher.Pending())
	assert.Equal(t, 1, voucher.Charges())
	assert.Equal(t, 12, a.Budget.Remaining())

	// Two resolved casts: exactly one charge.
	for i := 0; i < 2; i++ {
		_, err := h.confirm(a, dash, action.Target{})
		require.NoError(t, err)
		_, err = h.ctrl.SkipChain(context.Background(), a)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, voucher.Charges())
	assert.Equal(t, 0, voucher.Pending())
	assert.Equal(t, 9, a.Budget.Remaining(), "only the second cast was paid")
	assert.Equal(t, 18, a.Pool.Current())
	assert.Equal(t, 2, h.count(rules.EventActionResolved))
}

func TestCostModifiersRunOncePerConfirmation(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	calls := 0
	h.pipeline.Add(modifier.CostFunc(func(rc modifier.Context, c *modifier.Cost) {
		calls++
	}))

	_, err := h.confirm(a, tools.NewMove("move", 2, 5), action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRejectedConfirmationDropsPendingVoucherUse(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), unit.Stats{MaxEnergy: 2, TurnSeconds: 6})
	dash := &tools.Ability{AbilityID: "dash", ActionKind: rules.KindStandard, Seconds: 1}

	voucher := modifier.NewVoucher(modifier.Match{AbilityID: "dash"}, 1)
	voucher.Attach(h.bus)
	defer voucher.Detach()
	h.pipeline.Add(modifier.FlatCost{Energy: 5})
	h.pipeline.Add(voucher)
	h.pipeline.Add(modifier.FlatCost{Energy: 5})

	_, err := h.confirm(a, dash, action.Target{})
	requireStage(t, err, action.StagePreDeductCheckFail, rules.ReasonNotEnoughResource)
	assert.Equal(t, 0, voucher.Pending())
	assert.Equal(t, 1, voucher.Charges())
	assert.Equal(t, 1, h.count(rules.EventActionCancelled))
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(a))
}

func TestAttackEscalationCountsResolvedUsesOnly(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), unit.Stats{MaxEnergy: 20, TurnSeconds: 12})
	h.spawn("e", unit.FactionHostile, hex.C(1, 0), standard)
	slash := tools.NewAttack("slash", 2, 0, 4)
	slash.EscalationPercent = 50
	target := action.Target{Cell: hex.C(1, 0)}

	rep, err := h.confirm(a, slash, target)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.UsedSeconds)
	assert.Equal(t, 4, rep.Amount)
	landed, ok := h.last(rules.EventAttackLanded)
	require.True(t, ok)
	assert.Equal(t, "e", landed.TargetID)

	require.NoError(t, h.ctrl.BeginAim(a, slash))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.ctrl.Confirm(ctx, a, target)
	requireStage(t, err, action.StageConfirmAbort, rules.ReasonCancelled)
	assert.Equal(t, 1, slash.Uses("a"))

	rep, err = h.confirm(a, slash, target)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.UsedSeconds)
	assert.Equal(t, 7, a.Budget.Remaining())

	h.ctrl.ResetTurnUsage(a)
	assert.Equal(t, 0, slash.Uses("a"))
}

func TestComboPolicyScalesEscalation(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), unit.Stats{MaxEnergy: 20, TurnSeconds: 12})
	h.spawn("e", unit.FactionHostile, hex.C(1, 0), standard)
	slash := tools.NewAttack("slash", 4, 0, 1)
	slash.EscalationPercent = 50
	h.pipeline.Add(modifier.ComboFunc(func(rc modifier.Context, f *float64) {
		if rc.ComboIndex > 0 {
			*f = 1 + (*f-1)/2
		}
	}))

	_, err := h.confirm(a, slash, action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)
	rep, err := h.confirm(a, slash, action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)
	assert.Equal(t, 5, rep.UsedSeconds, "4 * (1 + 0.5/2)")
}

func TestAttackRejectsFriendlyAndOutOfReachTargets(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	h.spawn("f", unit.FactionFriendly, hex.C(1, 0), standard)
	h.spawn("e", unit.FactionHostile, hex.C(3, 0), standard)
	slash := tools.NewAttack("slash", 2, 0, 4)

	_, err := h.confirm(a, slash, action.Target{Cell: hex.C(1, 0)})
	requireStage(t, err, action.StageTargetInvalid, rules.ReasonInvalidTarget)
	_, err = h.confirm(a, slash, action.Target{Cell: hex.C(3, 0)})
	requireStage(t, err, action.StageTargetInvalid, rules.ReasonInvalidTarget)
	assert.Equal(t, 2, h.count(rules.EventAttackRejected))
}

func TestDerivedFollowUpRunsAfterResolve(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	h.spawn("e", unit.FactionHostile, hex.C(1, 0), standard)
	slash := tools.NewAttack("slash", 2, 0, 4)
	slash.Derived = &tools.Ability{AbilityID: "bleed", ActionKind: rules.KindDerived, Seconds: 1, Reach: 1, Hostile: true}

	rep, err := h.confirm(a, slash, action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)
	require.Len(t, rep.Chain, 1)
	assert.Equal(t, "bleed", rep.Chain[0].AbilityID)
	assert.Equal(t, 3, a.Budget.Total()-a.Budget.Remaining())
	assert.Equal(t, 2, h.count(rules.EventActionResolved))
}

func TestFullRoundActionQueuesAndTriggers(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	ritual := &tools.Ability{AbilityID: "ritual", ActionKind: rules.KindFullRound, Seconds: 6, Energy: 10, Duration: 2}

	rep, err := h.confirm(a, ritual, action.Target{})
	require.NoError(t, err)
	assert.True(t, rep.Queued)
	assert.NotEmpty(t, rep.QueueID)
	assert.Equal(t, 0, a.Budget.Remaining(), "price is captured when queued")
	assert.Equal(t, 10, a.Pool.Current())
	assert.True(t, h.ctrl.HasPendingFullRound(a))
	assert.Equal(t, 1, h.count(rules.EventFullRoundQueued))

	a.Budget.Reset()
	requireStage(t, h.ctrl.BeginAim(a, ritual), action.StageAimRejected, rules.ReasonFullRoundPending)

	reports, err := h.ctrl.AdvanceFullRound(context.Background(), a)
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, 0, h.count(rules.EventActionResolved))

	reports, err = h.ctrl.AdvanceFullRound(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "ritual", reports[0].AbilityID)
	assert.False(t, h.ctrl.HasPendingFullRound(a))
	assert.Equal(t, 1, h.count(rules.EventFullRoundTriggered))
	assert.Equal(t, 1, h.count(rules.EventActionResolved))
}

type gateFunc func(*unit.Unit, rules.ActionKind) rules.Reason

func (f gateFunc) CanActivate(u *unit.Unit, k rules.ActionKind) rules.Reason { return f(u, k) }

func TestGateRejectsAim(t *testing.T) {
	h := newHarness(t, action.WithGate(gateFunc(func(u *unit.Unit, _ rules.ActionKind) rules.Reason {
		if !u.IsFriendly() {
			return rules.ReasonWrongPhase
		}
		return rules.ReasonOK
	})))
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	e := h.spawn("e", unit.FactionHostile, hex.C(2, 0), standard)
	move := tools.NewMove("move", 1, 0)

	requireStage(t, h.ctrl.BeginAim(e, move), action.StageAimRejected, rules.ReasonWrongPhase)
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(e))
	require.NoError(t, h.ctrl.BeginAim(a, move))
	assert.True(t, h.ctrl.CancelAim(a))
	assert.False(t, h.ctrl.CancelAim(a))

	_, err := h.ctrl.Confirm(context.Background(), a, action.Target{Cell: hex.C(1, 0)})
	requireStage(t, err, action.StageAimRejected, rules.ReasonNotReady)
}

func TestRemoveCancelsOpenChainAndDespawns(t *testing.T) {
	h := newHarness(t)
	a := h.spawn("a", unit.FactionFriendly, hex.C(0, 0), standard)
	move := tools.NewMove("move", 1, 0)
	hop := &tools.Ability{AbilityID: "hop", ActionKind: rules.KindDerived}
	h.loadout.Assign("a", hop)

	_, err := h.confirm(a, move, action.Target{Cell: hex.C(1, 0)})
	require.NoError(t, err)
	require.Equal(t, action.PhaseChainPromptOpen, h.ctrl.Phase(a))
	require.Equal(t, 1, h.svc.Reservations(a))

	h.ctrl.Remove(a)
	assert.Equal(t, 0, h.svc.Reservations(a))
	_, _, placed := h.svc.PlacementOf(a)
	assert.False(t, placed)
	assert.Equal(t, 1, h.count(rules.EventActionCancelled))
	assert.Equal(t, action.PhaseIdle, h.ctrl.Phase(a))
}

func TestNewControllerRequiresServices(t *testing.T) {
	_, err := action.NewController(action.Env{}, nil)
	assert.True(t, errors.Is(err, action.ErrMissingOccupancy))

	svc := occupancy.NewService(occupancy.NewStore(hex.NewGrid(1, 1), nil), nil)
	_, err = action.NewController(action.Env{Occupancy: svc}, nil)
	assert.True(t, errors.Is(err, action.ErrMissingCooldowns))
}
