package action

import (
	"context"
	"errors"

	"github.com/hexline/hexline-server-go/internal/game/cooldown"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Target is what an action is aimed at. Tools read the fields they need.
type Target struct {
	Cell   hex.Cell   `json:"cell"`
	Facing hex.Facing `json:"facing"`
	Path   []hex.Cell `json:"path,omitempty"`
	UnitID string     `json:"unit_id,omitempty"`
}

// UnitLookup resolves unit ids.
type UnitLookup interface {
	Unit(id string) (*unit.Unit, bool)
}

// Env holds the services tools and the controller work against.
type Env struct {
	Occupancy *occupancy.Service
	Cooldowns *cooldown.Store
	Evaluator *cost.Evaluator
	Bus       *rules.EventBus
	Units     UnitLookup
}

// PlanContext is handed to Tool.PlannedCost.
type PlanContext struct {
	Env    *Env
	Unit   *unit.Unit
	Target Target
	Rule   modifier.Context
}

// Tool is an action a unit can take.
type Tool interface {
	ID() string
	Kind() rules.ActionKind
	ChainTags() []string
	// CanChainAfter reports whether this tool may follow the previous
	// action in a chain.
	CanChainAfter(previousID string, previousTags []string) bool
	ValidateTarget(env *Env, u *unit.Unit, target Target) rules.Reason
	PlannedCost(pc PlanContext) cost.Plan
	// Execute runs the action body. It may suspend on the acknowledger and
	// must return promptly once ctx is done.
	Execute(ctx context.Context, ec *ExecContext) (Outcome, error)
}

// AimHook is implemented by tools that react to entering or leaving aim.
type AimHook interface {
	OnEnterAim(u *unit.Unit)
	OnExitAim(u *unit.Unit)
}

// Preparer is implemented by tools that reserve board space once the
// precheck passed and before execution.
type Preparer interface {
	Prepare(ec *ExecContext) rules.Reason
}

// CooldownTool is implemented by tools that start a cooldown on resolve.
type CooldownTool interface {
	CooldownSeconds() int
}

// UsageTracker is implemented by tools whose price depends on how often
// they resolved this turn.
type UsageTracker interface {
	RecordUse(actorID string)
	ResetUsage(actorID string)
}

// FullRoundTool is implemented by FullRound tools. OnImmediate fires when
// the action is queued, OnResolve when its turns have elapsed.
type FullRoundTool interface {
	Tool
	Turns() int
	OnImmediate(u *unit.Unit, target Target)
	OnResolve(ctx context.Context, env *Env, u *unit.Unit, target Target) error
}

// Acknowledger is the awaitable external collaborators complete, e.g. when
// an animation finished playing.
type Acknowledger interface {
	Await(ctx context.Context, actorID, cue string) error
}

// AckFunc adapts a function to Acknowledger.
type AckFunc func(ctx context.Context, actorID, cue string) error

// Await calls f.
func (f AckFunc) Await(ctx context.Context, actorID, cue string) error { return f(ctx, actorID, cue) }

// Immediate acknowledges every cue at once unless ctx is done.
var Immediate Acknowledger = AckFunc(func(ctx context.Context, _, _ string) error {
	return ctx.Err()
})

// ErrInterrupted is returned by an acknowledger to stop a multi-step action
// early. Tools that support partial completion treat it as a stop signal.
var ErrInterrupted = errors.New("action interrupted")

// FollowUp is a derived action an outcome asks to run right after resolve.
type FollowUp struct {
	Tool   Tool
	Target Target
}

// Outcome is the result of Tool.Execute. A non-OK Reason means the action
// did not happen.
type Outcome struct {
	Reason        rules.Reason
	Message       string
	RefundSeconds int
	Amount        int
	FollowUp      *FollowUp
}

type pendingCommit struct {
	token  occupancy.Token
	anchor hex.Cell
	facing hex.Facing
}

// ExecContext is the per-attempt handle passed to Prepare and Execute.
type ExecContext struct {
	Env        *Env
	Unit       *unit.Unit
	Target     Target
	Decision   cost.Decision
	ChainDepth int

	ack    Acknowledger
	tokens []occupancy.Token
	commit *pendingCommit
}

// ReservePath reserves cells for this attempt. The token is released if the
// action does not resolve.
func (ec *ExecContext) ReservePath(cells []hex.Cell, mode occupancy.ReserveMode) (occupancy.Token, occupancy.ReserveResult) {
	tok, res := ec.Env.Occupancy.ReservePath(ec.Unit, cells, mode)
	if res == occupancy.ReserveOK {
		ec.tokens = append(ec.tokens, tok)
	}
	return tok, res
}

// Tokens returns the reservation tokens taken by this attempt.
func (ec *ExecContext) Tokens() []occupancy.Token {
	out := make([]occupancy.Token, len(ec.tokens))
	copy(out, ec.tokens)
	return out
}

// CommitOnResolve asks the controller to commit tok to the given placement
// during resolve.
func (ec *ExecContext) CommitOnResolve(tok occupancy.Token, anchor hex.Cell, facing hex.Facing) {
	ec.commit = &pendingCommit{token: tok, anchor: anchor, facing: facing}
}

// Await suspends until the external collaborator acknowledges cue.
func (ec *ExecContext) Await(ctx context.Context, cue string) error {
	if ec.ack == nil {
		return ctx.Err()
	}
	return ec.ack.Await(ctx, ec.Unit.ID, cue)
}

func (ec *ExecContext) release() {
	for _, tok := range ec.tokens {
		ec.Env.Occupancy.Cancel(ec.Unit, tok)
	}
	ec.tokens = nil
	ec.commit = nil
}
