package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Intent message types accepted from websocket clients.
const (
	IntentAim         = "aim"
	IntentCancelAim   = "cancel_aim"
	IntentConfirm     = "confirm"
	IntentSelectChain = "select_chain"
	IntentSkipChain   = "skip_chain"
	IntentCancelChain = "cancel_chain"
	IntentEndTurn     = "end_turn"
)

// ToolLookup resolves a unit's tool by id.
type ToolLookup interface {
	Tool(unitID, toolID string) (action.Tool, bool)
}

// TurnControl ends the active unit's turn.
type TurnControl interface {
	ActiveActor() string
	EndTurn(ctx context.Context) error
}

// Intents routes player intents to the action controller and the turn
// sequencer. Every intent names its actor; the reply carries the Report or
// the rejection stage and reason.
type Intents struct {
	Controller *action.Controller
	Units      action.UnitLookup
	Tools      ToolLookup
	Turns      TurnControl
	Logger     *zap.Logger
}

func isIntent(msgType string) bool {
	switch msgType {
	case IntentAim, IntentCancelAim, IntentConfirm, IntentSelectChain,
		IntentSkipChain, IntentCancelChain, IntentEndTurn:
		return true
	}
	return false
}

// Dispatch runs one intent and builds the reply frame.
func (in *Intents) Dispatch(ctx context.Context, msg WSMessage) WSMessage {
	reply := WSMessage{Type: "rejected", RequestID: msg.RequestID, ActorID: msg.ActorID, ToolID: msg.ToolID}
	if in.Logger != nil {
		in.Logger.Debug("intent received",
			zap.String("type", msg.Type),
			zap.String("actor_id", msg.ActorID),
			zap.String("tool_id", msg.ToolID))
	}

	if msg.Type == IntentEndTurn {
		return in.endTurn(ctx, msg, reply)
	}

	u, ok := in.Units.Unit(msg.ActorID)
	if !ok {
		return rejection(reply, action.StageAimRejected, rules.ReasonActorMissing)
	}
	target := action.Target{}
	if msg.Target != nil {
		target = *msg.Target
	}

	switch msg.Type {
	case IntentAim:
		tool, ok := in.tool(u, msg.ToolID)
		if !ok {
			return unknownTool(reply, action.StageAimRejected, msg.ToolID)
		}
		if err := in.Controller.BeginAim(u, tool); err != nil {
			return failure(reply, err)
		}
		reply.Type = "aiming"
		return reply

	case IntentCancelAim:
		reply.Type = "aim_cancelled"
		if !in.Controller.CancelAim(u) {
			return rejection(reply, action.StageAimRejected, rules.ReasonWrongPhase)
		}
		return reply

	case IntentConfirm:
		if msg.ToolID != "" {
			tool, ok := in.tool(u, msg.ToolID)
			if !ok {
				return unknownTool(reply, action.StageAimRejected, msg.ToolID)
			}
			if err := in.Controller.BeginAim(u, tool); err != nil {
				return failure(reply, err)
			}
		}
		rep, err := in.Controller.Confirm(ctx, u, target)
		return result(reply, rep, err)

	case IntentSelectChain:
		tool, ok := in.tool(u, msg.ToolID)
		if !ok {
			return unknownTool(reply, action.StageChainRejected, msg.ToolID)
		}
		rep, err := in.Controller.SelectChain(ctx, u, tool, target)
		return result(reply, rep, err)

	case IntentSkipChain:
		rep, err := in.Controller.SkipChain(ctx, u)
		return result(reply, rep, err)

	case IntentCancelChain:
		reply.Type = "chain_cancelled"
		reply.Count = in.Controller.CancelChain(u)
		return reply
	}
	reply.Type = "error"
	reply.Error = "unknown intent " + msg.Type
	return reply
}

func (in *Intents) tool(u *unit.Unit, toolID string) (action.Tool, bool) {
	if in.Tools == nil || toolID == "" {
		return nil, false
	}
	return in.Tools.Tool(u.ID, toolID)
}

func (in *Intents) endTurn(ctx context.Context, msg WSMessage, reply WSMessage) WSMessage {
	if in.Turns == nil {
		return rejection(reply, action.StageAimRejected, rules.ReasonNotReady)
	}
	if active := in.Turns.ActiveActor(); active == "" || active != msg.ActorID {
		return rejection(reply, action.StageAimRejected, rules.ReasonWrongPhase)
	}
	if err := in.Turns.EndTurn(ctx); err != nil {
		reply.Type = "error"
		reply.Error = err.Error()
		return reply
	}
	reply.Type = "turn_ended"
	return reply
}

func result(reply WSMessage, rep action.Report, err error) WSMessage {
	if err != nil {
		return failure(reply, err)
	}
	reply.Type = "report"
	reply.Report = &rep
	return reply
}

func rejection(reply WSMessage, stage action.Stage, reason rules.Reason) WSMessage {
	reply.Type = "rejected"
	reply.Stage = stage
	reply.Reason = reason
	reply.Error = reason.Message()
	return reply
}

func unknownTool(reply WSMessage, stage action.Stage, toolID string) WSMessage {
	reply = rejection(reply, stage, rules.ReasonNotReady)
	reply.Error = "unknown tool " + toolID
	return reply
}

// failure maps a controller error onto the reply. Expected rejections keep
// their stage and reason; anything else is reported as an error frame.
func failure(reply WSMessage, err error) WSMessage {
	if ae, ok := action.AsError(err); ok {
		reply = rejection(reply, ae.Stage, ae.Reason)
		if ae.Message != "" {
			reply.Error = ae.Message
		}
		return reply
	}
	reply.Type = "error"
	if errors.Is(err, context.Canceled) {
		reply.Error = "request cancelled"
		return reply
	}
	reply.Error = err.Error()
	return reply
}
