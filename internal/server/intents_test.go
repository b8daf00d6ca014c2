package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hexline/hexline-server-go/internal/config"
	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/action/tools"
	"github.com/hexline/hexline-server-go/internal/game/cooldown"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/turn"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

type arena struct {
	svc  *occupancy.Service
	seq  *turn.Sequencer
	conn *websocket.Conn
}

func startArena(t *testing.T) *arena {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := rules.NewEventBus()
	svc := occupancy.NewService(occupancy.NewStore(hex.NewGrid(4, 1), logger), logger, occupancy.WithEventBus(bus))
	roster := unit.NewRoster()
	loadout := tools.NewLoadout()

	ctrl, err := action.NewController(action.Env{
		Occupancy: svc,
		Cooldowns: cooldown.NewStore(cooldown.DefaultSecondsPerTurn, logger),
		Evaluator: cost.NewEvaluator(modifier.NewPipeline(logger), logger),
		Bus:       bus,
		Units:     roster,
	}, logger, action.WithChainSource(loadout))
	require.NoError(t, err)

	stats := unit.Stats{Speed: 3, MaxEnergy: 20, TurnSeconds: 6}
	for _, spawn := range []struct {
		id      string
		faction unit.Faction
		at      hex.Cell
	}{
		{"a", unit.FactionFriendly, hex.C(0, 0)},
		{"h", unit.FactionHostile, hex.C(3, 0)},
	} {
		u := unit.New(spawn.id, spawn.faction, nil, stats)
		roster.Add(u)
		_, reason := svc.TryPlace(u, spawn.at, 0)
		require.True(t, reason.OK())
		loadout.Assign(spawn.id, tools.NewMove("move", 2, 5))
	}

	seq := turn.NewSequencer(roster, ctrl, logger)
	ctrl.SetGate(seq)
	require.NoError(t, seq.Start(context.Background()))

	hub := NewHub(logger, nil)
	hub.Attach(bus)
	t.Cleanup(hub.Detach)
	hub.AcceptIntents(&Intents{Controller: ctrl, Units: roster, Tools: loadout, Turns: seq, Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	ts := httptest.NewServer(New(config.ServerConfig{}, hub, nil, logger).Handler())
	t.Cleanup(ts.Close)
	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return &arena{svc: svc, seq: seq, conn: conn}
}

// send writes an intent and returns its reply, skipping broadcast events.
func (a *arena) send(t *testing.T, msg WSMessage) WSMessage {
	t.Helper()
	require.NoError(t, a.conn.WriteJSON(msg))
	for {
		reply := readMessage(t, a.conn)
		if reply.Type != "event" && reply.RequestID == msg.RequestID {
			return reply
		}
	}
}

func TestIntentConfirmMovesActiveUnit(t *testing.T) {
	a := startArena(t)

	reply := a.send(t, WSMessage{
		Type:      IntentConfirm,
		RequestID: "1",
		ActorID:   "a",
		ToolID:    "move",
		Target:    &action.Target{Cell: hex.C(1, 0)},
	})
	require.Equal(t, "report", reply.Type, reply.Error)
	require.NotNil(t, reply.Report)
	assert.Equal(t, "move", reply.Report.AbilityID)
	assert.Equal(t, 2, reply.Report.UsedSeconds)
	assert.NotZero(t, reply.Report.Txn)

	occupant, ok := a.svc.TryGetActorInfo(hex.C(1, 0))
	require.True(t, ok)
	assert.Equal(t, occupancy.ActorID("a"), occupant.ID)
}

func TestIntentAimThenConfirm(t *testing.T) {
	a := startArena(t)

	assert.Equal(t, "aiming", a.send(t, WSMessage{Type: IntentAim, RequestID: "1", ActorID: "a", ToolID: "move"}).Type)
	assert.Equal(t, "aim_cancelled", a.send(t, WSMessage{Type: IntentCancelAim, RequestID: "2", ActorID: "a"}).Type)
	assert.Equal(t, "aiming", a.send(t, WSMessage{Type: IntentAim, RequestID: "3", ActorID: "a", ToolID: "move"}).Type)

	reply := a.send(t, WSMessage{Type: IntentConfirm, RequestID: "4", ActorID: "a", Target: &action.Target{Cell: hex.C(0, 1)}})
	require.Equal(t, "report", reply.Type, reply.Error)
	assert.Equal(t, 2, reply.Report.UsedSeconds)

	reply = a.send(t, WSMessage{Type: IntentSkipChain, RequestID: "5", ActorID: "a"})
	assert.Equal(t, "rejected", reply.Type)
	assert.Equal(t, action.StageChainRejected, reply.Stage)
	assert.Equal(t, rules.ReasonWrongPhase, reply.Reason)

	reply = a.send(t, WSMessage{Type: IntentCancelChain, RequestID: "6", ActorID: "a"})
	assert.Equal(t, "chain_cancelled", reply.Type)
	assert.Zero(t, reply.Count)
}

func TestIntentRejectionsCarryStageAndReason(t *testing.T) {
	a := startArena(t)

	reply := a.send(t, WSMessage{Type: IntentConfirm, RequestID: "1", ActorID: "h", ToolID: "move", Target: &action.Target{Cell: hex.C(2, 0)}})
	assert.Equal(t, "rejected", reply.Type)
	assert.Equal(t, action.StageAimRejected, reply.Stage)
	assert.Equal(t, rules.ReasonWrongPhase, reply.Reason)

	reply = a.send(t, WSMessage{Type: IntentAim, RequestID: "2", ActorID: "a", ToolID: "fly"})
	assert.Equal(t, "rejected", reply.Type)
	assert.Equal(t, "unknown tool fly", reply.Error)

	reply = a.send(t, WSMessage{Type: IntentConfirm, RequestID: "3", ActorID: "zed", ToolID: "move"})
	assert.Equal(t, rules.ReasonActorMissing, reply.Reason)

	reply = a.send(t, WSMessage{Type: IntentConfirm, RequestID: "4", ActorID: "a", ToolID: "move", Target: &action.Target{Cell: hex.C(3, 0)}})
	assert.Equal(t, "rejected", reply.Type)
	assert.NotEmpty(t, reply.Stage)
	assert.False(t, reply.Reason.OK())
	assert.Nil(t, reply.Report)
}

func TestIntentEndTurnOnlyForActiveUnit(t *testing.T) {
	a := startArena(t)
	require.Equal(t, "a", a.seq.ActiveActor())

	reply := a.send(t, WSMessage{Type: IntentEndTurn, RequestID: "1", ActorID: "h"})
	assert.Equal(t, "rejected", reply.Type)
	assert.Equal(t, rules.ReasonWrongPhase, reply.Reason)
	assert.Equal(t, "a", a.seq.ActiveActor())

	reply = a.send(t, WSMessage{Type: IntentEndTurn, RequestID: "2", ActorID: "a"})
	assert.Equal(t, "turn_ended", reply.Type)
	assert.Equal(t, "h", a.seq.ActiveActor())

	reply = a.send(t, WSMessage{Type: IntentConfirm, RequestID: "3", ActorID: "h", ToolID: "move", Target: &action.Target{Cell: hex.C(2, 0)}})
	assert.Equal(t, "report", reply.Type, reply.Error)
}

func TestHubWithoutIntentsRefusesThem(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: IntentConfirm, RequestID: "1", ActorID: "a"}))
	reply := readMessage(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "1", reply.RequestID)
	assert.Equal(t, "intents are not accepted", reply.Error)
}
