package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/hexline/hexline-server-go/internal/config"
	"github.com/hexline/hexline-server-go/internal/game/cooldown"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
	"github.com/hexline/hexline-server-go/internal/game/watchers"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := New(config.ServerConfig{}, hub, nil, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubStreamsBusEvents(t *testing.T) {
	hub, ts := startHub(t)
	bus := rules.NewEventBus()
	hub.Attach(bus)
	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(rules.NewRejection(rules.EventMoveRejected, "a", "move", rules.ReasonPathBlocked))

	msg := readMessage(t, conn)
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, rules.EventMoveRejected, msg.Event.Type)
	assert.Equal(t, rules.ReasonPathBlocked, msg.Event.Reason)

	hub.Detach()
	assert.Equal(t, 0, bus.ListenerCount())
}

func TestHubWatchFiltersByActor(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "?actor=a")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(rules.NewEvent(rules.EventActionResolved, "b", "slash"))
	hub.Publish(rules.NewEvent(rules.EventActionResolved, "a", "slash"))
	msg := readMessage(t, conn)
	assert.Equal(t, "a", msg.Event.ActorID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "watch", ActorID: "b"}))
	assert.Equal(t, "watching", readMessage(t, conn).Type)
	hub.Publish(rules.NewEvent(rules.EventActionResolved, "b", "slash"))
	assert.Equal(t, "b", readMessage(t, conn).Event.ActorID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "dance"}))
	assert.Equal(t, "error", readMessage(t, conn).Type)
}

func TestHubDropsClientOnDisconnect(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type fakeTurns struct{}

func (fakeTurns) ActiveActor() string   { return "a" }
func (fakeTurns) IsFriendlyPhase() bool { return true }
func (fakeTurns) TurnNumber() int       { return 3 }
func (fakeTurns) Round() int            { return 2 }

func TestDebugEndpoints(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := occupancy.NewService(occupancy.NewStore(hex.NewGrid(3, 1), logger), logger)
	roster := unit.NewRoster()
	a := unit.New("a", unit.FactionFriendly, nil, unit.Stats{})
	roster.Add(a)
	_, reason := svc.TryPlace(a, hex.C(1, 0), 0)
	require.True(t, reason.OK())
	cds := cooldown.NewStore(6, logger)
	cds.StartSeconds("a", "slash", 12)

	stats := watchers.Default()
	stats.Watch(rules.NewEvent(rules.EventActionResolved, "a", "slash"))

	mux := http.NewServeMux()
	(&Debug{Board: svc, Cooldowns: cds, Turns: fakeTurns{}, Actors: roster, Stats: stats, Logger: logger}).Register(mux)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		return rec
	}

	var board struct {
		BoardID  string                    `json:"board_id"`
		Actors   []occupancy.PlacementView `json:"actors"`
		Checksum string                    `json:"checksum"`
	}
	require.NoError(t, json.Unmarshal(get("/debug/board").Body.Bytes(), &board))
	assert.Equal(t, svc.BoardID(), board.BoardID)
	require.Len(t, board.Actors, 1)
	assert.Equal(t, hex.C(1, 0), board.Actors[0].Anchor)
	assert.Equal(t, svc.DumpAll().Checksum(), board.Checksum)

	var cooldowns map[string]map[string]int
	require.NoError(t, json.Unmarshal(get("/debug/cooldowns").Body.Bytes(), &cooldowns))
	assert.Equal(t, 12, cooldowns["a"]["slash"])
	require.NoError(t, json.Unmarshal(get("/debug/cooldowns?actor=x").Body.Bytes(), &cooldowns))
	assert.Empty(t, cooldowns["x"])

	var turn turnResponse
	require.NoError(t, json.Unmarshal(get("/debug/turn").Body.Bytes(), &turn))
	assert.Equal(t, turnResponse{ActiveActor: "a", Friendly: true, Turn: 3, Round: 2}, turn)

	var counters map[string]map[string]int
	require.NoError(t, json.Unmarshal(get("/debug/stats").Body.Bytes(), &counters))
	assert.Equal(t, 1, counters["actions_resolved"]["a"])

	var txns []occupancy.TxnRecord
	require.NoError(t, json.Unmarshal(get("/debug/transactions").Body.Bytes(), &txns))
	assert.Len(t, txns, 1)
}

func TestDebugOptionalSources(t *testing.T) {
	mux := http.NewServeMux()
	(&Debug{}).Register(mux)
	for _, path := range []string{"/debug/turn", "/debug/stats"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestGRPCHealth(t *testing.T) {
	gs, _ := NewGRPCServer(zaptest.NewLogger(t))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: CombatService})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRecoveryInterceptor(t *testing.T) {
	intercept := RecoveryInterceptor(zaptest.NewLogger(t))
	_, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}
