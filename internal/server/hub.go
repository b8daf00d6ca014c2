package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/rules"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// WSMessage is the envelope for every websocket frame. Clients send
// watch requests and intents; the hub sends events and intent replies.
type WSMessage struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	ToolID    string         `json:"tool_id,omitempty"`
	Target    *action.Target `json:"target,omitempty"`
	Event     *rules.Event   `json:"event,omitempty"`
	Report    *action.Report `json:"report,omitempty"`
	Stage     action.Stage   `json:"stage,omitempty"`
	Reason    rules.Reason   `json:"reason,omitempty"`
	Count     int            `json:"count,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// client is one websocket subscriber. An empty watch set receives every
// event.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	watch map[string]bool
}

func (c *client) wants(e rules.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.watch) == 0 {
		return true
	}
	return c.watch[e.ActorID] || (e.TargetID != "" && c.watch[e.TargetID])
}

type outbound struct {
	event   rules.Event
	payload []byte
}

// Hub fans combat events out to websocket clients. Slow clients are
// dropped rather than blocking the event bus.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
	subs    *rules.Subscriptions
	intents *Intents
}

// NewHub creates a hub. An empty allowedOrigins accepts any origin.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return origins[r.Header.Get("Origin")]
		},
	}
	return h
}

// Attach forwards every bus event to the hub.
func (h *Hub) Attach(bus *rules.EventBus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs != nil {
		return
	}
	h.subs = bus.Group()
	h.subs.All(h.Publish)
}

// Detach stops forwarding bus events.
func (h *Hub) Detach() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()
	if subs != nil {
		subs.Close()
	}
}

// AcceptIntents lets clients drive the combat core. Without it intent
// messages are answered with an error.
func (h *Hub) AcceptIntents(in *Intents) {
	h.mu.Lock()
	h.intents = in
	h.mu.Unlock()
}

// Publish queues an event for broadcast without blocking.
func (h *Hub) Publish(e rules.Event) {
	payload, err := json.Marshal(WSMessage{Type: "event", Event: &e})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{event: e, payload: payload}:
	default:
		h.logger.Warn("event broadcast queue full, dropping event", zap.String("type", string(e.Type)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run serves registrations and broadcasts until ctx is done. It must be
// called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client registered", zap.String("remote", c.conn.RemoteAddr().String()))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client unregistered", zap.String("remote", c.conn.RemoteAddr().String()))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.event) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if actor := r.URL.Query().Get("actor"); actor != "" {
		c.watch = map[string]bool{actor: true}
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

// readPump handles watch requests and intents from the client. Intents
// from one client run in order.
func (h *Hub) readPump(c *client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, WSMessage{Type: "error", Error: "malformed message"})
			continue
		}
		switch msg.Type {
		case "watch":
			c.mu.Lock()
			if c.watch == nil {
				c.watch = make(map[string]bool)
			}
			c.watch[msg.ActorID] = true
			c.mu.Unlock()
			h.reply(c, WSMessage{Type: "watching", ActorID: msg.ActorID})
		case "unwatch":
			c.mu.Lock()
			delete(c.watch, msg.ActorID)
			c.mu.Unlock()
			h.reply(c, WSMessage{Type: "unwatched", ActorID: msg.ActorID})
		default:
			if !isIntent(msg.Type) {
				h.reply(c, WSMessage{Type: "error", RequestID: msg.RequestID, Error: "unknown message type " + msg.Type})
				continue
			}
			h.mu.RLock()
			in := h.intents
			h.mu.RUnlock()
			if in == nil {
				h.reply(c, WSMessage{Type: "error", RequestID: msg.RequestID, Error: "intents are not accepted"})
				continue
			}
			h.reply(c, in.Dispatch(ctx, msg))
		}
	}
}

func (h *Hub) reply(c *client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
