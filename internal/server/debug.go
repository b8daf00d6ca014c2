package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/occupancy"
)

// BoardSource exposes the diagnostic board view.
type BoardSource interface {
	DumpAll() occupancy.Snapshot
	Transactions() []occupancy.TxnRecord
}

// CooldownSource exposes remaining cooldowns.
type CooldownSource interface {
	Abilities(actor string) []string
	SecondsLeft(actor, ability string) int
}

// TurnSource exposes the turn sequencer state.
type TurnSource interface {
	ActiveActor() string
	IsFriendlyPhase() bool
	TurnNumber() int
	Round() int
}

// ActorSource lists known actor ids.
type ActorSource interface {
	IDs() []string
}

// StatsSource exposes watcher counters keyed by watcher then actor.
type StatsSource interface {
	Stats() map[string]map[string]int
}

// Debug serves read-only diagnostic endpoints.
type Debug struct {
	Board     BoardSource
	Cooldowns CooldownSource
	Turns     TurnSource
	Actors    ActorSource
	Stats     StatsSource
	Logger    *zap.Logger
}

// Register mounts the debug endpoints on mux.
func (d *Debug) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/board", d.board)
	mux.HandleFunc("GET /debug/transactions", d.transactions)
	mux.HandleFunc("GET /debug/cooldowns", d.cooldowns)
	mux.HandleFunc("GET /debug/turn", d.turn)
	mux.HandleFunc("GET /debug/stats", d.stats)
}

type boardResponse struct {
	occupancy.Snapshot
	Checksum string                 `json:"checksum"`
	Overlaps [][2]occupancy.ActorID `json:"overlaps,omitempty"`
}

func (d *Debug) board(w http.ResponseWriter, _ *http.Request) {
	snap := d.Board.DumpAll()
	d.writeJSON(w, http.StatusOK, boardResponse{Snapshot: snap, Checksum: snap.Checksum(), Overlaps: snap.Overlaps()})
}

func (d *Debug) transactions(w http.ResponseWriter, _ *http.Request) {
	d.writeJSON(w, http.StatusOK, d.Board.Transactions())
}

func (d *Debug) cooldowns(w http.ResponseWriter, r *http.Request) {
	var actors []string
	if actor := r.URL.Query().Get("actor"); actor != "" {
		actors = []string{actor}
	} else if d.Actors != nil {
		actors = d.Actors.IDs()
	}
	out := make(map[string]map[string]int, len(actors))
	for _, actor := range actors {
		remaining := make(map[string]int)
		for _, ability := range d.Cooldowns.Abilities(actor) {
			remaining[ability] = d.Cooldowns.SecondsLeft(actor, ability)
		}
		out[actor] = remaining
	}
	d.writeJSON(w, http.StatusOK, out)
}

type turnResponse struct {
	ActiveActor string `json:"active_actor"`
	Friendly    bool   `json:"friendly_phase"`
	Turn        int    `json:"turn"`
	Round       int    `json:"round"`
}

func (d *Debug) turn(w http.ResponseWriter, _ *http.Request) {
	if d.Turns == nil {
		http.Error(w, "turn sequencer not configured", http.StatusNotFound)
		return
	}
	d.writeJSON(w, http.StatusOK, turnResponse{
		ActiveActor: d.Turns.ActiveActor(),
		Friendly:    d.Turns.IsFriendlyPhase(),
		Turn:        d.Turns.TurnNumber(),
		Round:       d.Turns.Round(),
	})
}

func (d *Debug) stats(w http.ResponseWriter, _ *http.Request) {
	if d.Stats == nil {
		http.Error(w, "watchers not configured", http.StatusNotFound)
		return
	}
	d.writeJSON(w, http.StatusOK, d.Stats.Stats())
}

func (d *Debug) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && d.Logger != nil {
		d.Logger.Warn("failed to write debug response", zap.Error(err))
	}
}
