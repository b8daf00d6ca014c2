// Package replay records board snapshots after every committed occupancy
// transaction and persists them as zstd-compressed files.
package replay

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// FormatVersion is the on-disk replay format.
const FormatVersion = 1

// Frame is one recorded board state.
type Frame struct {
	Txn      string
	Kind     string
	ActorID  string
	Snapshot occupancy.Snapshot
	Checksum string
}

// Replay is an ordered list of frames with a playback cursor.
type Replay struct {
	BoardID string
	Frames  []Frame

	mu     sync.RWMutex
	cursor int
}

// New creates an empty replay for a board.
func New(boardID string) *Replay {
	return &Replay{BoardID: boardID}
}

// Append adds a frame.
func (r *Replay) Append(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Frames = append(r.Frames, f)
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Frames)
}

// Start rewinds playback.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
}

// Next returns the frame at the cursor and advances it.
func (r *Replay) Next() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.Frames) {
		return Frame{}, false
	}
	f := r.Frames[r.cursor]
	r.cursor++
	return f, true
}

// Previous steps the cursor back and returns that frame.
func (r *Replay) Previous() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == 0 {
		return Frame{}, false
	}
	r.cursor--
	return r.Frames[r.cursor], true
}

// At returns the frame at index.
func (r *Replay) At(index int) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.Frames) {
		return Frame{}, false
	}
	return r.Frames[index], true
}

// Verify recomputes every frame checksum and returns the index of the
// first mismatch, or -1.
func (r *Replay) Verify() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, f := range r.Frames {
		if f.Snapshot.Checksum() != f.Checksum {
			return i
		}
	}
	return -1
}

type header struct {
	Version int       `json:"version"`
	BoardID string    `json:"board_id"`
	Frames  int       `json:"frames"`
	SavedAt time.Time `json:"saved_at"`
}

// Path returns the file a replay for boardID is stored in.
func Path(dir, boardID string) string {
	return filepath.Join(dir, boardID+".replay.zst")
}

// Save writes the replay under dir and returns the file path.
func (r *Replay) Save(dir string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create replay dir: %w", err)
	}
	path := Path(dir, r.BoardID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create replay file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)

	hb, err := json.Marshal(header{Version: FormatVersion, BoardID: r.BoardID, Frames: len(r.Frames), SavedAt: time.Now()})
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(r.Frames); err != nil {
		return "", fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flush replay: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("close zstd writer: %w", err)
	}
	return path, nil
}

// Load reads a replay written by Save.
func Load(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", h.Version)
	}

	r := New(h.BoardID)
	if err := gob.NewDecoder(br).Decode(&r.Frames); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if len(r.Frames) != h.Frames {
		return nil, fmt.Errorf("replay %s: header lists %d frames, found %d", h.BoardID, h.Frames, len(r.Frames))
	}
	return r, nil
}

// Source is the board a recorder captures.
type Source interface {
	BoardID() string
	DumpAll() occupancy.Snapshot
}

// Recorder captures a frame for every OCCUPANCY_CHANGED event.
type Recorder struct {
	source Source
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	replay *Replay
	subs   *rules.Subscriptions
}

// NewRecorder creates a recorder saving under dir.
func NewRecorder(source Source, dir string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{source: source, dir: dir, logger: logger, replay: New(source.BoardID())}
}

// Attach starts recording bus events. The initial board state becomes
// frame zero.
func (rec *Recorder) Attach(bus *rules.EventBus) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.subs != nil {
		return
	}
	rec.capture("", "INITIAL", "")
	rec.subs = bus.Group()
	rec.subs.On(rules.EventOccupancyChanged, func(e rules.Event) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if rec.subs == nil {
			return
		}
		rec.capture(e.Metadata["txn"], e.Metadata["kind"], e.ActorID)
	})
	rec.logger.Info("started replay recording", zap.String("board_id", rec.replay.BoardID))
}

// Detach stops recording.
func (rec *Recorder) Detach() {
	rec.mu.Lock()
	subs := rec.subs
	rec.subs = nil
	rec.mu.Unlock()
	if subs != nil {
		subs.Close()
		rec.logger.Info("stopped replay recording", zap.String("board_id", rec.replay.BoardID))
	}
}

func (rec *Recorder) capture(txn, kind, actor string) {
	snap := rec.source.DumpAll()
	rec.replay.Append(Frame{Txn: txn, Kind: kind, ActorID: actor, Snapshot: snap, Checksum: snap.Checksum()})
	rec.logger.Debug("recorded replay frame",
		zap.String("board_id", snap.BoardID),
		zap.String("txn", txn),
		zap.Uint64("version", snap.Version),
		zap.Int("frames", rec.replay.Len()))
}

// Replay returns the replay being recorded.
func (rec *Recorder) Replay() *Replay {
	return rec.replay
}

// Save persists the recorded frames.
func (rec *Recorder) Save() (string, error) {
	path, err := rec.replay.Save(rec.dir)
	if err != nil {
		return "", fmt.Errorf("save replay: %w", err)
	}
	rec.logger.Info("saved replay to disk",
		zap.String("board_id", rec.replay.BoardID),
		zap.Int("frames", rec.replay.Len()),
		zap.String("path", path))
	return path, nil
}
