package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

func board(t *testing.T) (*occupancy.Service, *rules.EventBus) {
	logger := zaptest.NewLogger(t)
	bus := rules.NewEventBus()
	return occupancy.NewService(occupancy.NewStore(hex.NewGrid(3, 1), logger), logger, occupancy.WithEventBus(bus)), bus
}

func TestRecorderCapturesEveryTransaction(t *testing.T) {
	svc, bus := board(t)
	rec := NewRecorder(svc, t.TempDir(), zaptest.NewLogger(t))
	rec.Attach(bus)

	a := unit.New("a", unit.FactionFriendly, nil, unit.Stats{})
	_, reason := svc.TryPlace(a, hex.C(0, 0), 0)
	require.True(t, reason.OK())
	_, reason = svc.TryMove(a, hex.C(1, 0), 0)
	require.True(t, reason.OK())

	r := rec.Replay()
	require.Equal(t, 3, r.Len())
	first, _ := r.At(0)
	assert.Equal(t, "INITIAL", first.Kind)
	assert.Empty(t, first.Snapshot.Actors)

	last, _ := r.At(2)
	assert.Equal(t, "a", last.ActorID)
	require.Len(t, last.Snapshot.Actors, 1)
	assert.Equal(t, hex.C(1, 0), last.Snapshot.Actors[0].Anchor)
	assert.Equal(t, -1, r.Verify())

	rec.Detach()
	_, _ = svc.Remove(a)
	assert.Equal(t, 3, r.Len())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	svc, bus := board(t)
	dir := t.TempDir()
	rec := NewRecorder(svc, dir, zaptest.NewLogger(t))
	rec.Attach(bus)
	for i, id := range []string{"a", "b"} {
		_, reason := svc.TryPlace(unit.New(id, unit.FactionFriendly, nil, unit.Stats{}), hex.C(i, 0), 0)
		require.True(t, reason.OK())
	}

	path, err := rec.Save()
	require.NoError(t, err)
	assert.Equal(t, Path(dir, svc.BoardID()), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, svc.BoardID(), loaded.BoardID)
	require.Equal(t, 3, loaded.Len())
	assert.Equal(t, -1, loaded.Verify())

	last, ok := loaded.At(2)
	require.True(t, ok)
	assert.Equal(t, svc.DumpAll().Checksum(), last.Checksum)
}

func TestPlaybackCursor(t *testing.T) {
	r := New("board")
	for _, txn := range []string{"1", "2", "3"} {
		r.Append(Frame{Txn: txn})
	}
	f, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, "1", f.Txn)
	f, _ = r.Next()
	assert.Equal(t, "2", f.Txn)
	f, _ = r.Previous()
	assert.Equal(t, "2", f.Txn)
	r.Start()
	_, ok = r.Previous()
	assert.False(t, ok)
	_, ok = r.At(5)
	assert.False(t, ok)
}

func TestVerifyDetectsTampering(t *testing.T) {
	svc, bus := board(t)
	rec := NewRecorder(svc, t.TempDir(), nil)
	rec.Attach(bus)
	_, reason := svc.TryPlace(unit.New("a", unit.FactionFriendly, nil, unit.Stats{}), hex.C(0, 0), 0)
	require.True(t, reason.OK())

	r := rec.Replay()
	r.Frames[1].Snapshot.Actors[0].Anchor = hex.C(2, 0)
	assert.Equal(t, 1, r.Verify())
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.replay.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
