package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fingermon/internal/event"
	"fingermon/internal/stats"
)

func sampleSnapshot(t *testing.T) stats.Snapshot {
	t.Helper()
	agg := stats.New(stats.DefaultConfig(), nil)
	now := time.Now()
	agg.Apply(event.KeyPress(30, now))
	agg.Apply(event.KeyPress(18, now))
	agg.Apply(event.MouseClick(event.ButtonLeft, now))
	agg.Apply(event.MouseMove(3, 4, now))
	agg.Apply(event.ScrollTick(2, now))
	return agg.Snapshot()
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	snap := sampleSnapshot(t)

	require.NoError(t, Save(path, NewState(snap)))

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, st.SchemaVersion)
	assert.Equal(t, snap.TotalKeystrokes, st.Stats.TotalKeystrokes)
	assert.Equal(t, snap.KeyFrequency, st.Stats.KeyFrequency)
	assert.Equal(t, snap.MouseDistance, st.Stats.MouseDistance)
	assert.Equal(t, snap.ScrollTicks, st.Stats.ScrollTicks)
	assert.Equal(t, snap.HourlyActivity, st.Stats.HourlyActivity)
	assert.Equal(t, snap.Daily, st.Stats.Daily)
}

func TestSaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	require.NoError(t, Save(path, NewState(sampleSnapshot(t))))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, os.IsNotExist(err))

	assert.Nil(t, LoadOrInit(filepath.Join(t.TempDir(), "absent.json")))
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrCorruptState)

	assert.Nil(t, LoadOrInit(path))

	// The bad file is moved aside, not deleted.
	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestLoadSchemaInvalidFile(t *testing.T) {
	// Valid JSON but the hourly ring is short and a counter is negative.
	doc := `{
	  "schema_version": 1,
	  "saved_at": "2026-08-30T10:00:00Z",
	  "stats": {
	    "total_keystrokes": -5,
	    "key_frequency": {},
	    "mouse_clicks": {},
	    "mouse_distance": 0,
	    "scroll_ticks": 0,
	    "hourly_activity": [0, 0, 0],
	    "daily": {}
	  }
	}`
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestLoadVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st := NewState(sampleSnapshot(t))
	st.SchemaVersion = 99
	require.NoError(t, Save(path, st))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	assert.Nil(t, LoadOrInit(path))
}

func TestInterruptedSaveLeavesOldState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, NewState(sampleSnapshot(t))))

	// A crash between temp write and rename leaves a stray .tmp file.
	require.NoError(t, os.WriteFile(path+".tmp", []byte("partial garbage"), 0o600))

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, st.SchemaVersion)

	// The next save replaces the stray temp file and commits cleanly.
	require.NoError(t, Save(path, NewState(sampleSnapshot(t))))
	_, err = Load(path)
	assert.NoError(t, err)
}

func TestRunnerWritesFinalCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	agg := stats.New(stats.DefaultConfig(), nil)
	agg.Apply(event.KeyPress(30, time.Now()))

	r := NewRunner(path, time.Hour, agg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Stats.TotalKeystrokes)
}

func TestRunnerPeriodicCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	agg := stats.New(stats.DefaultConfig(), nil)
	agg.Apply(event.KeyPress(30, time.Now()))

	r := NewRunner(path, 20*time.Millisecond, agg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no checkpoint written by the periodic loop")
}
