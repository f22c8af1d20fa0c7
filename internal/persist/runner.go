package persist

import (
	"context"
	"sync"
	"time"

	"fingermon/internal/logging"
	"fingermon/internal/metrics"
	"fingermon/internal/stats"
)

// Snapshotter is the state source the runner checkpoints from.
type Snapshotter interface {
	Snapshot() stats.Snapshot
}

// Runner checkpoints the statistics state on an interval and once more
// on shutdown. Checkpoint is safe to call concurrently with the loop,
// which lets power-management hooks force a save before sleep.
type Runner struct {
	path     string
	interval time.Duration
	source   Snapshotter
	metrics  *metrics.DaemonMetrics

	mu sync.Mutex
}

// NewRunner creates a runner writing to path every interval. A nil
// metrics set disables reporting.
func NewRunner(path string, interval time.Duration, source Snapshotter, m *metrics.DaemonMetrics) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		path:     path,
		interval: interval,
		source:   source,
		metrics:  m,
	}
}

// Run checkpoints until ctx is cancelled, then writes a final
// checkpoint. A failed periodic save is logged and retried on the next
// tick; state loss is bounded by the interval.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Checkpoint(); err != nil {
				logging.Error("periodic checkpoint failed", "path", r.path, "error", err)
			}
		case <-ctx.Done():
			if err := r.Checkpoint(); err != nil {
				logging.Error("final checkpoint failed", "path", r.path, "error", err)
			} else {
				logging.Info("final checkpoint written", "path", r.path)
			}
			return
		}
	}
}

// Checkpoint takes a snapshot and writes it to disk.
func (r *Runner) Checkpoint() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	err := Save(r.path, NewState(r.source.Snapshot()))
	if r.metrics != nil {
		r.metrics.RecordCheckpoint(time.Since(start), err)
	}
	return err
}
