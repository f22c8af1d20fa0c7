package stats

import (
	"context"
	"math"
	"sync"
	"time"

	"fingermon/internal/event"
)

// subscriber receives a snapshot every interval applied events.
type subscriber struct {
	interval uint64
	ch       chan Snapshot
	lastSent uint64
}

// Aggregator folds normalized input events into the statistics model.
// Apply is single-writer; Snapshot may be called concurrently with Apply
// and with other Snapshot calls.
type Aggregator struct {
	mu    sync.Mutex
	model Model
	cfg   Config

	// recent holds keypress timestamps inside the WPM window, oldest
	// first. Pruned on every keypress and on snapshot.
	recent []time.Time

	applied     uint64
	subscribers []*subscriber
	closed      bool
}

// New creates an aggregator. A prior snapshot (from a loaded checkpoint)
// seeds the counters so totals resume across restarts; the session clock
// and WPM window always start fresh.
func New(cfg Config, prior *Snapshot) *Aggregator {
	if cfg.WPMWindow <= 0 {
		cfg.WPMWindow = DefaultConfig().WPMWindow
	}
	if cfg.CharsPerWord <= 0 {
		cfg.CharsPerWord = DefaultConfig().CharsPerWord
	}

	now := time.Now()
	m := newModel(now)
	if prior != nil {
		m.TotalKeystrokes = prior.TotalKeystrokes
		m.MouseDistance = prior.MouseDistance
		m.ScrollTicks = prior.ScrollTicks
		for k, v := range prior.KeyFrequency {
			m.KeyFrequency[k] = v
		}
		for k, v := range prior.MouseClicks {
			m.MouseClicks[k] = v
		}
		for k, v := range prior.Daily {
			m.Daily[k] = v
		}
		// Resume the hourly ring only if it belongs to today; a restart
		// on a later day is itself a rollover.
		if prior.HourlyDate == m.HourlyDate {
			m.HourlyActivity = prior.HourlyActivity
		}
	}

	return &Aggregator{model: m, cfg: cfg}
}

// Apply folds one event into the model. Apply never fails: unknown key and
// button codes aggregate under catch-all buckets rather than being
// rejected.
func (a *Aggregator) Apply(ev event.Event) {
	a.mu.Lock()

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	a.rolloverLocked(ts)

	switch ev.Kind {
	case event.KindKeyPress:
		a.model.TotalKeystrokes++
		a.model.KeyFrequency[event.KeyName(ev.KeyCode)]++
		a.model.HourlyActivity[ts.Local().Hour()]++
		a.model.LastKeypress = ts
		a.bumpDailyLocked(ts, func(d *DayTotals) { d.Keys++ })
		a.recordKeypressLocked(ts)

	case event.KindMouseClick:
		a.model.MouseClicks[ev.Button.String()]++
		a.model.HourlyActivity[ts.Local().Hour()]++
		a.bumpDailyLocked(ts, func(d *DayTotals) { d.Clicks++ })

	case event.KindMouseMove:
		// Movement is high-frequency noise; it accumulates distance but
		// deliberately does not advance the hourly activity buckets.
		dist := math.Sqrt(ev.DeltaX*ev.DeltaX + ev.DeltaY*ev.DeltaY)
		a.model.MouseDistance += dist
		a.bumpDailyLocked(ts, func(d *DayTotals) { d.Distance += dist })

	case event.KindScrollTick:
		amount := uint64(ev.ScrollDelta)
		if ev.ScrollDelta < 0 {
			amount = uint64(-ev.ScrollDelta)
		}
		if amount == 0 {
			amount = 1
		}
		a.model.ScrollTicks += amount
		a.model.HourlyActivity[ts.Local().Hour()]++
		a.bumpDailyLocked(ts, func(d *DayTotals) { d.Scroll += amount })
	}

	a.applied++
	a.notifyLocked()
	a.mu.Unlock()
}

// rolloverLocked zeroes the hourly ring when the event's local date has
// moved past the date the ring was last zeroed for. Only a day-boundary
// crossing clears it; a new hour within the same day never does.
func (a *Aggregator) rolloverLocked(ts time.Time) {
	date := ts.Local().Format(dateLayout)
	if date != a.model.HourlyDate {
		a.model.HourlyActivity = [24]uint64{}
		a.model.HourlyDate = date
	}
}

func (a *Aggregator) bumpDailyLocked(ts time.Time, f func(*DayTotals)) {
	date := ts.Local().Format(dateLayout)
	d := a.model.Daily[date]
	f(&d)
	a.model.Daily[date] = d
}

// recordKeypressLocked appends to the WPM window and prunes expired
// entries.
func (a *Aggregator) recordKeypressLocked(ts time.Time) {
	a.recent = append(a.recent, ts)
	a.pruneLocked(ts)
}

func (a *Aggregator) pruneLocked(now time.Time) {
	cutoff := now.Add(-a.cfg.WPMWindow)
	i := 0
	for i < len(a.recent) && a.recent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		a.recent = append(a.recent[:0], a.recent[i:]...)
	}
}

// Snapshot returns an immutable deep copy of the model. The critical
// section is a map copy of a bounded key domain, so readers never hold
// the writer for long.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every
// interval applied events. Sends are non-blocking; a slow consumer misses
// intermediate states but each delivered snapshot is consistent and no
// older than the previous one. The channel closes when the aggregator's
// Run loop exits.
func (a *Aggregator) Subscribe(interval uint64) <-chan Snapshot {
	if interval == 0 {
		interval = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan Snapshot, 4)
	if a.closed {
		close(ch)
		return ch
	}
	a.subscribers = append(a.subscribers, &subscriber{
		interval: interval,
		ch:       ch,
		lastSent: a.applied,
	})
	return ch
}

// notifyLocked pushes snapshots to due subscribers. Snapshot copies are
// built inline under the same lock so each delivery is self-consistent.
func (a *Aggregator) notifyLocked() {
	for _, sub := range a.subscribers {
		if a.applied-sub.lastSent < sub.interval {
			continue
		}
		select {
		case sub.ch <- a.snapshotLocked():
			sub.lastSent = a.applied
		default:
			// Consumer is behind, skip this update.
		}
	}
}

// snapshotLocked is Snapshot without re-taking the lock.
func (a *Aggregator) snapshotLocked() Snapshot {
	now := time.Now()
	a.pruneLocked(now)

	snap := Snapshot{
		TakenAt:         now,
		SessionStart:    a.model.SessionStart,
		LastKeypress:    a.model.LastKeypress,
		TotalKeystrokes: a.model.TotalKeystrokes,
		KeyFrequency:    make(map[string]uint64, len(a.model.KeyFrequency)),
		MouseClicks:     make(map[string]uint64, len(a.model.MouseClicks)),
		MouseDistance:   a.model.MouseDistance,
		ScrollTicks:     a.model.ScrollTicks,
		HourlyActivity:  a.model.HourlyActivity,
		HourlyDate:      a.model.HourlyDate,
		Daily:           make(map[string]DayTotals, len(a.model.Daily)),
	}
	for k, v := range a.model.KeyFrequency {
		snap.KeyFrequency[k] = v
	}
	for k, v := range a.model.MouseClicks {
		snap.MouseClicks[k] = v
	}
	for k, v := range a.model.Daily {
		snap.Daily[k] = v
	}
	if a.cfg.WPMWindow > 0 {
		perWindow := float64(len(a.recent)) / a.cfg.CharsPerWord
		snap.WPM = perWindow * float64(time.Minute) / float64(a.cfg.WPMWindow)
	}
	return snap
}

// Poll returns the latest committed state. It is the pull half of the
// snapshot consumer interface.
func (a *Aggregator) Poll() Snapshot {
	return a.Snapshot()
}

// Run consumes events until ctx is cancelled or src closes. The loop
// blocks only while waiting on the channel, never on I/O. On cancellation
// it drains whatever is still buffered before closing subscriber channels.
func (a *Aggregator) Run(ctx context.Context, src <-chan event.Event) {
	defer a.closeSubscribers()

	for {
		select {
		case ev, ok := <-src:
			if !ok {
				return
			}
			a.Apply(ev)
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-src:
					if !ok {
						return
					}
					a.Apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Aggregator) closeSubscribers() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, sub := range a.subscribers {
		close(sub.ch)
	}
	a.subscribers = nil
	a.closed = true
}
