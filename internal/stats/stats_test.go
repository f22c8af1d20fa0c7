package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"fingermon/internal/event"
)

func TestKeypressCountsAreIdentical(t *testing.T) {
	agg := New(DefaultConfig(), nil)

	const n = 500
	now := time.Now()
	for i := 0; i < n; i++ {
		agg.Apply(event.KeyPress(30, now)) // "A"
	}

	snap := agg.Snapshot()
	if snap.TotalKeystrokes != n {
		t.Errorf("TotalKeystrokes = %d, want %d", snap.TotalKeystrokes, n)
	}
	if got := snap.KeyFrequency["A"]; got != n {
		t.Errorf("KeyFrequency[A] = %d, want %d", got, n)
	}
	var hourly uint64
	for _, c := range snap.HourlyActivity {
		hourly += c
	}
	if hourly != n {
		t.Errorf("sum of HourlyActivity = %d, want %d", hourly, n)
	}
	if got := snap.Today().Keys; got != n {
		t.Errorf("Today().Keys = %d, want %d", got, n)
	}
}

func TestApplyScenario(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	now := time.Now()

	agg.Apply(event.KeyPress(30, now)) // "A"
	agg.Apply(event.KeyPress(48, now)) // "B"
	agg.Apply(event.MouseClick(event.ButtonLeft, now))
	agg.Apply(event.MouseMove(3, 4, now))
	agg.Apply(event.ScrollTick(-2, now))

	snap := agg.Snapshot()
	if snap.TotalKeystrokes != 2 {
		t.Errorf("TotalKeystrokes = %d, want 2", snap.TotalKeystrokes)
	}
	if got := snap.KeyFrequency["A"]; got != 1 {
		t.Errorf("KeyFrequency[A] = %d, want 1", got)
	}
	if got := snap.KeyFrequency["B"]; got != 1 {
		t.Errorf("KeyFrequency[B] = %d, want 1", got)
	}
	if got := snap.MouseClicks["Left"]; got != 1 {
		t.Errorf("MouseClicks[Left] = %d, want 1", got)
	}
	if snap.MouseDistance != 5 {
		t.Errorf("MouseDistance = %v, want 5", snap.MouseDistance)
	}
	if snap.ScrollTicks != 2 {
		t.Errorf("ScrollTicks = %d, want 2", snap.ScrollTicks)
	}

	// Everything happened in one hour, and the move must not have
	// advanced the ring.
	var hourly uint64
	nonZero := 0
	for _, c := range snap.HourlyActivity {
		if c > 0 {
			nonZero++
		}
		hourly += c
	}
	if nonZero != 1 {
		t.Errorf("HourlyActivity non-zero slots = %d, want exactly 1", nonZero)
	}
	if hourly != 4 {
		t.Errorf("sum of HourlyActivity = %d, want 4 (two keys, click, scroll)", hourly)
	}

	day := snap.Today()
	if day.Keys != 2 || day.Clicks != 1 || day.Distance != 5 || day.Scroll != 2 {
		t.Errorf("Today() = %+v, want {2 1 5 2}", day)
	}
}

func TestUnknownCodesAggregateNotReject(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	now := time.Now()

	agg.Apply(event.KeyPress(9999, now))
	agg.Apply(event.MouseClick(event.ButtonOther, now))

	snap := agg.Snapshot()
	if got := snap.KeyFrequency["Key(9999)"]; got != 1 {
		t.Errorf("KeyFrequency[Key(9999)] = %d, want 1", got)
	}
	if got := snap.MouseClicks["Other"]; got != 1 {
		t.Errorf("MouseClicks[Other] = %d, want 1", got)
	}
}

func TestHourlyRolloverOnDayBoundary(t *testing.T) {
	agg := New(DefaultConfig(), nil)

	yesterday := time.Now().AddDate(0, 0, -1)
	agg.Apply(event.KeyPress(30, yesterday))
	agg.Apply(event.KeyPress(30, yesterday))

	snap := agg.Snapshot()
	var before uint64
	for _, c := range snap.HourlyActivity {
		before += c
	}
	if before != 2 {
		t.Fatalf("sum before rollover = %d, want 2", before)
	}

	today := time.Now()
	agg.Apply(event.KeyPress(30, today))

	snap = agg.Snapshot()
	var after uint64
	for _, c := range snap.HourlyActivity {
		after += c
	}
	if after != 1 {
		t.Errorf("sum after rollover = %d, want 1", after)
	}
	if snap.HourlyDate != today.Local().Format(dateLayout) {
		t.Errorf("HourlyDate = %q, want today", snap.HourlyDate)
	}

	// Cumulative totals and the daily map survive the rollover.
	if snap.TotalKeystrokes != 3 {
		t.Errorf("TotalKeystrokes = %d, want 3", snap.TotalKeystrokes)
	}
	yKey := yesterday.Local().Format(dateLayout)
	if got := snap.Daily[yKey].Keys; got != 2 {
		t.Errorf("Daily[%s].Keys = %d, want 2", yKey, got)
	}
}

func TestWPMDerivedFromWindow(t *testing.T) {
	cfg := Config{WPMWindow: time.Minute, CharsPerWord: 5}
	agg := New(cfg, nil)
	now := time.Now()

	// 25 presses inside the window, 10 long expired.
	for i := 0; i < 10; i++ {
		agg.Apply(event.KeyPress(30, now.Add(-2*time.Minute)))
	}
	for i := 0; i < 25; i++ {
		agg.Apply(event.KeyPress(30, now))
	}

	snap := agg.Snapshot()
	if snap.WPM < 4.9 || snap.WPM > 5.1 {
		t.Errorf("WPM = %v, want ~5.0", snap.WPM)
	}
}

func TestWPMDecaysWhenIdle(t *testing.T) {
	cfg := Config{WPMWindow: 50 * time.Millisecond, CharsPerWord: 5}
	agg := New(cfg, nil)

	for i := 0; i < 20; i++ {
		agg.Apply(event.KeyPress(30, time.Now()))
	}
	if wpm := agg.Snapshot().WPM; wpm <= 0 {
		t.Fatalf("WPM = %v, want > 0 right after typing", wpm)
	}

	time.Sleep(80 * time.Millisecond)
	if wpm := agg.Snapshot().WPM; wpm != 0 {
		t.Errorf("WPM = %v after window expiry, want 0", wpm)
	}
}

func TestResumeFromPriorSnapshot(t *testing.T) {
	first := New(DefaultConfig(), nil)
	now := time.Now()
	first.Apply(event.KeyPress(30, now))
	first.Apply(event.MouseMove(3, 4, now))
	prior := first.Snapshot()

	second := New(DefaultConfig(), &prior)
	second.Apply(event.KeyPress(31, now))

	snap := second.Snapshot()
	if snap.TotalKeystrokes != 2 {
		t.Errorf("TotalKeystrokes = %d, want 2", snap.TotalKeystrokes)
	}
	if snap.MouseDistance != 5 {
		t.Errorf("MouseDistance = %v, want 5", snap.MouseDistance)
	}
	if got := snap.KeyFrequency["A"]; got != 1 {
		t.Errorf("KeyFrequency[A] = %d, want 1", got)
	}
	if got := snap.KeyFrequency["S"]; got != 1 {
		t.Errorf("KeyFrequency[S] = %d, want 1", got)
	}
	// A fresh session never adopts the prior session clock.
	if !snap.SessionStart.After(prior.SessionStart.Add(-time.Second)) {
		t.Errorf("SessionStart = %v not refreshed", snap.SessionStart)
	}
}

func TestResumeDropsStaleHourlyRing(t *testing.T) {
	prior := Snapshot{
		TotalKeystrokes: 7,
		KeyFrequency:    map[string]uint64{"A": 7},
		MouseClicks:     map[string]uint64{},
		Daily:           map[string]DayTotals{},
		HourlyActivity:  [24]uint64{3: 7},
		HourlyDate:      "2020-01-01",
	}

	agg := New(DefaultConfig(), &prior)
	snap := agg.Snapshot()

	var hourly uint64
	for _, c := range snap.HourlyActivity {
		hourly += c
	}
	if hourly != 0 {
		t.Errorf("resumed hourly sum = %d, want 0 for a stale date", hourly)
	}
	if snap.TotalKeystrokes != 7 {
		t.Errorf("TotalKeystrokes = %d, want 7", snap.TotalKeystrokes)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	agg.Apply(event.KeyPress(30, time.Now()))

	snap := agg.Snapshot()
	snap.KeyFrequency["A"] = 999
	snap.Daily["mutated"] = DayTotals{Keys: 1}

	again := agg.Snapshot()
	if got := again.KeyFrequency["A"]; got != 1 {
		t.Errorf("KeyFrequency[A] = %d after snapshot mutation, want 1", got)
	}
	if _, ok := again.Daily["mutated"]; ok {
		t.Error("snapshot mutation leaked into aggregator state")
	}
}

func TestConcurrentSnapshotsAreConsistent(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		now := time.Now()
		for {
			select {
			case <-done:
				return
			default:
				agg.Apply(event.KeyPress(30, now))
			}
		}
	}()

	// Every observed snapshot must be internally consistent: the per-key
	// frequencies always sum to the total keystroke counter.
	for i := 0; i < 200; i++ {
		snap := agg.Snapshot()
		var freq uint64
		for _, c := range snap.KeyFrequency {
			freq += c
		}
		if freq != snap.TotalKeystrokes {
			t.Fatalf("torn snapshot: freq sum %d != total %d", freq, snap.TotalKeystrokes)
		}
	}
	close(done)
	wg.Wait()
}

func TestTopKeys(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	now := time.Now()
	for i := 0; i < 3; i++ {
		agg.Apply(event.KeyPress(30, now)) // A
	}
	for i := 0; i < 5; i++ {
		agg.Apply(event.KeyPress(18, now)) // E
	}
	agg.Apply(event.KeyPress(57, now)) // Space

	top := agg.Snapshot().TopKeys(2)
	if len(top) != 2 {
		t.Fatalf("len(TopKeys(2)) = %d, want 2", len(top))
	}
	if top[0].Key != "E" || top[0].Count != 5 {
		t.Errorf("top[0] = %+v, want {E 5}", top[0])
	}
	if top[1].Key != "A" || top[1].Count != 3 {
		t.Errorf("top[1] = %+v, want {A 3}", top[1])
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	src := make(chan event.Event, 64)

	now := time.Now()
	for i := 0; i < 10; i++ {
		src <- event.KeyPress(30, now)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		agg.Run(ctx, src)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if got := agg.Snapshot().TotalKeystrokes; got != 10 {
		t.Errorf("TotalKeystrokes = %d after drain, want 10", got)
	}
}

func TestSubscribeDeliversConsistentSnapshots(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	ch := agg.Subscribe(5)

	now := time.Now()
	for i := 0; i < 5; i++ {
		agg.Apply(event.KeyPress(30, now))
	}

	select {
	case snap := <-ch:
		if snap.TotalKeystrokes != 5 {
			t.Errorf("TotalKeystrokes = %d, want 5", snap.TotalKeystrokes)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered after interval reached")
	}
}

func TestSubscribeClosedOnShutdown(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	ch := agg.Subscribe(1)

	src := make(chan event.Event)
	close(src)
	agg.Run(context.Background(), src)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel, got snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after Run exit")
	}
}

func TestSessionDuration(t *testing.T) {
	snap := Snapshot{
		SessionStart: time.Now().Add(-time.Hour),
		TakenAt:      time.Now(),
	}
	d := snap.SessionDuration()
	if d < 59*time.Minute || d > 61*time.Minute {
		t.Errorf("SessionDuration = %v, want ~1h", d)
	}
}
