package listener

import (
	"context"
	"testing"
	"time"

	"fingermon/internal/event"
)

func TestSimulatedStartStop(t *testing.T) {
	sink := make(chan event.Event, 8)
	s := NewSimulated(sink)

	if s.IsRunning() {
		t.Error("should not be running before Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("should be running after Start")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("should not be running after Stop")
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	sink := make(chan event.Event, 1)
	s := NewSimulated(sink)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	s.Stop()
}

func TestStopNotRunningIsNoop(t *testing.T) {
	s := NewSimulated(make(chan event.Event, 1))
	if err := s.Stop(); err != nil {
		t.Errorf("Stop on stopped listener should be a no-op, got %v", err)
	}
}

func TestInjectBeforeStartDiscarded(t *testing.T) {
	sink := make(chan event.Event, 8)
	s := NewSimulated(sink)

	s.Inject(event.KeyPress(30, time.Now()))
	select {
	case <-sink:
		t.Error("event before Start should be discarded")
	default:
	}
}

func TestEmitDelivers(t *testing.T) {
	sink := make(chan event.Event, 8)
	s := NewSimulated(sink)
	s.Start(context.Background())
	defer s.Stop()

	s.InjectKeyPresses(30, 3)

	for i := 0; i < 3; i++ {
		select {
		case ev := <-sink:
			if ev.Kind != event.KindKeyPress || ev.KeyCode != 30 {
				t.Errorf("unexpected event: %+v", ev)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected event on sink")
		}
	}
	if s.Dropped() != 0 {
		t.Errorf("expected 0 drops, got %d", s.Dropped())
	}
}

func TestEmitNeverBlocksOnBackpressure(t *testing.T) {
	// Tiny sink, no consumer: the overflow must be dropped, not block.
	sink := make(chan event.Event, 2)
	s := NewSimulated(sink)
	s.Start(context.Background())
	defer s.Stop()

	done := make(chan struct{})
	go func() {
		s.InjectKeyPresses(30, 100)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked when sink was full")
	}

	if got := s.Dropped(); got != 98 {
		t.Errorf("expected 98 drops (100 sent, capacity 2), got %d", got)
	}
}

func TestDroppedPlusDeliveredAccountsForAll(t *testing.T) {
	sink := make(chan event.Event, 16)
	s := NewSimulated(sink)
	s.Start(context.Background())
	defer s.Stop()

	const total = 500
	s.InjectKeyPresses(30, total)

	delivered := 0
drain:
	for {
		select {
		case <-sink:
			delivered++
		default:
			break drain
		}
	}

	if uint64(delivered)+s.Dropped() != total {
		t.Errorf("delivered(%d) + dropped(%d) != injected(%d)",
			delivered, s.Dropped(), total)
	}
}

func TestNewReturnsPlatformListener(t *testing.T) {
	l := New(make(chan event.Event, 1), Options{})
	if l == nil {
		t.Fatal("New returned nil")
	}
	// Availability is environment-dependent; the message must always be set
	// when unavailable.
	if ok, msg := l.Available(); !ok && msg == "" {
		t.Error("unavailable listener should explain why")
	}
}

func TestListenerInterface(t *testing.T) {
	var l Listener = NewSimulated(make(chan event.Event, 1))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ok, _ := l.Available(); !ok {
		t.Error("simulated listener should always be available")
	}
	if l.Dropped() != 0 {
		t.Error("fresh listener should have no drops")
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
