package listener

import (
	"context"
	"time"

	"fingermon/internal/event"
)

// SimulatedListener is a listener for testing that doesn't hook real
// input devices. Events are injected through the same non-blocking emit
// path the platform listeners use.
type SimulatedListener struct {
	BaseListener
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSimulated creates a listener for testing.
func NewSimulated(sink chan<- event.Event) *SimulatedListener {
	return &SimulatedListener{BaseListener: NewBase(sink)}
}

// Start begins the simulated listener.
func (s *SimulatedListener) Start(ctx context.Context) error {
	if s.IsRunning() {
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.SetRunning(true)
	return nil
}

// Stop stops the simulated listener.
func (s *SimulatedListener) Stop() error {
	if !s.IsRunning() {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.SetRunning(false)
	return nil
}

// Available returns true (simulated is always available).
func (s *SimulatedListener) Available() (bool, string) {
	return true, "simulated listener (for testing)"
}

// Devices reports one virtual device while running.
func (s *SimulatedListener) Devices() int {
	if s.IsRunning() {
		return 1
	}
	return 0
}

// Inject emits an event as if the OS had delivered it. Events injected
// while stopped are discarded, matching the platform listeners.
func (s *SimulatedListener) Inject(ev event.Event) {
	if s.IsRunning() {
		s.Emit(ev)
	}
}

// InjectKeyPresses emits n key presses of the given code, one per tick.
func (s *SimulatedListener) InjectKeyPresses(code uint16, n int) {
	for i := 0; i < n; i++ {
		s.Inject(event.KeyPress(code, time.Now()))
	}
}
