// Package listener captures global keyboard and mouse events and forwards
// them, normalized, to the stats aggregator.
//
// The send path is the latency-critical part of the whole daemon: some
// platforms deliver input through a hook that stalls the user's keyboard if
// the callback blocks. Emit therefore never blocks - when the sink channel
// is full the event is dropped and counted, trading stats completeness for
// input responsiveness.
//
// Platform support:
// - Linux: reads /dev/input/event* (requires the 'input' group or root)
// - other platforms: ErrNotAvailable until an adapter is written
package listener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"fingermon/internal/event"
)

// ErrNotAvailable is returned when input capture isn't available on this
// platform.
var ErrNotAvailable = errors.New("input capture not available on this platform")

// ErrPermissionDenied is returned when the OS refuses the input subscription.
var ErrPermissionDenied = errors.New("insufficient permissions for input capture")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("listener already running")

// Listener captures OS input events and emits them to its sink.
type Listener interface {
	// Start begins capturing. It registers with the OS input subsystem
	// exactly once; a second Start while running fails with
	// ErrAlreadyRunning.
	Start(ctx context.Context) error

	// Stop unregisters and stops capturing. Stopping a listener that is
	// not running is a no-op.
	Stop() error

	// Available reports whether capture can work on this platform with
	// current permissions, with a human-readable reason.
	Available() (bool, string)

	// Dropped returns the number of events discarded because the sink
	// was full.
	Dropped() uint64

	// Devices returns the number of input devices currently open.
	Devices() int
}

// BaseListener provides sink handling and running state for platform
// implementations.
type BaseListener struct {
	mu      sync.RWMutex
	running bool

	sink    chan<- event.Event
	dropped atomic.Uint64
}

// NewBase returns a BaseListener emitting into sink.
func NewBase(sink chan<- event.Event) BaseListener {
	return BaseListener{sink: sink}
}

// Emit attempts a non-blocking send to the sink. On backpressure the event
// is dropped and counted; Emit never waits.
func (b *BaseListener) Emit(ev event.Event) {
	select {
	case b.sink <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the dropped-event count.
func (b *BaseListener) Dropped() uint64 {
	return b.dropped.Load()
}

// SetRunning sets the running state.
func (b *BaseListener) SetRunning(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = running
}

// IsRunning returns the running state.
func (b *BaseListener) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Options controls device discovery on platforms that enumerate
// device nodes.
type Options struct {
	// DevicePattern is the glob used to discover input devices. Empty
	// selects the platform default.
	DevicePattern string

	// IgnoreDevices are device nodes to skip, given either as a base
	// name ("event7") or a full path.
	IgnoreDevices []string
}

// New creates a Listener for the current platform emitting into sink.
func New(sink chan<- event.Event, opts Options) Listener {
	return newPlatformListener(sink, opts)
}
