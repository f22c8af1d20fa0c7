//go:build !linux

package listener

import (
	"context"

	"fingermon/internal/event"
)

// unsupportedListener is the fallback for platforms without an adapter.
type unsupportedListener struct {
	BaseListener
}

func newPlatformListener(sink chan<- event.Event, _ Options) Listener {
	return &unsupportedListener{BaseListener: NewBase(sink)}
}

func (u *unsupportedListener) Start(ctx context.Context) error {
	return ErrNotAvailable
}

func (u *unsupportedListener) Stop() error {
	return nil
}

func (u *unsupportedListener) Available() (bool, string) {
	return false, "no input adapter for this platform"
}

func (u *unsupportedListener) Devices() int {
	return 0
}
