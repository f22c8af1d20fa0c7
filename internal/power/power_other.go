//go:build !linux

package power

import "errors"

// ErrNotSupported is returned on platforms without a suspend
// notification source.
var ErrNotSupported = errors.New("power: sleep monitoring not supported on this platform")

// NewMonitor reports ErrNotSupported; callers treat a missing
// monitor as a soft failure.
func NewMonitor(beforeSleep func()) (Monitor, error) {
	return nil, ErrNotSupported
}
