// Package power reacts to system suspend so statistics are flushed
// before the machine sleeps.
package power

import "context"

// Monitor watches for suspend notifications and invokes a callback
// before the system sleeps.
type Monitor interface {
	// Run blocks until ctx is cancelled or the watch fails.
	Run(ctx context.Context) error
	Close() error
}
