// Package stats owns the live usage-statistics model.
//
// The model has exactly one writer - the Aggregator's consume loop - and
// any number of readers, which only ever observe immutable Snapshot copies.
// That single coarse handoff point is the only synchronization in the
// package; no field-level locking is needed.
package stats

import (
	"sort"
	"time"
)

// dateLayout keys the daily totals map and the hourly-bucket epoch.
const dateLayout = "2006-01-02"

// Config holds the tunable aggregation constants.
type Config struct {
	// WPMWindow is the sliding window over recent keystrokes used for
	// the words-per-minute estimate.
	WPMWindow time.Duration

	// CharsPerWord is the conventional characters-per-word divisor.
	CharsPerWord float64
}

// DefaultConfig returns the conventional 60-second / 5-characters-per-word
// WPM parameters.
func DefaultConfig() Config {
	return Config{
		WPMWindow:    60 * time.Second,
		CharsPerWord: 5,
	}
}

// DayTotals are the per-calendar-day rollups.
type DayTotals struct {
	Keys     uint64  `json:"keys"`
	Clicks   uint64  `json:"clicks"`
	Distance float64 `json:"distance"`
	Scroll   uint64  `json:"scroll"`
}

// KeyCount pairs a key name with its press count, for top-N views.
type KeyCount struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// Model is the mutable aggregate state. Only the Aggregator touches it.
type Model struct {
	TotalKeystrokes uint64
	KeyFrequency    map[string]uint64
	MouseClicks     map[string]uint64
	MouseDistance   float64
	ScrollTicks     uint64

	// HourlyActivity is a 24-slot ring keyed by local hour-of-day. It
	// accumulates across days until a day-boundary crossing is detected,
	// at which point the whole array is zeroed once. HourlyDate is the
	// local date the ring was last zeroed for.
	HourlyActivity [24]uint64
	HourlyDate     string

	Daily map[string]DayTotals

	SessionStart time.Time
	LastKeypress time.Time
}

// newModel returns an empty model with the session clock started.
func newModel(now time.Time) Model {
	return Model{
		KeyFrequency: make(map[string]uint64),
		MouseClicks:  make(map[string]uint64),
		Daily:        make(map[string]DayTotals),
		HourlyDate:   now.Local().Format(dateLayout),
		SessionStart: now,
	}
}

// Snapshot is an immutable, internally consistent copy of the model taken
// atomically with respect to aggregation. Derived values (WPM, durations)
// are computed at copy time.
type Snapshot struct {
	TakenAt      time.Time `json:"taken_at"`
	SessionStart time.Time `json:"session_start"`
	LastKeypress time.Time `json:"last_keypress,omitempty"`

	TotalKeystrokes uint64            `json:"total_keystrokes"`
	KeyFrequency    map[string]uint64 `json:"key_frequency"`
	MouseClicks     map[string]uint64 `json:"mouse_clicks"`
	MouseDistance   float64           `json:"mouse_distance"`
	ScrollTicks     uint64            `json:"scroll_ticks"`

	HourlyActivity [24]uint64           `json:"hourly_activity"`
	HourlyDate     string               `json:"hourly_date"`
	Daily          map[string]DayTotals `json:"daily"`

	// WPM is the words-per-minute estimate over the sliding window. It
	// is a read-time derivation, not a stored counter, and decays to 0
	// once the window empties.
	WPM float64 `json:"wpm"`
}

// SessionDuration returns how long the current session has been running
// as of the snapshot.
func (s Snapshot) SessionDuration() time.Duration {
	if s.SessionStart.IsZero() {
		return 0
	}
	return s.TakenAt.Sub(s.SessionStart)
}

// Today returns the rollup for the snapshot's local date.
func (s Snapshot) Today() DayTotals {
	return s.Daily[s.TakenAt.Local().Format(dateLayout)]
}

// TopKeys returns the n most pressed keys, highest first. Ties break by
// name so the ordering is deterministic.
func (s Snapshot) TopKeys(n int) []KeyCount {
	out := make([]KeyCount, 0, len(s.KeyFrequency))
	for k, v := range s.KeyFrequency {
		out = append(out, KeyCount{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}
