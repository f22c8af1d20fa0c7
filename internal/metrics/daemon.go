package metrics

import "time"

// DaemonMetrics holds every metric the daemon reports.
type DaemonMetrics struct {
	registry *Registry

	EventsIngestedTotal *Counter
	EventsDroppedTotal  *Counter
	KeystrokesTotal     *Counter
	MouseClicksTotal    *Counter
	ScrollTicksTotal    *Counter
	CheckpointsTotal    *Counter
	CheckpointFailures  *Counter

	UptimeSeconds     *Gauge
	LastCheckpointTs  *Gauge
	SubscriberCount   *Gauge
	InputDevices      *Gauge

	CheckpointDuration *Histogram
}

var startTime = time.Now()

// NewDaemonMetrics registers the daemon metric set on registry, or on the
// default registry if nil.
func NewDaemonMetrics(registry *Registry) *DaemonMetrics {
	if registry == nil {
		registry = Default()
	}

	return &DaemonMetrics{
		registry: registry,

		EventsIngestedTotal: registry.RegisterCounter(
			"events_ingested_total",
			"Total input events applied to the statistics model",
		),
		EventsDroppedTotal: registry.RegisterCounter(
			"events_dropped_total",
			"Total input events dropped at the ingestion channel",
		),
		KeystrokesTotal: registry.RegisterCounter(
			"keystrokes_total",
			"Total keystrokes recorded",
		),
		MouseClicksTotal: registry.RegisterCounter(
			"mouse_clicks_total",
			"Total mouse clicks recorded",
		),
		ScrollTicksTotal: registry.RegisterCounter(
			"scroll_ticks_total",
			"Total scroll wheel notches recorded",
		),
		CheckpointsTotal: registry.RegisterCounter(
			"checkpoints_total",
			"Total successful state checkpoints",
		),
		CheckpointFailures: registry.RegisterCounter(
			"checkpoint_failures_total",
			"Total failed state checkpoints",
		),

		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Seconds since the daemon started",
		),
		LastCheckpointTs: registry.RegisterGauge(
			"last_checkpoint_timestamp",
			"Unix timestamp of the last successful checkpoint",
		),
		SubscriberCount: registry.RegisterGauge(
			"subscribers",
			"Connected snapshot stream subscribers",
		),
		InputDevices: registry.RegisterGauge(
			"input_devices",
			"Input devices currently being read",
		),

		CheckpointDuration: registry.RegisterHistogram(
			"checkpoint_duration_seconds",
			"Duration of state checkpoint writes in seconds",
			DurationBuckets,
		),
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *DaemonMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// RecordCheckpoint notes a checkpoint outcome.
func (m *DaemonMetrics) RecordCheckpoint(d time.Duration, err error) {
	if err != nil {
		m.CheckpointFailures.Inc()
		return
	}
	m.CheckpointsTotal.Inc()
	m.LastCheckpointTs.Set(time.Now().Unix())
	m.CheckpointDuration.ObserveDuration(d)
}
