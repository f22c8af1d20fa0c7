package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is the sentinel wrapped by validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates all problems found in one pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks the full configuration and returns every error
// found, not just the first.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateListener(&c.Listener)...)
	errs = append(errs, validateStats(&c.Stats)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, errs.Error())
}

func validateListener(l *ListenerConfig) ValidationErrors {
	var errs ValidationErrors

	if l.ChannelCapacity <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "listener.channel_capacity",
			Value:   l.ChannelCapacity,
			Message: "must be positive",
		})
	}
	if l.DevicePattern == "" {
		errs = append(errs, &ValidationError{
			Field:   "listener.device_pattern",
			Value:   l.DevicePattern,
			Message: "must not be empty",
		})
	}
	return errs
}

func validateStats(s *StatsConfig) ValidationErrors {
	var errs ValidationErrors

	if s.WPMWindowSec <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "stats.wpm_window_sec",
			Value:   s.WPMWindowSec,
			Message: "must be positive",
		})
	}
	if s.CharsPerWord <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "stats.chars_per_word",
			Value:   s.CharsPerWord,
			Message: "must be positive",
		})
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.StatePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "storage.state_path",
			Value:   s.StatePath,
			Message: "must not be empty",
		})
	}
	if s.HistoryDBPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "storage.history_db_path",
			Value:   s.HistoryDBPath,
			Message: "must not be empty",
		})
	}
	if s.CheckpointIntervalSec <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "storage.checkpoint_interval_sec",
			Value:   s.CheckpointIntervalSec,
			Message: "must be positive",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Value:   l.Level,
			Message: "must be debug, info, warn, or error",
		})
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Value:   l.Format,
			Message: "must be text or json",
		})
	}
	switch l.Output {
	case "", "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.output",
			Value:   l.Output,
			Message: "must be stdout, stderr, file, or both",
		})
	}
	if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "logging.file_path",
			Value:   l.FilePath,
			Message: "required when output includes file",
		})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return nil
	}
	if i.SocketPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "ipc.socket_path",
			Value:   i.SocketPath,
			Message: "required when ipc is enabled",
		})
	}
	if i.MaxConnections <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "ipc.max_connections",
			Value:   i.MaxConnections,
			Message: "must be positive",
		})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Enabled && m.ListenAddr == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.listen_addr",
			Value:   m.ListenAddr,
			Message: "required when metrics is enabled",
		})
	}
	return errs
}
