// Package config handles configuration loading, validation, and hot
// reloading for fingermon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Listener configures input event capture.
	Listener ListenerConfig `toml:"listener" json:"listener" yaml:"listener"`

	// Stats configures the statistics model.
	Stats StatsConfig `toml:"stats" json:"stats" yaml:"stats"`

	// Storage configures state and history persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configures structured logging.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configures the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Metrics configures the optional metrics endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Power configures system power event handling.
	Power PowerConfig `toml:"power" json:"power" yaml:"power"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// ListenerConfig holds input capture configuration.
type ListenerConfig struct {
	// ChannelCapacity is the event channel buffer size. Events arriving
	// while the buffer is full are dropped, never blocked on.
	ChannelCapacity int `toml:"channel_capacity" json:"channel_capacity" yaml:"channel_capacity"`

	// DevicePattern is the glob used to discover input devices.
	DevicePattern string `toml:"device_pattern" json:"device_pattern" yaml:"device_pattern"`

	// IgnoreDevices are device node names to skip (e.g. "event7").
	IgnoreDevices []string `toml:"ignore_devices" json:"ignore_devices" yaml:"ignore_devices"`

	// Required makes the daemon exit when no device can be opened. When
	// false the daemon runs degraded, serving only loaded history.
	Required bool `toml:"required" json:"required" yaml:"required"`
}

// StatsConfig holds statistics model configuration.
type StatsConfig struct {
	// WPMWindowSec is the sliding window for typing speed, in seconds.
	WPMWindowSec int `toml:"wpm_window_sec" json:"wpm_window_sec" yaml:"wpm_window_sec"`

	// CharsPerWord is the keystrokes-per-word divisor for WPM.
	CharsPerWord float64 `toml:"chars_per_word" json:"chars_per_word" yaml:"chars_per_word"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// StatePath is the JSON checkpoint file.
	StatePath string `toml:"state_path" json:"state_path" yaml:"state_path"`

	// HistoryDBPath is the SQLite daily history database.
	HistoryDBPath string `toml:"history_db_path" json:"history_db_path" yaml:"history_db_path"`

	// CheckpointIntervalSec is the periodic checkpoint interval.
	CheckpointIntervalSec int `toml:"checkpoint_interval_sec" json:"checkpoint_interval_sec" yaml:"checkpoint_interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the log size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is how many rotated logs to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled turns the control socket on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the Unix socket path.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxConnections caps concurrent clients.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-connection idle timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	// Enabled turns the HTTP metrics listener on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the HTTP listen address, e.g. "127.0.0.1:9187".
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// PowerConfig holds power event handling configuration.
type PowerConfig struct {
	// SleepCheckpoint forces a checkpoint when the system prepares to
	// sleep (Linux logind only).
	SleepCheckpoint bool `toml:"sleep_checkpoint" json:"sleep_checkpoint" yaml:"sleep_checkpoint"`
}

// DefaultConfig returns a configuration with platform defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Listener: ListenerConfig{
			ChannelCapacity: 1024,
			DevicePattern:   "/dev/input/event*",
			IgnoreDevices:   []string{},
			Required:        true,
		},
		Stats: StatsConfig{
			WPMWindowSec: 60,
			CharsPerWord: 5,
		},
		Storage: StorageConfig{
			StatePath:             filepath.Join(dir, "stats.json"),
			HistoryDBPath:         filepath.Join(dir, "history.db"),
			CheckpointIntervalSec: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "fingermond.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			MaxConnections: 10,
			TimeoutSec:     30,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9187",
		},
		Power: PowerConfig{
			SleepCheckpoint: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base fingermon directory, honoring the
// FINGERMON_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("FINGERMON_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies FINGERMON_* environment variables on top of
// the file configuration.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("FINGERMON_STATE_PATH"); v != "" {
		c.Storage.StatePath = v
	}
	if v := os.Getenv("FINGERMON_HISTORY_DB"); v != "" {
		c.Storage.HistoryDBPath = v
	}
	if v := os.Getenv("FINGERMON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FINGERMON_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("FINGERMON_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("FINGERMON_CHANNEL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Listener.ChannelCapacity = n
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates every directory the daemon writes under.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.StatePath),
		filepath.Dir(c.Storage.HistoryDBPath),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := Config{
		Version:  c.Version,
		Listener: c.Listener,
		Stats:    c.Stats,
		Storage:  c.Storage,
		Logging:  c.Logging,
		IPC:      c.IPC,
		Metrics:  c.Metrics,
		Power:    c.Power,
	}
	clone.Listener.IgnoreDevices = append([]string{}, c.Listener.IgnoreDevices...)
	return &clone
}

// SaveConfig writes cfg to path as TOML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func defaultSocketPath() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "fingermon", "fingermond.sock")
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "fingermond.sock")
		}
		return "/tmp/fingermond.sock"
	default:
		return "/tmp/fingermond.sock"
	}
}
