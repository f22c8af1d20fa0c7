package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("Version = %d, want %d", cfg.Version, Version)
	}
	if cfg.Listener.ChannelCapacity != 1024 {
		t.Errorf("ChannelCapacity = %d, want 1024", cfg.Listener.ChannelCapacity)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
version = 1

[listener]
channel_capacity = 512
device_pattern = "/dev/input/event*"
required = false

[stats]
wpm_window_sec = 30
chars_per_word = 4.5

[storage]
state_path = "/tmp/fm/state.json"
history_db_path = "/tmp/fm/history.db"
checkpoint_interval_sec = 120
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listener.ChannelCapacity != 512 {
		t.Errorf("ChannelCapacity = %d, want 512", cfg.Listener.ChannelCapacity)
	}
	if cfg.Stats.WPMWindowSec != 30 {
		t.Errorf("WPMWindowSec = %d, want 30", cfg.Stats.WPMWindowSec)
	}
	if cfg.Stats.CharsPerWord != 4.5 {
		t.Errorf("CharsPerWord = %v, want 4.5", cfg.Stats.CharsPerWord)
	}
	if cfg.Storage.CheckpointIntervalSec != 120 {
		t.Errorf("CheckpointIntervalSec = %d, want 120", cfg.Storage.CheckpointIntervalSec)
	}
	// Sections absent from the file keep defaults.
	if !cfg.IPC.Enabled {
		t.Error("IPC.Enabled lost its default")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
version: 1
stats:
  wpm_window_sec: 45
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stats.WPMWindowSec != 45 {
		t.Errorf("WPMWindowSec = %d, want 45", cfg.Stats.WPMWindowSec)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"version": 1, "listener": {"channel_capacity": 256}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listener.ChannelCapacity != 256 {
		t.Errorf("ChannelCapacity = %d, want 256", cfg.Listener.ChannelCapacity)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listener.ChannelCapacity != DefaultConfig().Listener.ChannelCapacity {
		t.Error("missing file did not yield defaults")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listener.ChannelCapacity = 0
	cfg.Stats.CharsPerWord = -1
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[listener]
channel_capacity = -1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FINGERMON_STATE_PATH", "/custom/state.json")
	t.Setenv("FINGERMON_LOG_LEVEL", "debug")
	t.Setenv("FINGERMON_CHANNEL_CAPACITY", "2048")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Storage.StatePath != "/custom/state.json" {
		t.Errorf("StatePath = %q", cfg.Storage.StatePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if cfg.Listener.ChannelCapacity != 2048 {
		t.Errorf("ChannelCapacity = %d", cfg.Listener.ChannelCapacity)
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("FINGERMON_DATA_DIR", "/custom/data")
	if got := DataDir(); got != "/custom/data" {
		t.Errorf("DataDir = %q, want /custom/data", got)
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Stats.WPMWindowSec = 90
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Stats.WPMWindowSec != 90 {
		t.Errorf("WPMWindowSec = %d, want 90", loaded.Stats.WPMWindowSec)
	}
}

func TestLoadOrCreateWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if !created {
		t.Error("expected file creation on first call")
	}
	if cfg == nil {
		t.Fatal("nil config")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate second call: %v", err)
	}
	if created {
		t.Error("second call should load, not create")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[stats]\nwpm_window_sec = 60\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer loader.Close()

	if err := os.WriteFile(path, []byte("[stats]\nwpm_window_sec = 75\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Stats.WPMWindowSec != 75 {
			t.Errorf("reloaded WPMWindowSec = %d, want 75", cfg.Stats.WPMWindowSec)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after config edit")
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listener.IgnoreDevices = []string{"event7"}

	clone := cfg.Clone()
	clone.Listener.IgnoreDevices[0] = "event9"
	clone.Stats.WPMWindowSec = 1

	if cfg.Listener.IgnoreDevices[0] != "event7" {
		t.Error("clone shares IgnoreDevices backing array")
	}
	if cfg.Stats.WPMWindowSec == 1 {
		t.Error("clone shares scalar fields")
	}
}
