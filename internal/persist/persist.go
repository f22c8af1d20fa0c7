// Package persist stores the statistics state as a JSON checkpoint file.
//
// Writes are atomic: the state is written to a temporary file, fsynced,
// and renamed over the previous checkpoint, so a crash at any point
// leaves either the old complete state or the new complete state on
// disk. Loads are tolerant: a missing, corrupt, or incompatible file
// yields a fresh state rather than an error, because losing history is
// preferable to a daemon that cannot start.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fingermon/internal/logging"
	"fingermon/internal/stats"
)

// SchemaVersion is the checkpoint format version. Loading rejects any
// other version.
const SchemaVersion = 1

var (
	// ErrVersionMismatch means the file was written by an incompatible
	// version.
	ErrVersionMismatch = errors.New("state schema version mismatch")

	// ErrCorruptState means the file is not valid checkpoint JSON.
	ErrCorruptState = errors.New("corrupt state file")
)

// State is the on-disk checkpoint document.
type State struct {
	SchemaVersion int            `json:"schema_version"`
	SavedAt       time.Time      `json:"saved_at"`
	Stats         stats.Snapshot `json:"stats"`
}

// NewState wraps a snapshot for writing.
func NewState(snap stats.Snapshot) *State {
	return &State{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now(),
		Stats:         snap,
	}
}

// Save atomically writes st to path.
func Save(path string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp state: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit state: %w", err)
	}

	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}

	return nil
}

// Load reads and validates the checkpoint at path. It returns
// ErrCorruptState for unparseable or schema-invalid files and
// ErrVersionMismatch for incompatible versions; callers wanting the
// tolerant behavior use LoadOrInit.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateState(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if st.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: file has version %d, daemon supports %d",
			ErrVersionMismatch, st.SchemaVersion, SchemaVersion)
	}

	return &st, nil
}

// LoadOrInit loads the checkpoint at path, falling back to a nil state
// (meaning: start fresh) when the file is missing or unusable. An
// unusable file is preserved under a .corrupt suffix for inspection.
func LoadOrInit(path string) *State {
	st, err := Load(path)
	if err == nil {
		return st
	}

	switch {
	case os.IsNotExist(err):
		logging.Info("no previous state, starting fresh", "path", path)
	case errors.Is(err, ErrVersionMismatch):
		logging.Warn("state file version not supported, starting fresh",
			"path", path, "error", err)
		quarantine(path)
	case errors.Is(err, ErrCorruptState):
		logging.Warn("state file unreadable, starting fresh",
			"path", path, "error", err)
		quarantine(path)
	default:
		logging.Warn("cannot read state file, starting fresh",
			"path", path, "error", err)
	}
	return nil
}

// quarantine moves a bad state file aside so the next checkpoint does
// not destroy the evidence.
func quarantine(path string) {
	if err := os.Rename(path, path+".corrupt"); err != nil && !os.IsNotExist(err) {
		logging.Warn("cannot quarantine bad state file", "path", path, "error", err)
	}
}
