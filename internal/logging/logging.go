// Package logging provides structured slog-based logging for fingermon.
//
// Output goes to stderr, a rotating file, or both. The daemon installs a
// configured logger as the process default at startup; everything else in
// the tree logs through the package-level helpers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Level aliases slog.Level so callers don't import both packages.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the log output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum level to emit.
	Level Level

	// Format is text or JSON.
	Format Format

	// Output is "stdout", "stderr", "file", or "both".
	Output string

	// FilePath is the log file path when Output includes "file".
	FilePath string

	// MaxSize is the file size in megabytes that triggers rotation.
	MaxSize int64

	// MaxBackups is how many rotated files to keep.
	MaxBackups int

	// Component tags every record with the emitting component.
	Component string
}

// DefaultConfig returns the stock logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    50,
		MaxBackups: 3,
		Component:  "fingermond",
	}
}

// defaultLogPath returns the platform default log file location.
func defaultLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "fingermon", "fingermond.log")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "fingermon", "logs", "fingermond.log")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			home, _ := os.UserHomeDir()
			stateHome = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(stateHome, "fingermon", "fingermond.log")
	}
}

// Logger wraps slog.Logger and owns the file rotator, if any.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// Default returns the process-wide logger, creating a stderr logger on
// first use if none was installed.
func Default() *Logger {
	loggerOnce.Do(func() {
		if defaultLogger != nil {
			return
		}
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default(), config: DefaultConfig()}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// SetDefault installs l as the process-wide logger.
func SetDefault(l *Logger) {
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// New creates a Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{config: cfg}

	var writers []io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		writers = append(writers, os.Stdout)
	case "file":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, fmt.Errorf("setup log file: %w", err)
		}
		l.rotator = r
		writers = append(writers, r)
	case "both":
		writers = append(writers, os.Stderr)
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, fmt.Errorf("setup log file: %w", err)
		}
		l.rotator = r
		writers = append(writers, r)
	default:
		writers = append(writers, os.Stderr)
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// WithComponent returns a logger tagged with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		config:  l.config,
		rotator: l.rotator,
	}
}

// Close closes the log file, if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// ParseLevel parses a level name from configuration.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// ParseFormat parses a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Convenience functions for the default logger.

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
