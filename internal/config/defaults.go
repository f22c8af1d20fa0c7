package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/fingermon/
//   - Linux:   $XDG_DATA_HOME/fingermon/ or ~/.local/share/fingermon/
//   - Windows: %LOCALAPPDATA%\fingermon\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "fingermon")
	case "linux":
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "fingermon")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "fingermon")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "fingermon")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".fingermon")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   same as the data directory
//   - Linux:   $XDG_CONFIG_HOME/fingermon/ or ~/.config/fingermon/
//   - Windows: same as the data directory
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, "fingermon")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "fingermon")
	default:
		return PlatformDataDir()
	}
}

// SupportedConfigFormats lists the accepted config file extensions.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile searches standard locations for an existing config file
// and returns the first match, or empty.
func FindConfigFile() string {
	candidates := []string{
		filepath.Join(DataDir(), "config.toml"),
		filepath.Join(PlatformConfigDir(), "config.toml"),
		filepath.Join(PlatformConfigDir(), "config.yaml"),
		filepath.Join(PlatformConfigDir(), "config.json"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
