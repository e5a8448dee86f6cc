package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"flatfs/internal/artifacts"
	"flatfs/internal/store"
)

// getConfigDir returns the config directory path.
// Uses FLATFS_CONFIG_DIR env var if set, otherwise defaults to ~/.flatfs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("FLATFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".flatfs")
}

// daemonName returns the fixed daemon name "daemon".
// Test isolation is achieved via FLATFS_CONFIG_DIR instead of multiple daemon names.
func daemonName() string {
	return "daemon"
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SocketPath returns the Unix socket path
func SocketPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".sock")
}

// PidPath returns the PID file path
func PidPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".pid")
}

// LogPath returns the log file path.
// Uses FLATFS_LOG_FILE env var if set, otherwise defaults to config_dir/daemon_name.log.
func LogPath() string {
	if envPath := os.Getenv("FLATFS_LOG_FILE"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), daemonName()+".log")
}

// LockPath returns the lock file path
func LockPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".lock")
}

// GlobalSettingsPath returns the global settings file path
// This file is shared across all daemon instances
func GlobalSettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yml")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir initializes the config directory with default files
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create default global settings file if not exists (using template)
	settingsPath := GlobalSettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}

	return nil
}

// GlobalSettings represents global daemon settings
type GlobalSettings struct {
	// LogLevel is the daemon log level: trace, debug, info, warn, off
	LogLevel string `yaml:"log_level"`

	// Limits are the capacity limits applied to every new mount's table.
	// Zero fields fall back to the store defaults.
	Limits store.Limits `yaml:"limits"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *GlobalSettings) ApplyDefaults() {
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	s.Limits.ApplyDefaults()
}

// TableLimits returns the limits for a new table with defaults applied.
func (s *GlobalSettings) TableLimits() store.Limits {
	l := s.Limits
	l.ApplyDefaults()
	return l
}

// loadDefaultGlobalSettings parses default settings from the embedded artifact.
func loadDefaultGlobalSettings() GlobalSettings {
	var settings GlobalSettings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded global settings: " + err.Error())
	}
	settings.ApplyDefaults()
	return settings
}

// LoadGlobalSettings loads the global settings from ~/.flatfs/settings.yml.
// Always reads from file to get latest config. Falls back to embedded defaults if file doesn't exist.
func LoadGlobalSettings() (*GlobalSettings, error) {
	data, err := os.ReadFile(GlobalSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults from embedded artifact
			settings := loadDefaultGlobalSettings()
			return &settings, nil
		}
		return nil, err
	}

	var settings GlobalSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	settings.ApplyDefaults()

	return &settings, nil
}

// SaveGlobalSettings saves the global settings to ~/.flatfs/settings.yml
func SaveGlobalSettings(settings *GlobalSettings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	// Add header comment (same as template header)
	header := []byte("# FlatFS daemon settings\n# See: flatfs daemon config --help\n\n")
	return os.WriteFile(GlobalSettingsPath(), append(header, data...), 0600)
}
