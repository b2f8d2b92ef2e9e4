package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SettingsVersion is the current settings file format.
const SettingsVersion = 1

// SettingsFile is the settings file name inside the config directory.
const SettingsFile = "settings.json"

// StartPage selects the page shown at startup.
type StartPage string

const (
	StartDiscover    StartPage = "discover"
	StartLastVisited StartPage = "last_visited"
)

// CheckFrequency is how often updates are checked automatically.
type CheckFrequency string

const (
	CheckDaily  CheckFrequency = "daily"
	CheckWeekly CheckFrequency = "weekly"
)

// Interval returns the time between automatic checks.
func (f CheckFrequency) Interval() time.Duration {
	if f == CheckWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// Theme is the preferred color scheme.
type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// Settings are the user preferences. The agent only acts on the
// auto-check and confirmation fields; the rest is kept for front ends.
type Settings struct {
	Version            int            `json:"version"`
	WindowWidth        *int           `json:"window_width,omitempty"`
	WindowHeight       *int           `json:"window_height,omitempty"`
	StartPage          StartPage      `json:"start_page"`
	LastPage           string         `json:"last_page,omitempty"`
	AutoCheckEnabled   bool           `json:"auto_check_enabled"`
	AutoCheckFrequency CheckFrequency `json:"auto_check_frequency"`
	ConfirmInstall     bool           `json:"confirm_install"`
	ConfirmRemove      bool           `json:"confirm_remove"`
	ThemePreference    Theme          `json:"theme_preference"`
	NotifyUpdates      bool           `json:"notify_updates"`
	MirrorSelection    []string       `json:"mirror_selection"`
}

// DefaultSettings returns the settings used when no valid file exists.
func DefaultSettings() Settings {
	return Settings{
		Version:            SettingsVersion,
		StartPage:          StartDiscover,
		LastPage:           "discover",
		AutoCheckEnabled:   true,
		AutoCheckFrequency: CheckDaily,
		ConfirmInstall:     true,
		ConfirmRemove:      true,
		ThemePreference:    ThemeSystem,
		NotifyUpdates:      true,
		MirrorSelection:    []string{},
	}
}

// normalize replaces unknown enum values with their defaults.
func (s *Settings) normalize() {
	switch s.StartPage {
	case StartDiscover, StartLastVisited:
	default:
		s.StartPage = StartDiscover
	}
	switch s.AutoCheckFrequency {
	case CheckDaily, CheckWeekly:
	default:
		s.AutoCheckFrequency = CheckDaily
	}
	switch s.ThemePreference {
	case ThemeSystem, ThemeLight, ThemeDark:
	default:
		s.ThemePreference = ThemeSystem
	}
	if s.MirrorSelection == nil {
		s.MirrorSelection = []string{}
	}
	s.Version = SettingsVersion
}

// SettingsPath returns the settings file path inside dir.
func SettingsPath(dir string) string {
	return filepath.Join(dir, SettingsFile)
}

// LoadSettings reads the settings at path. A missing, unreadable or
// malformed file, or one with an unknown version, yields the defaults.
// Fields absent from the file keep their default values. A file without a
// version is read as the current version.
func LoadSettings(path string) Settings {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings()
	}

	s := DefaultSettings()
	s.Version = 0
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings()
	}
	if s.Version != 0 && s.Version != SettingsVersion {
		return DefaultSettings()
	}
	s.normalize()
	return s
}

// SaveSettings writes s to path as indented JSON.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	s.normalize()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
