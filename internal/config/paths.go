// Package config resolves voidstore's directories and loads the agent
// configuration and the user settings file.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "voidstore"

// resolveDir returns the override from envVar if set, else xdgVar/voidstore,
// else ~/<fallback>/voidstore.
func resolveDir(envVar, xdgVar string, fallback ...string) (string, error) {
	if custom := strings.TrimSpace(os.Getenv(envVar)); custom != "" {
		return custom, nil
	}
	if base := strings.TrimSpace(os.Getenv(xdgVar)); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// Dir returns the voidstore config directory. VOIDSTORE_CONFIG_DIR wins,
// then XDG_CONFIG_HOME, then ~/.config/voidstore.
func Dir() (string, error) {
	return resolveDir("VOIDSTORE_CONFIG_DIR", "XDG_CONFIG_HOME", ".config")
}

// CacheDir returns the directory holding the spotlight cache.
// VOIDSTORE_CACHE_DIR wins, then XDG_CACHE_HOME, then ~/.cache/voidstore.
func CacheDir() (string, error) {
	return resolveDir("VOIDSTORE_CACHE_DIR", "XDG_CACHE_HOME", ".cache")
}

// DataDir returns the directory holding the operation database.
// VOIDSTORE_DATA_DIR wins, then XDG_DATA_HOME, then ~/.local/share/voidstore.
func DataDir() (string, error) {
	return resolveDir("VOIDSTORE_DATA_DIR", "XDG_DATA_HOME", ".local", "share")
}
