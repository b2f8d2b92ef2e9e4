package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the agent configuration read from config.yaml in the config
// directory, with VOIDSTORE_* environment overrides.
type Config struct {
	XBPS struct {
		Query            string `mapstructure:"query"`
		Install          string `mapstructure:"install"`
		Remove           string `mapstructure:"remove"`
		Pkgdb            string `mapstructure:"pkgdb"`
		Reconfigure      string `mapstructure:"reconfigure"`
		Alternatives     string `mapstructure:"alternatives"`
		PackageCache     string `mapstructure:"package_cache"`
		CacheKeep        int    `mapstructure:"cache_keep"`
		RepositoryConfig string `mapstructure:"repository_config"`
	} `mapstructure:"xbps"`
	Privilege struct {
		Wrapper string `mapstructure:"wrapper"`
	} `mapstructure:"privilege"`
	Dispatch struct {
		MaxWorkers int `mapstructure:"max_workers"`
	} `mapstructure:"dispatch"`
	History struct {
		Max int `mapstructure:"max"`
	} `mapstructure:"history"`
	Cache struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"cache"`
	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`
	Log struct {
		Level string `mapstructure:"level"`
		Path  string `mapstructure:"path"`
	} `mapstructure:"log"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Spotlight struct {
		RefreshHours int `mapstructure:"refresh_hours"`
	} `mapstructure:"spotlight"`

	// ConfigDir is where config.yaml and settings.json live. It is not read
	// from the file.
	ConfigDir string `mapstructure:"-"`
}

// Load reads config.yaml from configDir, or from Dir() when configDir is
// empty. A missing file is not an error.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		configDir = dir
	}
	cacheDir, err := CacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	dataDir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// VOIDSTORE_DB_PATH overrides db.path, and so on.
	v.SetEnvPrefix("VOIDSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("xbps.query", "xbps-query")
	v.SetDefault("xbps.install", "xbps-install")
	v.SetDefault("xbps.remove", "xbps-remove")
	v.SetDefault("xbps.pkgdb", "xbps-pkgdb")
	v.SetDefault("xbps.reconfigure", "xbps-reconfigure")
	v.SetDefault("xbps.alternatives", "xbps-alternatives")
	v.SetDefault("xbps.package_cache", "/var/cache/xbps")
	v.SetDefault("xbps.cache_keep", 2)
	v.SetDefault("xbps.repository_config", "/etc/xbps.d/00-repository-main.conf")
	v.SetDefault("privilege.wrapper", "pkexec")
	v.SetDefault("dispatch.max_workers", 0)
	v.SetDefault("history.max", 50)
	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("db.path", filepath.Join(dataDir, "operations.db"))
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.path", "")
	v.SetDefault("server.addr", "127.0.0.1:7878")
	v.SetDefault("spotlight.refresh_hours", 24)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigDir = configDir
	return &cfg, nil
}

// SettingsPath returns the settings file path for this configuration.
func (c *Config) SettingsPath() string {
	return SettingsPath(c.ConfigDir)
}
