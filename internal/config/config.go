// Package config loads tally configuration from file, environment, and
// defaults via viper.
//
// Resolution order: explicit --config path, then ./tally.yaml, then
// $HOME/.config/tally/config.yaml. Every key can be overridden through the
// environment with a TALLY_ prefix (e.g. TALLY_REMOTE_TOKEN).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// CachePath is the local cache database file.
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`

	Remote Remote `mapstructure:"remote" yaml:"remote"`
	Sync   Sync   `mapstructure:"sync" yaml:"sync"`
	Notify Notify `mapstructure:"notify" yaml:"notify"`
	Log    Log    `mapstructure:"log" yaml:"log"`
}

// Remote configures the versioned document store.
type Remote struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	Ref              string        `mapstructure:"ref" yaml:"ref"`
	Token            string        `mapstructure:"token" yaml:"token"`
	MinWriteInterval time.Duration `mapstructure:"min_write_interval" yaml:"min_write_interval"`
}

// Sync configures the sync manager's scheduling.
type Sync struct {
	// Enabled arms the sync machinery. Disabled, the app is purely local.
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// Notify configures the cross-process notification backend.
type Notify struct {
	// Backend is "none", "ws", or "spool".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Addr is the websocket hub address for the ws backend.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// SpoolDir is the shared directory for the spool backend.
	SpoolDir string `mapstructure:"spool_dir" yaml:"spool_dir"`
}

// Log configures the optional rotating log file.
type Log struct {
	// File is the log file path. Empty logs to stderr only.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CachePath: filepath.Join(dataDir(), "tally.db"),
		Remote: Remote{
			Ref:              "shops/main/data.json",
			MinWriteInterval: time.Second,
		},
		Sync: Sync{
			Enabled:    true,
			Debounce:   2 * time.Second,
			RetryDelay: 30 * time.Second,
		},
		Notify: Notify{
			Backend: "none",
			Addr:    "127.0.0.1:7337",
		},
		Log: Log{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from path (or the search locations when path is
// empty), layered over Default.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(configDir())
		if err := v.ReadInConfig(); err != nil {
			// Missing config is fine: defaults plus environment apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cache_path", d.CachePath)
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.ref", d.Remote.Ref)
	v.SetDefault("remote.token", d.Remote.Token)
	v.SetDefault("remote.min_write_interval", d.Remote.MinWriteInterval)
	v.SetDefault("sync.enabled", d.Sync.Enabled)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.retry_delay", d.Sync.RetryDelay)
	v.SetDefault("notify.backend", d.Notify.Backend)
	v.SetDefault("notify.addr", d.Notify.Addr)
	v.SetDefault("notify.spool_dir", d.Notify.SpoolDir)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
}

// configDir is where `tally init` writes its config.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tally")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "tally")
}
