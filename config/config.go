// Package config loads recurctl settings from an optional YAML file and
// RECUR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cyp0633/librecur/recurrence"
)

// FileName is the config file name searched for when no path is given.
const FileName = "recur.yaml"

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the effective configuration after defaults, file and environment
// have been merged.
type Config struct {
	Engine  EngineConfig
	Storage StorageConfig
	Sweep   SweepConfig
	Log     LogConfig
}

// EngineConfig selects a recurrence preset and optionally overrides its limits.
type EngineConfig struct {
	// Preset is one of default, high-performance, low-memory or no-cache.
	Preset string
	// MaxOccurrences overrides the preset when positive.
	MaxOccurrences int
	// MaxLookback overrides the preset when positive.
	MaxLookback time.Duration
}

type StorageConfig struct {
	Driver string
	DSN    string
}

// SweepConfig controls the missed-occurrence sweep. Daily, when set, wins
// over Interval.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Daily    string
	Location string
}

type LogConfig struct {
	Level string
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{Preset: "default"},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    "librecur.db",
		},
		Sweep: SweepConfig{
			Enabled:  false,
			Interval: time.Hour,
			Location: "UTC",
		},
		Log: LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.preset", cfg.Engine.Preset)
	v.SetDefault("engine.max_occurrences", cfg.Engine.MaxOccurrences)
	v.SetDefault("engine.max_lookback", cfg.Engine.MaxLookback)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("sweep.enabled", cfg.Sweep.Enabled)
	v.SetDefault("sweep.interval", cfg.Sweep.Interval)
	v.SetDefault("sweep.daily", cfg.Sweep.Daily)
	v.SetDefault("sweep.location", cfg.Sweep.Location)
	v.SetDefault("log.level", cfg.Log.Level)
}

// Load reads the configuration. An explicit path must exist; with an empty
// path recur.yaml is looked up in the working directory and then in the user
// config directory, and defaults are used when neither has one. Environment
// variables such as RECUR_STORAGE_DSN override both.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("RECUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "librecur"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.Engine.Preset = v.GetString("engine.preset")
	cfg.Engine.MaxOccurrences = v.GetInt("engine.max_occurrences")
	cfg.Engine.MaxLookback = v.GetDuration("engine.max_lookback")
	cfg.Storage.Driver = strings.ToLower(v.GetString("storage.driver"))
	cfg.Storage.DSN = v.GetString("storage.dsn")
	cfg.Sweep.Enabled = v.GetBool("sweep.enabled")
	cfg.Sweep.Interval = v.GetDuration("sweep.interval")
	cfg.Sweep.Daily = v.GetString("sweep.daily")
	cfg.Sweep.Location = v.GetString("sweep.location")
	cfg.Log.Level = v.GetString("log.level")

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, ok := recurrence.Preset(c.Engine.Preset); !ok {
		return fmt.Errorf("engine.preset: unknown preset %q", c.Engine.Preset)
	}
	if c.Engine.MaxOccurrences < 0 {
		return fmt.Errorf("engine.max_occurrences: must not be negative")
	}
	if c.Engine.MaxLookback < 0 {
		return fmt.Errorf("engine.max_lookback: must not be negative")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn: required for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.Sweep.Daily != "" {
		if _, err := time.Parse("15:04", c.Sweep.Daily); err != nil {
			return fmt.Errorf("sweep.daily: expected HH:MM, got %q", c.Sweep.Daily)
		}
	} else if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval: must be positive")
	}
	if _, err := c.Sweep.Zone(); err != nil {
		return fmt.Errorf("sweep.location: %w", err)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Build returns the recurrence configuration for the preset with overrides
// applied.
func (e EngineConfig) Build() (recurrence.EngineConfig, error) {
	out, ok := recurrence.Preset(e.Preset)
	if !ok {
		return recurrence.EngineConfig{}, fmt.Errorf("unknown engine preset %q", e.Preset)
	}
	if e.MaxOccurrences > 0 {
		out.MaxOccurrences = e.MaxOccurrences
	}
	if e.MaxLookback > 0 {
		out.MaxLookback = e.MaxLookback
	}
	return out, nil
}

// Zone loads the sweep location. Empty means UTC.
func (s SweepConfig) Zone() (*time.Location, error) {
	if s.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Location)
}

// SlogLevel parses Level as a slog level name such as "debug" or "warn".
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// file mirrors Config with durations spelled the way Load parses them.
type file struct {
	Engine struct {
		Preset         string `yaml:"preset"`
		MaxOccurrences int    `yaml:"max_occurrences,omitempty"`
		MaxLookback    string `yaml:"max_lookback,omitempty"`
	} `yaml:"engine"`
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn,omitempty"`
	} `yaml:"storage"`
	Sweep struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
		Daily    string `yaml:"daily,omitempty"`
		Location string `yaml:"location,omitempty"`
	} `yaml:"sweep"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// WriteYAML writes c in the format Load reads.
func (c *Config) WriteYAML(w io.Writer) error {
	var f file
	f.Engine.Preset = c.Engine.Preset
	f.Engine.MaxOccurrences = c.Engine.MaxOccurrences
	if c.Engine.MaxLookback > 0 {
		f.Engine.MaxLookback = c.Engine.MaxLookback.String()
	}
	f.Storage.Driver = c.Storage.Driver
	f.Storage.DSN = c.Storage.DSN
	f.Sweep.Enabled = c.Sweep.Enabled
	f.Sweep.Interval = c.Sweep.Interval.String()
	f.Sweep.Daily = c.Sweep.Daily
	f.Sweep.Location = c.Sweep.Location
	f.Log.Level = c.Log.Level

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
