// Package config loads daybook configuration.
//
// Settings come from daybook.yaml in the data directory (or an explicit
// file), with programmatic defaults for everything, so a fresh install
// works with no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the core consumes.
type Config struct {
	// DataDir is the root for the index database, document tree, and
	// logs.
	DataDir string `mapstructure:"data_dir"`

	// HorizonDays is the look-forward window for caching and
	// scheduling: -1 means unbounded.
	HorizonDays int `mapstructure:"horizon_days"`

	// ResyncInterval is how often managers rebuild caches and reminder
	// schedules from persisted state.
	ResyncInterval time.Duration `mapstructure:"resync_interval"`

	// CacheStaleness is how old the active cache partition may get
	// before listings recompute it.
	CacheStaleness time.Duration `mapstructure:"cache_staleness"`

	// SearchFanoutThreshold is the item count above which search fans
	// out to concurrent workers.
	SearchFanoutThreshold int `mapstructure:"search_fanout_threshold"`

	// SearchConcurrency bounds concurrent search workers.
	SearchConcurrency int `mapstructure:"search_concurrency"`

	// SearchUnitTimeout bounds the scan of a single document.
	SearchUnitTimeout time.Duration `mapstructure:"search_unit_timeout"`

	// WebhookURL, when set, delivers notifications as JSON POSTs.
	WebhookURL string `mapstructure:"webhook_url"`

	// BroadcastPort, when non-zero, serves fired reminders to
	// WebSocket clients on this port.
	BroadcastPort int `mapstructure:"broadcast_port"`

	// LogLevel is a logrus level name.
	LogLevel string `mapstructure:"log_level"`

	// LogFile, when set, appends rotating log output there instead of
	// stderr.
	LogFile string `mapstructure:"log_file"`
}

// DefaultDataDir returns ~/.daybook, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".daybook"
	}
	return filepath.Join(home, ".daybook")
}

// Load reads configuration. file may be empty, in which case
// daybook.yaml is looked up in the data directory; a missing config
// file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("horizon_days", -1)
	v.SetDefault("resync_interval", 5*time.Minute)
	v.SetDefault("cache_staleness", 60*time.Second)
	v.SetDefault("search_fanout_threshold", 20)
	v.SetDefault("search_concurrency", 4)
	v.SetDefault("search_unit_timeout", 2*time.Second)
	v.SetDefault("log_level", "info")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("daybook")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDataDir())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.HorizonDays < -1 {
		return nil, fmt.Errorf("horizon_days must be -1 (unbounded) or non-negative, got %d", cfg.HorizonDays)
	}

	return &cfg, nil
}

// IndexPath returns the location of the SQLite index database.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// DocsDir returns the root of the document tree.
func (c *Config) DocsDir() string {
	return filepath.Join(c.DataDir, "docs")
}
