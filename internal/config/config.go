// ABOUTME: Configuration loading and parsing for trendingmints-bot
// ABOUTME: YAML files with environment variable expansion, defaults, and validation

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the complete bot configuration.
type Config struct {
	Matrix     MatrixConfig     `yaml:"matrix"`
	Airstack   AirstackConfig   `yaml:"airstack"`
	Redis      RedisConfig      `yaml:"redis"`
	Store      StoreConfig      `yaml:"store"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	Schedules  []ScheduleConfig `yaml:"schedules"`
	Logging    LoggingConfig    `yaml:"logging"`
	Debug      bool             `yaml:"debug"`
}

// MatrixConfig holds the Matrix homeserver connection settings.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	RecoveryKey string `yaml:"recovery_key"`
	DataDir     string `yaml:"data_dir"`
}

// AirstackConfig holds the upstream data-provider settings.
type AirstackConfig struct {
	// Endpoint overrides the production API URL; empty selects the default.
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// RedisConfig holds the cache-store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// StoreConfig selects the subscriber store backend.
type StoreConfig struct {
	// Backend is "redis" (default) or "sqlite".
	Backend string `yaml:"backend"`

	// SQLitePath is the database path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// HistoryLimit caps the per-recipient sent-mint set. Zero selects the
	// built-in default.
	HistoryLimit int `yaml:"history_limit"`
}

// DeliveryConfig tunes scheduled sends.
type DeliveryConfig struct {
	FrameBaseURL   string `yaml:"frame_base_url"`
	Criteria       string `yaml:"criteria"`
	BatchSize      int    `yaml:"batch_size"`
	FirstBatchSize int    `yaml:"first_batch_size"`
	SampleSize     int    `yaml:"sample_size"`
}

// OnboardingConfig tunes the onboarding flow.
type OnboardingConfig struct {
	StopWords []string `yaml:"stop_words"`
}

// ScheduleConfig binds one cron expression to a trending timeframe.
// Expressions may carry a CRON_TZ= prefix for timezone-pinned schedules.
type ScheduleConfig struct {
	Cron      string `yaml:"cron"`
	TimeFrame string `yaml:"time_frame"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultSchedules reproduce the original deployment: hourly and two-hourly
// right-away passes plus the daily digest at 18:00 Rome time.
func DefaultSchedules() []ScheduleConfig {
	return []ScheduleConfig{
		{Cron: "0 * * * *", TimeFrame: "one_hour"},
		{Cron: "0 */2 * * *", TimeFrame: "two_hours"},
		{Cron: "CRON_TZ=Europe/Rome 0 18 * * *", TimeFrame: "one_day"},
	}
}

// Load reads a configuration file, expands ${VAR_NAME} environment
// references, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "redis"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Delivery.Criteria == "" {
		c.Delivery.Criteria = "unique_wallets"
	}
	if c.Delivery.BatchSize == 0 {
		c.Delivery.BatchSize = 2
	}
	if c.Delivery.FirstBatchSize == 0 {
		c.Delivery.FirstBatchSize = 2
	}
	if c.Delivery.SampleSize == 0 {
		c.Delivery.SampleSize = 2
	}
	if len(c.Schedules) == 0 {
		c.Schedules = DefaultSchedules()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validTimeFrames the schedule config may reference.
var validTimeFrames = map[string]bool{
	"one_hour":  true,
	"two_hours": true,
	"one_day":   true,
}

// Validate checks that required fields are present and cross-field
// constraints hold.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	if c.Airstack.APIKey == "" {
		return fmt.Errorf("airstack.api_key is required")
	}

	switch c.Store.Backend {
	case "redis":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend must be redis or sqlite, got %q", c.Store.Backend)
	}

	for i, sched := range c.Schedules {
		if sched.Cron == "" {
			return fmt.Errorf("schedules[%d].cron is required", i)
		}
		if !validTimeFrames[sched.TimeFrame] {
			return fmt.Errorf("schedules[%d].time_frame must be one of one_hour, two_hours, one_day, got %q", i, sched.TimeFrame)
		}
	}
	return nil
}
