package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete configuration schema for the Nabz monitoring backend.
//
// Configuration sources (in order of precedence):
//  1. Defaults
//  2. Configuration file (optional)
//  3. Environment variables
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Analysis  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	Fanout    FanoutConfig    `mapstructure:"fanout" yaml:"fanout"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type StorageConfig struct {
	// Driver selects the database backend: "sqlite" or "postgres".
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type NotifyConfig struct {
	Email EmailConfig `mapstructure:"email" yaml:"email"`

	// WebhookTimeout bounds outbound webhook deliveries.
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout" yaml:"webhook_timeout"`

	// ThrottleWindow suppresses duplicate notifications for the same
	// incident transition inside this window.
	ThrottleWindow time.Duration `mapstructure:"throttle_window" yaml:"throttle_window"`
}

type EmailConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	From     string        `mapstructure:"from" yaml:"from"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type AnalysisConfig struct {
	Baseline   BaselineConfig   `mapstructure:"baseline" yaml:"baseline"`
	Summarizer SummarizerConfig `mapstructure:"summarizer" yaml:"summarizer"`

	// Workers is the size of the background analysis worker pool used for
	// incident correlation and summarization.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// QueueSize bounds the analysis task queue; enqueues beyond it are dropped.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

type BaselineConfig struct {
	// Interval is how often the baseline calculation job runs.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// LookbackDays is the trailing window of samples used per baseline run.
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`
}

type SummarizerConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Model    string        `mapstructure:"model" yaml:"model"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type FanoutConfig struct {
	// SubscriberBuffer is the per-subscriber channel capacity. A subscriber
	// that falls behind by more than this many events starts losing events.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
}

type SchedulerConfig struct {
	WorkerCount int `mapstructure:"worker_count" yaml:"worker_count"`
	MaxRetries  int `mapstructure:"max_retries" yaml:"max_retries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error, fatal, panic
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"` // human-readable console output
}

// Load loads configuration from defaults, configuration file,
// and environment variables, then validates the result.
//
// The function fails fast on:
//   - Invalid configuration file
//   - Invalid or missing required configuration values
func Load() (*Config, error) {
	v := viper.New()

	// Register default values
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("NABZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	// Optional configuration file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Cross-platform config directory
	if configDir := getConfigDir(); configDir != "" {
		v.AddConfigPath(configDir)
	}

	// Read configuration file if present
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	// Explicitly bind environment variables for nested secrets that have
	// mapping issues. Only bind when the variable is actually set so that
	// file config still takes precedence otherwise.
	if _, exists := os.LookupEnv("NABZ_NOTIFY_EMAIL_PASSWORD"); exists {
		v.BindEnv("notify.email.password", "NABZ_NOTIFY_EMAIL_PASSWORD")
	}
	if _, exists := os.LookupEnv("NABZ_ANALYSIS_SUMMARIZER_API_KEY"); exists {
		v.BindEnv("analysis.summarizer.api_key", "NABZ_ANALYSIS_SUMMARIZER_API_KEY")
	}

	// Unmarshal configuration into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Normalize configuration
	normalizeConfig(&cfg)

	// Validate final configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getConfigDir returns the appropriate config directory for the current OS
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "nabz")
		}
		return ""
	}

	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".nabz")
	}
	return ""
}
