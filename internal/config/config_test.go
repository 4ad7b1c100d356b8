package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if cfg.Storage.MaxOpenConns != 32 {
		t.Errorf("Storage.MaxOpenConns = %d, want 32", cfg.Storage.MaxOpenConns)
	}
	if cfg.Analysis.Baseline.LookbackDays != 30 {
		t.Errorf("Analysis.Baseline.LookbackDays = %d, want 30", cfg.Analysis.Baseline.LookbackDays)
	}
	if cfg.Analysis.Baseline.Interval != 24*time.Hour {
		t.Errorf("Analysis.Baseline.Interval = %v, want 24h", cfg.Analysis.Baseline.Interval)
	}
	if cfg.Notify.ThrottleWindow != 5*time.Minute {
		t.Errorf("Notify.ThrottleWindow = %v, want 5m", cfg.Notify.ThrottleWindow)
	}
	if cfg.Notify.Email.Enabled {
		t.Error("Notify.Email.Enabled = true, want false by default")
	}
	if cfg.Analysis.Summarizer.Enabled {
		t.Error("Analysis.Summarizer.Enabled = true, want false by default")
	}
	if cfg.Fanout.SubscriberBuffer != 64 {
		t.Errorf("Fanout.SubscriberBuffer = %d, want 64", cfg.Fanout.SubscriberBuffer)
	}
	if cfg.Scheduler.WorkerCount != 8 {
		t.Errorf("Scheduler.WorkerCount = %d, want 8", cfg.Scheduler.WorkerCount)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NABZ_SERVER_ADDR", "127.0.0.1:9090")
	t.Setenv("NABZ_LOG_LEVEL", "DEBUG")
	t.Setenv("NABZ_STORAGE_MAX_OPEN_CONNS", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:9090")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (normalized)", cfg.Log.Level, "debug")
	}
	if cfg.Storage.MaxOpenConns != 16 {
		t.Errorf("Storage.MaxOpenConns = %d, want 16", cfg.Storage.MaxOpenConns)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("NABZ_LOG_LEVEL", "verbose")

	if _, err := Load(); err == nil {
		t.Error("Load() with invalid log level should return error")
	}
}

// validCfg returns a configuration that passes validation, for mutation in
// the validate tests below.
func validCfg() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Driver:          "sqlite",
			DSN:             "nabz.db",
			MaxOpenConns:    32,
			MaxIdleConns:    8,
			ConnMaxLifetime: time.Hour,
		},
		Notify: NotifyConfig{
			WebhookTimeout: 15 * time.Second,
			ThrottleWindow: 5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			Baseline: BaselineConfig{
				Interval:     24 * time.Hour,
				LookbackDays: 30,
			},
			Workers:   4,
			QueueSize: 256,
		},
		Fanout:    FanoutConfig{SubscriberBuffer: 64},
		Scheduler: SchedulerConfig{WorkerCount: 8, MaxRetries: 3},
		Log:       LogConfig{Level: "info"},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty server addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: "server.addr",
		},
		{
			name:    "malformed server addr",
			mutate:  func(c *Config) { c.Server.Addr = "not-an-addr" },
			wantErr: "server.addr",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Addr = ":70000" },
			wantErr: "port",
		},
		{
			name:    "read timeout too large",
			mutate:  func(c *Config) { c.Server.ReadTimeout = 10 * time.Minute },
			wantErr: "read_timeout",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mysql" },
			wantErr: "storage.driver",
		},
		{
			name:    "empty dsn",
			mutate:  func(c *Config) { c.Storage.DSN = "" },
			wantErr: "storage.dsn",
		},
		{
			name:    "idle conns exceed open conns",
			mutate:  func(c *Config) { c.Storage.MaxIdleConns = 64 },
			wantErr: "max_idle_conns",
		},
		{
			name: "email enabled without host",
			mutate: func(c *Config) {
				c.Notify.Email.Enabled = true
				c.Notify.Email.Port = 587
				c.Notify.Email.From = "nabz@example.com"
				c.Notify.Email.Timeout = 30 * time.Second
			},
			wantErr: "notify.email.host",
		},
		{
			name:    "zero webhook timeout",
			mutate:  func(c *Config) { c.Notify.WebhookTimeout = 0 },
			wantErr: "webhook_timeout",
		},
		{
			name:    "baseline interval too small",
			mutate:  func(c *Config) { c.Analysis.Baseline.Interval = 30 * time.Second },
			wantErr: "baseline.interval",
		},
		{
			name:    "lookback too large",
			mutate:  func(c *Config) { c.Analysis.Baseline.LookbackDays = 400 },
			wantErr: "lookback_days",
		},
		{
			name: "summarizer enabled without api key",
			mutate: func(c *Config) {
				c.Analysis.Summarizer.Enabled = true
				c.Analysis.Summarizer.Endpoint = "https://api.openai.com/v1/chat/completions"
				c.Analysis.Summarizer.Timeout = 30 * time.Second
			},
			wantErr: "api_key",
		},
		{
			name: "summarizer with bad endpoint",
			mutate: func(c *Config) {
				c.Analysis.Summarizer.Enabled = true
				c.Analysis.Summarizer.Endpoint = "not a url"
				c.Analysis.Summarizer.APIKey = "sk-test"
				c.Analysis.Summarizer.Timeout = 30 * time.Second
			},
			wantErr: "endpoint",
		},
		{
			name:    "zero subscriber buffer",
			mutate:  func(c *Config) { c.Fanout.SubscriberBuffer = 0 },
			wantErr: "subscriber_buffer",
		},
		{
			name:    "zero scheduler workers",
			mutate:  func(c *Config) { c.Scheduler.WorkerCount = 0 },
			wantErr: "worker_count",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCfg()
			tt.mutate(&cfg)

			err := validateConfig(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateConfig() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validateConfig() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateConfig() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg := validCfg()
	cfg.Log.Level = "INFO"
	cfg.Storage.Driver = "  Postgres "
	cfg.Server.Addr = " :8080 "
	cfg.Notify.Email.Host = " smtp.example.com "

	normalizeConfig(&cfg)

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "postgres")
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Notify.Email.Host != "smtp.example.com" {
		t.Errorf("Notify.Email.Host = %q, want %q", cfg.Notify.Email.Host, "smtp.example.com")
	}
}
