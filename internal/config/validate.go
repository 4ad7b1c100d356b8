package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"time"
)

// Package-level constants for performance optimization
var (
	validLogLevels      = []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validStorageDrivers = []string{"sqlite", "postgres"}
)

// validateConfig validates the configuration and returns an error if invalid.
func validateConfig(c *Config) error {
	for _, validate := range []func() error{
		func() error { return validateServerConfig(c.Server) },
		func() error { return validateStorageConfig(c.Storage) },
		func() error { return validateNotifyConfig(c.Notify) },
		func() error { return validateAnalysisConfig(c.Analysis) },
		func() error { return validateFanoutConfig(c.Fanout) },
		func() error { return validateSchedulerConfig(c.Scheduler) },
		func() error { return validateLogConfig(c.Log) },
	} {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateServerConfig validates server configuration.
func validateServerConfig(s ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	// Validate address format
	_, portStr, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return fmt.Errorf("server.addr invalid format: %w", err)
	}

	// Validate port range
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("server.addr invalid port: %w", err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("server.addr port out of range (1-65535)")
		}
	}

	// Validate timeouts
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be greater than 0")
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be greater than 0")
	}
	if s.IdleTimeout <= 0 {
		return fmt.Errorf("server.idle_timeout must be greater than 0")
	}

	// Validate timeout ranges (reasonable limits)
	if s.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("server.read_timeout too large (max 5m)")
	}
	if s.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("server.write_timeout too large (max 5m)")
	}
	if s.IdleTimeout > 30*time.Minute {
		return fmt.Errorf("server.idle_timeout too large (max 30m)")
	}

	return nil
}

// validateStorageConfig validates storage configuration.
func validateStorageConfig(s StorageConfig) error {
	if !slices.Contains(validStorageDrivers, s.Driver) {
		return fmt.Errorf("storage.driver must be one of %v, got %q", validStorageDrivers, s.Driver)
	}
	if s.DSN == "" {
		return fmt.Errorf("storage.dsn cannot be empty")
	}

	// Validate connection pool settings
	if s.MaxOpenConns <= 0 {
		return fmt.Errorf("storage.max_open_conns must be greater than 0")
	}
	if s.MaxIdleConns < 0 {
		return fmt.Errorf("storage.max_idle_conns cannot be negative")
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		return fmt.Errorf("storage.max_idle_conns cannot exceed storage.max_open_conns")
	}
	if s.ConnMaxLifetime <= 0 {
		return fmt.Errorf("storage.conn_max_lifetime must be greater than 0")
	}

	return nil
}

// validateNotifyConfig validates notification configuration.
func validateNotifyConfig(n NotifyConfig) error {
	if n.Email.Enabled {
		if n.Email.Host == "" {
			return fmt.Errorf("notify.email.host cannot be empty when email is enabled")
		}
		if n.Email.Port < 1 || n.Email.Port > 65535 {
			return fmt.Errorf("notify.email.port out of range (1-65535)")
		}
		if n.Email.From == "" {
			return fmt.Errorf("notify.email.from cannot be empty when email is enabled")
		}
		if n.Email.Timeout <= 0 {
			return fmt.Errorf("notify.email.timeout must be greater than 0")
		}
	}

	if n.WebhookTimeout <= 0 {
		return fmt.Errorf("notify.webhook_timeout must be greater than 0")
	}
	if n.ThrottleWindow < 0 {
		return fmt.Errorf("notify.throttle_window cannot be negative")
	}

	return nil
}

// validateAnalysisConfig validates analysis configuration.
func validateAnalysisConfig(a AnalysisConfig) error {
	if a.Baseline.Interval < time.Minute {
		return fmt.Errorf("analysis.baseline.interval too small (min 1m)")
	}
	if a.Baseline.LookbackDays < 1 {
		return fmt.Errorf("analysis.baseline.lookback_days must be at least 1")
	}
	if a.Baseline.LookbackDays > 365 {
		return fmt.Errorf("analysis.baseline.lookback_days too large (max 365)")
	}

	if a.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	if a.QueueSize < 1 {
		return fmt.Errorf("analysis.queue_size must be at least 1")
	}

	if a.Summarizer.Enabled {
		if a.Summarizer.Endpoint == "" {
			return fmt.Errorf("analysis.summarizer.endpoint cannot be empty when summarizer is enabled")
		}
		u, err := url.Parse(a.Summarizer.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("analysis.summarizer.endpoint must be a valid URL")
		}
		if a.Summarizer.APIKey == "" {
			return fmt.Errorf("analysis.summarizer.api_key cannot be empty when summarizer is enabled")
		}
		if a.Summarizer.Timeout <= 0 {
			return fmt.Errorf("analysis.summarizer.timeout must be greater than 0")
		}
	}

	return nil
}

// validateFanoutConfig validates fan-out configuration.
func validateFanoutConfig(f FanoutConfig) error {
	if f.SubscriberBuffer < 1 {
		return fmt.Errorf("fanout.subscriber_buffer must be at least 1")
	}
	return nil
}

// validateSchedulerConfig validates scheduler configuration.
func validateSchedulerConfig(s SchedulerConfig) error {
	if s.WorkerCount < 1 {
		return fmt.Errorf("scheduler.worker_count must be at least 1")
	}
	if s.WorkerCount > 256 {
		return fmt.Errorf("scheduler.worker_count too large (max 256)")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("scheduler.max_retries cannot be negative")
	}
	return nil
}

// validateLogConfig validates log configuration.
func validateLogConfig(l LogConfig) error {
	if !slices.Contains(validLogLevels, l.Level) {
		return fmt.Errorf("log.level must be one of %v, got %q", validLogLevels, l.Level)
	}
	return nil
}
