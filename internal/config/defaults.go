package config

import "github.com/spf13/viper"

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "nabz.db")
	v.SetDefault("storage.max_open_conns", 32)
	v.SetDefault("storage.max_idle_conns", 8)
	v.SetDefault("storage.conn_max_lifetime", "1h")

	// Notification defaults
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.timeout", "30s")
	v.SetDefault("notify.webhook_timeout", "15s")
	v.SetDefault("notify.throttle_window", "5m")

	// Analysis defaults
	v.SetDefault("analysis.baseline.interval", "24h")
	v.SetDefault("analysis.baseline.lookback_days", 30)
	v.SetDefault("analysis.summarizer.enabled", false)
	v.SetDefault("analysis.summarizer.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("analysis.summarizer.model", "gpt-4o-mini")
	v.SetDefault("analysis.summarizer.timeout", "30s")
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.queue_size", 256)

	// Fan-out defaults
	v.SetDefault("fanout.subscriber_buffer", 64)

	// Scheduler defaults
	v.SetDefault("scheduler.worker_count", 8)
	v.SetDefault("scheduler.max_retries", 3)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
