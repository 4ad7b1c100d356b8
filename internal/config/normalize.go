package config

import "strings"

// normalizeConfig normalizes configuration values.
func normalizeConfig(c *Config) {
	// Normalize log level and storage driver to lowercase
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))

	// Trim whitespace from addresses and endpoints
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Analysis.Summarizer.Endpoint = strings.TrimSpace(c.Analysis.Summarizer.Endpoint)
	c.Notify.Email.Host = strings.TrimSpace(c.Notify.Email.Host)
}
