// Package admin implements the optional HTTP administration surface
// (SPEC_FULL.md §4.G): health/status reporting, Prometheus metrics, an
// authenticated module-lifecycle API, and an MCP tool surface over the
// same operations, all routed through chi.
package admin

import "time"

// Config holds the admin server's runtime configuration, translated from
// config.AdminConfig (spec.md §6's config table carries no admin section
// of its own — see SPEC_FULL.md §4.G).
type Config struct {
	ListenAddr      string
	BearerToken     string
	BasicUser       string
	BasicPass       string
	RateLimitRPS    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// defaults fills zero-valued fields the way gateway.Config.defaults did.
func (c *Config) defaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8090"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 120
	}
}

// IsAuthConfigured reports whether either bearer-token or basic-auth
// credentials are set.
func (c Config) IsAuthConfigured() bool {
	return c.BearerToken != "" || (c.BasicUser != "" && c.BasicPass != "")
}
