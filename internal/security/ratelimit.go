package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable rate limits for the admin HTTP surface
// (SPEC_FULL.md §4.G) and for upstream-connection churn.
type RateLimitConfig struct {
	MaxConnections      int `yaml:"max_connections"`
	AdminRequestsPerMin int `yaml:"admin_requests_per_min"`
	ChatCommandsPerMin  int `yaml:"chat_commands_per_min"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MaxConnections:      100,
		AdminRequestsPerMin: 120,
		ChatCommandsPerMin:  200,
	}
}

// RateLimiter implements sliding window rate limiting using stdlib only.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  RateLimitConfig
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaults.MaxConnections
	}
	if cfg.AdminRequestsPerMin <= 0 {
		cfg.AdminRequestsPerMin = defaults.AdminRequestsPerMin
	}
	if cfg.ChatCommandsPerMin <= 0 {
		cfg.ChatCommandsPerMin = defaults.ChatCommandsPerMin
	}

	rl := &RateLimiter{
		config: cfg,
		now:    time.Now,
		buckets: map[string]*bucket{
			"admin_request": {
				window: time.Minute,
				limit:  cfg.AdminRequestsPerMin,
			},
			"chat_command": {
				window: time.Minute,
				limit:  cfg.ChatCommandsPerMin,
			},
		},
	}

	return rl
}

// Allow checks whether an event of the given kind is allowed.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
// kind must be one of: "admin_request", "chat_command".
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		// Unknown kind = no limit configured.
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// AllowN checks whether n events of the given kind are allowed.
// Useful for token counting where a single request consumes multiple tokens.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events)+n > b.limit {
		return ErrRateLimited
	}

	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// MaxConnections returns the configured maximum number of concurrent
// upstream connections.
func (rl *RateLimiter) MaxConnections() int {
	return rl.config.MaxConnections
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	// Find the first event within the window (events are chronologically ordered).
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
