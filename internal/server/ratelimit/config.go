package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/echo-pipeline/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (a trailing "/" matches by prefix)
	Method string        // HTTP method
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// FromConfig builds the limiter configuration from the server's rate_limit section.
func FromConfig(rl config.RateLimitConfig) *Config {
	return &Config{
		Enabled:         rl.Enabled,
		DefaultLimit:    rl.DefaultLimit,
		DefaultWindow:   rl.DefaultWindow(),
		CleanupInterval: rl.CleanupInterval(),
		Whitelist:       toSet(rl.Whitelist),
		Blacklist:       toSet(rl.Blacklist),
		EndpointConfigs: RunEndpointConfigs(rl.RunLimitPerHour, rl.RunBurst),
	}
}

// RunEndpointConfigs limits the endpoints that start pipeline or harness runs.
// Reads fall through to the default limit and GET /health is never limited.
func RunEndpointConfigs(limitPerHour, burst int) []EndpointConfig {
	return []EndpointConfig{
		{Path: "/run", Method: http.MethodPost, Limit: limitPerHour, Window: time.Hour, Burst: burst},
		{Path: "/run/stream", Method: http.MethodPost, Limit: limitPerHour, Window: time.Hour, Burst: burst},
		{Path: "/tests", Method: http.MethodPost, Limit: limitPerHour, Window: time.Hour, Burst: burst},
	}
}

// toSet turns a list of client addresses into a lookup set.
func toSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
