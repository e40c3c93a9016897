package config

import (
	"fmt"
	"os"
	"time"
)

// AuthSecretEnv names the environment variable holding the token signing secret
const AuthSecretEnv = "ECHO_AUTH_SECRET"

// minSecretLength is the shortest HMAC secret accepted for signing tokens
const minSecretLength = 16

// ServerConfig configures the HTTP API started by the serve command
type ServerConfig struct {
	Port            int             `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	ShutdownSeconds int             `yaml:"shutdown_seconds" json:"shutdown_seconds" validate:"gte=1"`
	Auth            AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// ShutdownTimeout is how long in-flight requests get on shutdown
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownSeconds) * time.Second
}

// AuthConfig holds the bearer token settings. An empty secret disables
// authentication for the HTTP API.
type AuthConfig struct {
	Secret          string `yaml:"secret,omitempty" json:"secret,omitempty"`
	ExpirationHours int    `yaml:"expiration_hours" json:"expiration_hours" validate:"gte=1"`
}

// Expiration is the lifetime of an issued token
func (a AuthConfig) Expiration() time.Duration {
	return time.Duration(a.ExpirationHours) * time.Hour
}

// ResolveSecret fills an empty secret from AuthSecretEnv
func (a *AuthConfig) ResolveSecret() {
	if a.Secret == "" {
		a.Secret = os.Getenv(AuthSecretEnv)
	}
}

// check validates the secret once it has been resolved
func (a AuthConfig) check() error {
	if a.Secret != "" && len(a.Secret) < minSecretLength {
		return &ConfigError{Field: "server.auth.secret", Message: fmt.Sprintf("must be at least %d bytes", minSecretLength)}
	}
	return nil
}

// RateLimitConfig configures per-client token buckets. Pipeline runs and
// harness runs share the stricter run limit; everything else uses the default.
type RateLimitConfig struct {
	Enabled              bool     `yaml:"enabled" json:"enabled"`
	DefaultLimit         int      `yaml:"default_limit" json:"default_limit" validate:"gte=1"`
	DefaultWindowSeconds int      `yaml:"default_window_seconds" json:"default_window_seconds" validate:"gte=1"`
	RunLimitPerHour      int      `yaml:"run_limit_per_hour" json:"run_limit_per_hour" validate:"gte=1"`
	RunBurst             int      `yaml:"run_burst" json:"run_burst" validate:"gte=1"`
	CleanupSeconds       int      `yaml:"cleanup_seconds" json:"cleanup_seconds" validate:"gte=1"`
	Whitelist            []string `yaml:"whitelist,omitempty" json:"whitelist,omitempty"`
	Blacklist            []string `yaml:"blacklist,omitempty" json:"blacklist,omitempty"`
}

// DefaultWindow is the window of the default limit
func (r RateLimitConfig) DefaultWindow() time.Duration {
	return time.Duration(r.DefaultWindowSeconds) * time.Second
}

// CleanupInterval is how often idle buckets are dropped
func (r RateLimitConfig) CleanupInterval() time.Duration {
	return time.Duration(r.CleanupSeconds) * time.Second
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		ShutdownSeconds: 30,
		Auth:            AuthConfig{ExpirationHours: 24},
		RateLimit: RateLimitConfig{
			Enabled:              true,
			DefaultLimit:         1000,
			DefaultWindowSeconds: 60,
			RunLimitPerHour:      10,
			RunBurst:             2,
			CleanupSeconds:       300,
		},
	}
}

func mergeServer(result *ServerConfig, defaults ServerConfig) {
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.ShutdownSeconds == 0 {
		result.ShutdownSeconds = defaults.ShutdownSeconds
	}
	if result.Auth.ExpirationHours == 0 {
		result.Auth.ExpirationHours = defaults.Auth.ExpirationHours
	}
	rl := &result.RateLimit
	if rl.DefaultLimit == 0 {
		rl.DefaultLimit = defaults.RateLimit.DefaultLimit
	}
	if rl.DefaultWindowSeconds == 0 {
		rl.DefaultWindowSeconds = defaults.RateLimit.DefaultWindowSeconds
	}
	if rl.RunLimitPerHour == 0 {
		rl.RunLimitPerHour = defaults.RateLimit.RunLimitPerHour
	}
	if rl.RunBurst == 0 {
		rl.RunBurst = defaults.RateLimit.RunBurst
	}
	if rl.CleanupSeconds == 0 {
		rl.CleanupSeconds = defaults.RateLimit.CleanupSeconds
	}
}
