package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_Defaults(t *testing.T) {
	s := DefaultConfig().Server

	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, 30*time.Second, s.ShutdownTimeout())
	assert.Equal(t, 24*time.Hour, s.Auth.Expiration())
	assert.Empty(t, s.Auth.Secret)
	assert.True(t, s.RateLimit.Enabled)
	assert.Equal(t, time.Minute, s.RateLimit.DefaultWindow())
	assert.Equal(t, 5*time.Minute, s.RateLimit.CleanupInterval())
}

func TestServerConfig_ParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9090
  rate_limit:
    run_limit_per_hour: 3
    whitelist: ["127.0.0.1"]
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.RateLimit.RunLimitPerHour)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Server.RateLimit.Whitelist)
	assert.Equal(t, 2, cfg.Server.RateLimit.RunBurst)
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantField: "server.port"},
		{name: "zero expiration", mutate: func(c *Config) { c.Server.Auth.ExpirationHours = 0 }, wantField: "server.auth.expiration_hours"},
		{name: "zero run limit", mutate: func(c *Config) { c.Server.RateLimit.RunLimitPerHour = 0 }, wantField: "server.rate_limit.run_limit_per_hour"},
		{name: "short secret", mutate: func(c *Config) { c.Server.Auth.Secret = "short" }, wantField: "server.auth.secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			var cfgErr *ConfigError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestAuthConfig_ResolveSecret(t *testing.T) {
	t.Setenv(AuthSecretEnv, "from-environment-secret")

	a := AuthConfig{}
	a.ResolveSecret()
	assert.Equal(t, "from-environment-secret", a.Secret)

	a = AuthConfig{Secret: "configured-secret-value"}
	a.ResolveSecret()
	assert.Equal(t, "configured-secret-value", a.Secret)
}
