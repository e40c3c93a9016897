package config

import "fmt"

// ConfigError reports an invalid configuration value.
// It is fatal: no run starts with an invalid configuration.
//
//nolint:revive // config.ConfigError reads better at call sites than config.Error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}
