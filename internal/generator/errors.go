// Package generator turns an input spec into a canonical document by calling a content provider.
package generator

import (
	"fmt"
	"time"
)

// GenerationTimeoutError is returned when the provider does not answer within the configured timeout
type GenerationTimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation timed out: provider %s did not answer within %s", e.Provider, e.Timeout)
}

// ProviderError reports a provider failure or content the provider returned that cannot be used
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider error: %s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider error: %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}
