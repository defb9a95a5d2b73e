package config

import "fmt"

// ConfigError represents a problem with a cluster configuration document:
// a malformed source, a missing required field, or a violated invariant
// such as the high-availability constraint on the control plane pool.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// DomainError marks ConfigError as a domain error for tasks.Wrap and
// the HTTP façade, so its message survives instead of being masked.
func (e *ConfigError) DomainError() {}

// newConfigError builds a ConfigError with a formatted message.
func newConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}
