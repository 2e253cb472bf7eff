package siesta

import "fmt"

// StatusError is a per-request domain error (spec §4.3 step 6, §7): a
// handler raises one to choose the response status directly instead of
// falling through to the default 500 translation.
type StatusError struct {
	Status Status
	Reason string
}

// NewStatusError returns a StatusError for status with an empty reason,
// meaning the transport's default reason phrase for status is used.
func NewStatusError(status Status) *StatusError {
	return &StatusError{Status: status}
}

// NewStatusErrorf returns a StatusError for status with a formatted reason.
func NewStatusErrorf(status Status, format string, args ...interface{}) *StatusError {
	return &StatusError{Status: status, Reason: fmt.Sprintf(format, args...)}
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return e.Status.String()
}

// ConfigError reports a caller-misuse failure that is detected synchronously
// and does not affect the state of whatever was being configured (spec §7,
// "Configuration errors"): a bad bind address, certificate added after
// start, a route registered with colliding parameter names, a second
// WebSocket endpoint at an already registered path, and so on.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("siesta: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(op, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Op: op, Err: fmt.Errorf(format, args...)}
}
