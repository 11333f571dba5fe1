package seatwatch

import (
	"fmt"
	"time"
)

// ConfigError reports a missing or invalid setting. It is fatal at startup.
type ConfigError struct {
	// Field names the offending setting, if known.
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError reports a failed availability check: the backend was
// unreachable, answered with an unexpected status, or sent a body that does
// not match the expected schema. The course is skipped for the current pass.
type TransportError struct {
	Course string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("check %s: %v", e.Course, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitedError reports that the backend throttled the check with
// HTTP 429, 403 or 503.
type RateLimitedError struct {
	Course     string
	StatusCode int

	// RetryAfter is the delay requested by the backend, zero if none.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("check %s: rate limited (HTTP %d, retry after %s)", e.Course, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("check %s: rate limited (HTTP %d)", e.Course, e.StatusCode)
}

// NotificationError reports that an alert could not be delivered.
// It is fatal to the run.
type NotificationError struct {
	// Op is the failed step: "address", "dial", "starttls", "auth", "send"
	// or "compose".
	Op  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s failed: %v", e.Op, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// ErrorLimitError is returned by [Watcher.Run] when the configured number
// of consecutive checks failed.
type ErrorLimitError struct {
	Failures int

	// Err is the last check failure.
	Err error
}

func (e *ErrorLimitError) Error() string {
	return fmt.Sprintf("%d consecutive checks failed, last error: %v", e.Failures, e.Err)
}

func (e *ErrorLimitError) Unwrap() error { return e.Err }
