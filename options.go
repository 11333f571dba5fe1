package seatwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	courses         []Course
	interval        time.Duration
	schedule        cron.Schedule
	scheduleSpec    string
	courseDelay     time.Duration
	errorLimit      int
	checker         Checker
	notifier        Notifier
	clock           Clock
	logger          *slog.Logger
	resultCallbacks []func(CheckResult)
}

// Option is a function that configures a [Watcher] during construction.
//
// Options return an error if validation fails; [New] reports it as a
// *[ConfigError].
//
// Built-in options: [WithCourse], [WithCourses], [WithInterval],
// [WithSchedule], [WithCourseDelay], [WithErrorLimit], [WithChecker],
// [WithNotifier], [WithLogger], [WithResultCallback], [WithClock].
type Option func(*watcherConfig) error

// WithCourse adds a single [Course] to the watch list.
//
// Courses are checked in the order they are added. At least one course
// must be configured for [New] to succeed.
func WithCourse(c Course) Option {
	return func(cfg *watcherConfig) error {
		if c.CRN() == "" {
			return errors.New("course must be created with NewCourse")
		}
		cfg.courses = append(cfg.courses, c)
		return nil
	}
}

// WithCourses adds multiple [Course] values to the watch list.
//
// Equivalent to calling [WithCourse] for each course in order.
func WithCourses(courses ...Course) Option {
	return func(cfg *watcherConfig) error {
		for _, c := range courses {
			if err := WithCourse(c)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithInterval sets the wait between two passes over the watch list.
//
// There is no default; [New] fails without it. Intervals are honoured in
// whole seconds.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithSchedule restricts passes to the activation times of a standard
// five-field cron expression, e.g. "*/5 8-18 * * MON-FRI".
//
// When set, the schedule replaces the interval as the wait between passes.
// The first pass still runs immediately.
//
// Returns an error if the expression cannot be parsed.
func WithSchedule(spec string) Option {
	return func(cfg *watcherConfig) error {
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", spec, err)
		}
		cfg.schedule = schedule
		cfg.scheduleSpec = spec
		return nil
	}
}

// WithCourseDelay sets a pause between two checks in the same pass.
//
// Defaults to no pause. Returns an error if the duration is negative.
func WithCourseDelay(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d < 0 {
			return errors.New("course delay cannot be negative")
		}
		cfg.courseDelay = d
		return nil
	}
}

// WithErrorLimit stops the run after n consecutive failed checks.
//
// A successful check resets the count. When the limit is hit the notifier's
// failure alert is sent and [Watcher.Run] returns an *[ErrorLimitError].
// Zero, the default, never stops on check failures.
//
// Returns an error if n is negative.
func WithErrorLimit(n int) Option {
	return func(cfg *watcherConfig) error {
		if n < 0 {
			return errors.New("error limit cannot be negative")
		}
		cfg.errorLimit = n
		return nil
	}
}

// WithChecker sets the [Checker] used for availability checks. Required.
func WithChecker(c Checker) Option {
	return func(cfg *watcherConfig) error {
		if c == nil {
			return errors.New("checker cannot be nil")
		}
		cfg.checker = c
		return nil
	}
}

// WithNotifier sets the [Notifier] used for alerts. Required.
func WithNotifier(n Notifier) Option {
	return func(cfg *watcherConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifier = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithResultCallback registers a function called after every successful
// check with its [CheckResult].
//
// Callbacks run synchronously on the polling goroutine, in registration
// order, and must not block. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithResultCallback(cb func(CheckResult)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.resultCallbacks = append(cfg.resultCallbacks, cb)
		return nil
	}
}

// WithClock replaces the wall clock used for waiting between passes.
// Tests use it to run many passes without sleeping.
//
// Returns an error if the clock is nil.
func WithClock(c Clock) Option {
	return func(cfg *watcherConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}
