package seatwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jpalmerr/seatwatch/internal/poller"
)

// Clock is the time source used between passes.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// ErrAlreadyRun is returned when [Watcher.Run] is called more than once.
var ErrAlreadyRun = errors.New("watcher has already run")

// State is the lifecycle state of a [Watcher].
type State int

const (
	// StateInit is the state after [New] and before [Watcher.Run].
	StateInit State = iota

	// StatePolling means passes over the watch list are running.
	StatePolling

	// StateNotifying means an open course was found and the alert is being sent.
	StateNotifying

	// StateDone means the alert was delivered. Terminal.
	StateDone

	// StateFailed means the run ended without delivering an alert. Terminal.
	StateFailed
)

// String returns the upper-case state name, e.g. "POLLING".
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePolling:
		return "POLLING"
	case StateNotifying:
		return "NOTIFYING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Watcher polls a list of courses until one opens, then notifies once.
//
// A Watcher is created using [New] with functional options and run with
// [Watcher.Run]. It runs at most once: the open-seat alert is sent at most
// once per Watcher.
type Watcher struct {
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

	mu      sync.Mutex
	state   State
	started bool
}

// New creates a [Watcher] with the given options.
//
// At least one course, a positive interval, a [Checker] and a [Notifier]
// are required. Two courses with the same term and CRN are rejected.
//
// Returns a *[ConfigError] if validation fails.
//
// Example:
//
//	w, err := seatwatch.New(
//	    seatwatch.WithCourses(c1, c2),
//	    seatwatch.WithInterval(60 * time.Second),
//	    seatwatch.WithChecker(checker),
//	    seatwatch.WithNotifier(notifier),
//	)
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	if len(cfg.courses) == 0 {
		return nil, &ConfigError{Field: "courses", Err: errors.New("at least one course is required")}
	}
	if cfg.interval <= 0 {
		return nil, &ConfigError{Field: "interval", Err: errors.New("a positive interval is required")}
	}
	if cfg.checker == nil {
		return nil, &ConfigError{Field: "checker", Err: errors.New("is required")}
	}
	if cfg.notifier == nil {
		return nil, &ConfigError{Field: "notifier", Err: errors.New("is required")}
	}

	seen := make(map[string]bool, len(cfg.courses))
	for i, c := range cfg.courses {
		if seen[c.key()] {
			return nil, &ConfigError{
				Field: fmt.Sprintf("courses[%d]", i),
				Err:   fmt.Errorf("duplicate course %s", c.Label()),
			}
		}
		seen[c.key()] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.clock
	if clock == nil {
		clock = poller.SystemClock{}
	}

	return &Watcher{
		courses:         cfg.courses,
		interval:        cfg.interval,
		schedule:        cfg.schedule,
		scheduleSpec:    cfg.scheduleSpec,
		courseDelay:     cfg.courseDelay,
		errorLimit:      cfg.errorLimit,
		checker:         cfg.checker,
		notifier:        cfg.notifier,
		clock:           clock,
		logger:          logger,
		resultCallbacks: cfg.resultCallbacks,
		state:           StateInit,
	}, nil
}

// Run polls until a course opens, delivers the alert and returns the open
// [CheckResult].
//
// The first pass starts immediately. Courses are checked in configured
// order and the pass stops at the first open one; other courses open at
// the same time are not reported. Failed checks are logged and skipped.
//
// Run ends in [StateDone] on delivery and in [StateFailed] otherwise, with:
//   - a *[NotificationError] if the alert could not be sent
//   - an *[ErrorLimitError] if [WithErrorLimit] was reached
//   - ctx.Err() if ctx was cancelled while polling
//
// Once an open course is found the alert is sent even if ctx is cancelled
// meanwhile. Calling Run a second time returns [ErrAlreadyRun].
func (w *Watcher) Run(ctx context.Context) (CheckResult, error) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return CheckResult{}, ErrAlreadyRun
	}
	w.started = true
	w.state = StatePolling
	w.mu.Unlock()

	w.logger.Info("seatwatch starting", "course_count", len(w.courses))
	if w.scheduleSpec != "" {
		w.logger.Info("polling configured", "schedule", w.scheduleSpec)
	} else {
		w.logger.Info("polling configured", "interval", w.interval.String())
	}

	var found CheckResult
	probe := func(ctx context.Context, index int) (bool, error) {
		result, err := w.checker.Check(ctx, w.courses[index])
		if err != nil {
			return false, err
		}
		// checkers may leave Course unset
		result.Course = w.courses[index]
		result.CheckedAt = w.clock.Now()

		w.logResult(result)
		for _, cb := range w.resultCallbacks {
			invokeCallbackSafe(cb, result, w.logger)
		}

		if !result.Open() {
			return false, nil
		}
		found = result
		return true, nil
	}

	sched := poller.NewScheduler(
		w.targets(),
		probe,
		w.pacer(),
		poller.SchedulerOptions{CourseDelay: w.courseDelay, ErrorLimit: w.errorLimit},
		w.logger,
	)

	hit, err := sched.Run(ctx)
	if err != nil {
		return CheckResult{}, w.fail(ctx, err)
	}

	w.setState(StateNotifying)
	w.logger.Info("open seat found",
		"course", found.Course.Label(),
		"seats_available", found.SeatsAvailable,
		"pass", hit.Pass,
	)

	if err := w.notifier.Notify(context.WithoutCancel(ctx), []CheckResult{found}); err != nil {
		err = asNotificationError(err)
		w.setState(StateFailed)
		w.logger.Error("notification failed", "course", found.Course.Label(), "error", err.Error())
		return found, err
	}

	w.setState(StateDone)
	w.logger.Info("notification sent", "course", found.Course.Label())
	return found, nil
}

// fail moves the watcher to StateFailed and maps a scheduler error to the
// error returned by Run.
func (w *Watcher) fail(ctx context.Context, err error) error {
	w.setState(StateFailed)

	var limitErr *poller.LimitError
	if !errors.As(err, &limitErr) {
		if ctx.Err() != nil {
			w.logger.Info("seatwatch interrupted")
		} else {
			w.logger.Error("polling stopped", "error", err.Error())
		}
		return err
	}

	runErr := &ErrorLimitError{Failures: limitErr.Failures, Err: limitErr.Last}
	w.logger.Error("error limit reached, stopping", "failures", runErr.Failures, "error", runErr.Err.Error())

	if alertErr := w.notifier.SendFailureAlert(context.WithoutCancel(ctx), runErr); alertErr != nil {
		w.logger.Warn("failure alert not delivered", "error", alertErr.Error())
	}
	return runErr
}

// SelfTest sends the notifier's test message.
//
// It needs no open course and is meant to verify credentials before a long
// unattended run. Errors are returned as *[NotificationError].
func (w *Watcher) SelfTest(ctx context.Context) error {
	w.logger.Info("sending test notification")
	if err := w.notifier.SendTest(ctx); err != nil {
		err = asNotificationError(err)
		w.logger.Error("test notification failed", "error", err.Error())
		return err
	}
	w.logger.Info("test notification sent")
	return nil
}

// State returns the current lifecycle state. Safe for concurrent use.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Courses returns a copy of the watched courses in check order.
func (w *Watcher) Courses() []Course {
	cp := make([]Course, len(w.courses))
	copy(cp, w.courses)
	return cp
}

// Interval returns the configured wait between passes.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watcher) targets() []poller.Target {
	targets := make([]poller.Target, len(w.courses))
	for i, c := range w.courses {
		targets[i] = poller.Target{Name: c.Label()}
	}
	return targets
}

func (w *Watcher) pacer() *poller.Pacer {
	if w.schedule != nil {
		return poller.NewPacer(w.schedule, w.clock)
	}
	return poller.NewIntervalPacer(w.interval, w.clock)
}

func (w *Watcher) logResult(r CheckResult) {
	attrs := []any{
		"course", r.Course.Label(),
		"status", r.Status.String(),
		"latency_ms", r.Latency.Milliseconds(),
	}
	if r.SeatsKnown {
		attrs = append(attrs, "seats_available", r.SeatsAvailable, "capacity", r.Capacity)
	}
	if !r.SectionFound {
		attrs = append(attrs, "section_found", false)
	}
	w.logger.Debug("course checked", attrs...)
}

// invokeCallbackSafe calls a result callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(CheckResult), result CheckResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"course", result.Course.Label(),
			)
		}
	}()
	cb(result)
}
