package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Target is one item checked during a pass.
type Target struct {
	// Name identifies the target in logs.
	Name string
}

// Probe checks the target at index and reports whether it is open.
//
// A non-nil error means the check itself failed; open is ignored then.
type Probe func(ctx context.Context, index int) (open bool, err error)

// Hit identifies the first open target found.
type Hit struct {
	// Index is the position of the target in the configured order.
	Index int

	// Pass is the 1-based pass number the target was found in.
	Pass int
}

// LimitError is returned by [Scheduler.Run] when the consecutive failure
// limit is reached.
type LimitError struct {
	Failures int
	Last     error
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%d consecutive check failures, last: %v", e.Failures, e.Last)
}

func (e *LimitError) Unwrap() error { return e.Last }

// SchedulerOptions holds the optional scheduler behaviour.
type SchedulerOptions struct {
	// CourseDelay is the pause between two checks of the same pass.
	CourseDelay time.Duration

	// ErrorLimit stops the run after this many consecutive failed checks.
	// Zero disables the limit.
	ErrorLimit int
}

// Scheduler runs check passes over its targets until one reports open.
//
// Targets are checked strictly in order, one at a time. A pass stops at the
// first open target. A failing target is logged and skipped so later
// targets in the same pass are still checked. Between passes the scheduler
// waits on its [Pacer].
type Scheduler struct {
	targets []Target
	probe   Probe
	pacer   *Pacer
	opts    SchedulerOptions
	logger  *slog.Logger
}

// NewScheduler creates a [Scheduler].
func NewScheduler(targets []Target, probe Probe, pacer *Pacer, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		targets: targets,
		probe:   probe,
		pacer:   pacer,
		opts:    opts,
		logger:  logger,
	}
}

// Run blocks until a target reports open, the failure limit is reached or
// ctx is done.
//
// On success it returns the [Hit]. Otherwise it returns a *[LimitError] or
// the context error.
func (s *Scheduler) Run(ctx context.Context) (Hit, error) {
	if len(s.targets) == 0 {
		return Hit{}, fmt.Errorf("no targets to check")
	}

	consecutive := 0

	for pass := 1; ; pass++ {
		s.logger.Info("check pass starting", "pass", pass, "targets", len(s.targets))

		for i, target := range s.targets {
			if i > 0 && s.opts.CourseDelay > 0 {
				if err := s.pacer.Sleep(ctx, s.opts.CourseDelay); err != nil {
					return Hit{}, err
				}
			}
			if err := ctx.Err(); err != nil {
				return Hit{}, err
			}

			open, err := s.safeProbe(ctx, i)
			if err != nil {
				// a cancelled context is not a check failure
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Hit{}, ctxErr
				}

				consecutive++
				s.logger.Warn("check failed, skipping for this pass",
					"target", target.Name,
					"pass", pass,
					"consecutive_failures", consecutive,
					"error", err.Error(),
				)
				if s.opts.ErrorLimit > 0 && consecutive >= s.opts.ErrorLimit {
					return Hit{}, &LimitError{Failures: consecutive, Last: err}
				}
				continue
			}
			consecutive = 0

			if open {
				return Hit{Index: i, Pass: pass}, nil
			}
		}

		next := s.pacer.Next()
		s.logger.Info("check pass complete, nothing open",
			"pass", pass,
			"next_pass", next.Format(time.DateTime),
		)
		if err := s.pacer.WaitUntil(ctx, next); err != nil {
			return Hit{}, err
		}
	}
}

// safeProbe calls the probe with panic recovery.
// A panic is logged with a correlation ID and reported as a failed check.
func (s *Scheduler) safeProbe(ctx context.Context, index int) (open bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("check panic",
				"correlation_id", correlationID,
				"target", s.targets[index].Name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			open = false
			err = fmt.Errorf("check panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.probe(ctx, index)
}
