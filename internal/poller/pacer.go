package poller

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrScheduleExhausted is returned when a schedule has no future activation.
var ErrScheduleExhausted = errors.New("schedule has no future activation")

// Clock is the time source used by [Pacer]. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Pacer decides when the next pass may start and blocks until then.
type Pacer struct {
	schedule cron.Schedule
	clock    Clock
}

// NewPacer creates a [Pacer] that follows schedule. A nil clock means
// [SystemClock].
func NewPacer(schedule cron.Schedule, clock Clock) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{schedule: schedule, clock: clock}
}

// NewIntervalPacer creates a [Pacer] that waits exactly interval after
// each pass.
func NewIntervalPacer(interval time.Duration, clock Clock) *Pacer {
	return NewPacer(intervalSchedule{interval: interval}, clock)
}

// intervalSchedule is a [cron.Schedule] with a fixed delay. Unlike
// cron.Every it keeps sub-second precision and does not align to the second.
type intervalSchedule struct {
	interval time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// Next returns the next activation time after now.
func (p *Pacer) Next() time.Time {
	return p.schedule.Next(p.clock.Now())
}

// WaitUntil blocks until t or until ctx is done.
func (p *Pacer) WaitUntil(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return ErrScheduleExhausted
	}
	return p.Sleep(ctx, t.Sub(p.clock.Now()))
}

// Sleep blocks for d or until ctx is done. It returns ctx.Err() on
// cancellation and nil otherwise.
func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}
