package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"spreadwatch/internal/logging"
)

// TickFunc is invoked on every interval and on every manual trigger.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Trigger, when set, runs an extra tick as soon as a value arrives and restarts the interval.
	Trigger <-chan struct{}
}

// Scheduler drives periodic refreshes.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logging.Component(logger, "scheduler")}, nil
}

// Interval returns the configured period.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Run blocks, invoking tick at each interval until ctx is cancelled.
// Tick errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		manual := false
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.opts.Trigger:
			timer.Stop()
			manual = true
		case <-timer.C:
		}

		at := time.Now().UTC()
		if !manual {
			at = s.tickTime(next)
		}
		s.logger.Debug().Time("at", at).Bool("manual", manual).Msg("executing tick")

		if err := tick(ctx, at); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Time("at", at).Msg("tick failed")
		}

		if manual {
			next = s.nextTick(time.Now().UTC())
		} else {
			next = next.Add(s.opts.Interval)
		}
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	aligned := now.Truncate(s.opts.Interval)
	if !aligned.After(now) {
		aligned = aligned.Add(s.opts.Interval)
	}
	return aligned
}

func (s *Scheduler) tickTime(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
