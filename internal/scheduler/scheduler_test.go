package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	require.Error(t, err)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			if ticks.Add(1) == 2 {
				return errors.New("boom")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond,
		"errors do not stop the loop")
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestTriggerRunsImmediately(t *testing.T) {
	trigger := make(chan struct{})
	s, err := New(Options{Interval: time.Hour, Trigger: trigger}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fired := make(chan time.Time, 1)
	go func() {
		_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
			fired <- at
			return nil
		})
	}()

	trigger <- struct{}{}
	select {
	case at := <-fired:
		assert.WithinDuration(t, time.Now(), at, time.Second)
	case <-time.After(time.Second):
		t.Fatal("manual trigger did not run a tick")
	}
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s, err := New(Options{Interval: time.Millisecond, StartupDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run during startup delay")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC), s.nextTick(now))
	assert.Equal(t, time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC), s.tickTime(time.Date(2024, 1, 1, 10, 1, 0, 500, time.UTC)))
}
