package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadwatch/internal/alerting"
	"spreadwatch/internal/cache"
	"spreadwatch/internal/fetcher"
	"spreadwatch/internal/series"
	"spreadwatch/internal/session"
	"spreadwatch/internal/storage"
)

type staticFetcher struct {
	samples []series.Sample
}

func (f staticFetcher) FetchSamples(context.Context, fetcher.SampleQuery) ([]series.Sample, error) {
	return f.samples, nil
}

type policy struct{}

func (policy) RetentionCap(series.TimeFrame) int { return 100 }

func (policy) RefreshInterval(series.TimeFrame) time.Duration { return time.Hour }

type recorder struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recorder) Notify(_ context.Context, n alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testKey() series.Key {
	return series.Key{Symbol: "BTC", Exchange1: "paradex", Exchange2: "backpack", TimeFrame: series.TimeFrame1m}
}

func newService(t *testing.T, diff float64, rec *recorder, report ReportFunc) *Service {
	t.Helper()
	store := cache.NewStore(storage.NewMemory(), cache.DefaultOptions(), zerolog.Nop())
	svc, err := New(Options{
		Fetcher: staticFetcher{samples: []series.Sample{{CreatedAt: now.Add(-time.Minute).UnixMilli(), Difference: diff}}},
		Cache:   store,
		Policy:  policy{},
		Monitor: alerting.NewMonitor(rec, 0.5, time.Hour, []string{"log"}),
		Report:  report,
		Now:     func() time.Time { return now },
	}, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestOnceEvaluatesAlerts(t *testing.T) {
	rec := &recorder{}
	svc := newService(t, 1.25, rec, nil)

	view, err := svc.Once(context.Background(), testKey())
	require.NoError(t, err)
	assert.Equal(t, session.StateReady, view.State)
	assert.Equal(t, 1, rec.count())

	quiet := &recorder{}
	_, err = newService(t, 0.1, quiet, nil).Once(context.Background(), testKey())
	require.NoError(t, err)
	assert.Zero(t, quiet.count())
}

func TestRunReportsUntilCancelled(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	var states []session.State
	svc := newService(t, 2, rec, func(v session.View) {
		mu.Lock()
		states = append(states, v.State)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, testKey()) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, session.StateReady)
}
