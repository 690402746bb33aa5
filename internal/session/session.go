package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spreadwatch/internal/fetcher"
	"spreadwatch/internal/logging"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/scheduler"
	"spreadwatch/internal/series"
)

// State is the orchestrator state for the active key.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateFetching State = "fetching"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Cache is the persisted side of a session.
type Cache interface {
	Get(ctx context.Context, key series.Key) ([]series.Sample, bool)
	Put(ctx context.Context, key series.Key, samples []series.Sample) error
	Touch(ctx context.Context, key series.Key) error
}

// Policy supplies per time frame retention caps and refresh intervals.
type Policy interface {
	RetentionCap(tf series.TimeFrame) int
	RefreshInterval(tf series.TimeFrame) time.Duration
}

// View is a snapshot of what the session currently serves.
type View struct {
	Key         series.Key
	State       State
	Buckets     []series.Bucket
	Summary     series.Summary
	SampleCount int
	// LastUpdated is the time of the last successful fetch; zero while serving cached data only.
	LastUpdated time.Time
	// Stale is set when the latest fetch failed but earlier data is still served.
	Stale     bool
	FromCache bool
	Err       error
}

// Options configure a Session.
type Options struct {
	Policy   Policy
	Metrics  *metrics.Metrics
	Now      func() time.Time
	OnUpdate func(View)
}

// token identifies one activation of a key. Results carrying an older token are dropped.
type token struct {
	gen uint64
	key series.Key
}

// Session owns the in-memory sample set of one active key at a time.
type Session struct {
	fetcher  fetcher.SampleFetcher
	cache    Cache
	policy   Policy
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	onUpdate func(View)

	mu          sync.Mutex
	gen         uint64
	key         series.Key
	state       State
	samples     []series.Sample
	buckets     []series.Bucket
	summary     series.Summary
	lastUpdated time.Time
	stale       bool
	fromCache   bool
	persisted   bool
	lastErr     error
	cancel      context.CancelFunc
	retry       chan struct{}

	wg sync.WaitGroup
}

// New builds an idle session.
func New(f fetcher.SampleFetcher, c Cache, logger zerolog.Logger, opts Options) (*Session, error) {
	if f == nil {
		return nil, errors.New("session: fetcher is required")
	}
	if c == nil {
		return nil, errors.New("session: cache is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("session: policy is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		fetcher:  f,
		cache:    c,
		policy:   opts.Policy,
		logger:   logging.Component(logger, "session").With().Str("session_id", uuid.NewString()).Logger(),
		metrics:  opts.Metrics,
		now:      now,
		onUpdate: opts.OnUpdate,
		state:    StateIdle,
	}, nil
}

// Start switches the session to key and keeps it refreshed until ctx ends, Close is
// called or another key is started. Pending timers of the previous key are cancelled.
func (s *Session) Start(ctx context.Context, key series.Key) error {
	sched, retry, err := s.newScheduler(key)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	prev := s.cancel
	tok := s.resetLocked(key)
	s.cancel = cancel
	s.retry = retry
	// counted before the lock is released so a concurrent Close waits for this loop
	s.wg.Add(1)
	s.mu.Unlock()
	if prev != nil {
		prev()
	}

	s.logger.Info().Str("key", key.String()).Dur("refresh", sched.Interval()).Msg("session started")
	go func() {
		defer s.wg.Done()
		s.load(loopCtx, tok)
		if err := s.refresh(loopCtx, tok); err != nil && loopCtx.Err() == nil {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("initial fetch failed")
		}
		_ = sched.Run(loopCtx, func(ctx context.Context, _ time.Time) error {
			return s.refresh(ctx, tok)
		})
	}()
	return nil
}

// Sync activates key and performs one load and one fetch in the caller's goroutine.
// The returned error is set only when no data could be served at all.
func (s *Session) Sync(ctx context.Context, key series.Key) (View, error) {
	s.mu.Lock()
	prev := s.cancel
	s.cancel = nil
	s.retry = nil
	tok := s.resetLocked(key)
	s.mu.Unlock()
	if prev != nil {
		prev()
	}

	s.load(ctx, tok)
	err := s.refresh(ctx, tok)
	view := s.View()
	if err != nil && view.State == StateError {
		return view, err
	}
	return view, nil
}

// Retry asks the running loop for an immediate re-fetch.
func (s *Session) Retry() {
	s.mu.Lock()
	retry := s.retry
	s.mu.Unlock()
	if retry == nil {
		return
	}
	select {
	case retry <- struct{}{}:
	default:
	}
}

// Close cancels timers and waits for the refresh loop to exit.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.retry = nil
	s.gen++
	s.state = StateIdle
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Samples returns a copy of the in-memory sample set.
func (s *Session) Samples() []series.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]series.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// WriteCSV exports the full sample set, not the bucketed view.
func (s *Session) WriteCSV(w io.Writer) error {
	return series.WriteCSV(w, s.Samples())
}

func (s *Session) newScheduler(key series.Key) (*scheduler.Scheduler, chan struct{}, error) {
	retry := make(chan struct{}, 1)
	sched, err := scheduler.New(scheduler.Options{
		Interval: s.policy.RefreshInterval(key.TimeFrame),
		Trigger:  retry,
	}, s.logger)
	if err != nil {
		return nil, nil, err
	}
	return sched, retry, nil
}

func (s *Session) resetLocked(key series.Key) token {
	s.gen++
	s.key = key
	s.state = StateIdle
	s.samples = nil
	s.buckets = []series.Bucket{}
	s.summary = series.Summary{}
	s.lastUpdated = time.Time{}
	s.stale = false
	s.fromCache = false
	s.persisted = false
	s.lastErr = nil
	return token{gen: s.gen, key: key}
}

// load serves the cached sample set for tok, if any.
func (s *Session) load(ctx context.Context, tok token) {
	if !s.apply(tok, func() { s.state = StateLoading }) {
		return
	}

	cached, ok := s.cache.Get(ctx, tok.key)
	if !ok || len(cached) == 0 {
		s.apply(tok, func() { s.state = StateFetching })
		return
	}
	if err := s.cache.Touch(ctx, tok.key); err != nil {
		s.logger.Warn().Err(err).Str("key", tok.key.String()).Msg("touch cache entry failed")
	}

	retention := s.policy.RetentionCap(tok.key.TimeFrame)
	s.apply(tok, func() {
		s.samples = series.Merge(nil, cached, retention)
		s.rebuildLocked()
		s.fromCache = true
		s.persisted = true
		s.state = StateReady
	})
	s.logger.Debug().Str("key", tok.key.String()).Int("samples", len(cached)).Msg("served from cache")
}

// refresh fetches samples newer than the watermark and merges them in.
func (s *Session) refresh(ctx context.Context, tok token) error {
	var since *int64
	ok := s.guard(tok, func() {
		if len(s.samples) > 0 {
			w := series.Watermark(s.samples)
			since = &w
		} else {
			s.state = StateFetching
		}
	})
	if !ok {
		return nil
	}

	delta, err := s.fetcher.FetchSamples(ctx, fetcher.SampleQuery{Key: tok.key, Since: since})
	if err != nil {
		s.metrics.Fetch("error")
		s.apply(tok, func() {
			s.lastErr = err
			if len(s.samples) > 0 {
				s.stale = true
				s.state = StateReady
			} else {
				s.state = StateError
			}
		})
		return err
	}
	s.metrics.Fetch("ok")

	retention := s.policy.RetentionCap(tok.key.TimeFrame)
	var (
		merged  []series.Sample
		persist bool
	)
	ok = s.apply(tok, func() {
		before := series.Watermark(s.samples)
		merged = series.Merge(s.samples, delta, retention)
		persist = !s.persisted || series.Watermark(merged) != before
		s.samples = merged
		s.rebuildLocked()
		s.lastUpdated = s.now()
		s.stale = false
		s.fromCache = false
		s.lastErr = nil
		s.state = StateReady
	})
	if !ok || !persist || len(merged) == 0 {
		return nil
	}

	// the entry is written even if the session has moved on meanwhile
	if err := s.cache.Put(context.WithoutCancel(ctx), tok.key, merged); err != nil {
		s.logger.Warn().Err(err).Str("key", tok.key.String()).Msg("cache write failed")
		return nil
	}
	s.guard(tok, func() { s.persisted = true })
	return nil
}

// apply runs fn under the lock if tok is still the active token and publishes the new view.
func (s *Session) apply(tok token, fn func()) bool {
	s.mu.Lock()
	if tok.gen != s.gen {
		s.mu.Unlock()
		s.dropped(tok)
		return false
	}
	fn()
	view := s.viewLocked()
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(view)
	}
	return true
}

// guard is apply without publishing.
func (s *Session) guard(tok token, fn func()) bool {
	s.mu.Lock()
	if tok.gen != s.gen {
		s.mu.Unlock()
		s.dropped(tok)
		return false
	}
	fn()
	s.mu.Unlock()
	return true
}

func (s *Session) dropped(tok token) {
	s.metrics.StaleDropped()
	s.logger.Debug().Str("key", tok.key.String()).Msg("dropped result for inactive key")
}

func (s *Session) rebuildLocked() {
	s.buckets = series.Aggregate(s.samples, s.key.TimeFrame, s.now())
	s.summary = series.Summarize(s.samples, s.buckets)
}

func (s *Session) viewLocked() View {
	return View{
		Key:         s.key,
		State:       s.state,
		Buckets:     s.buckets,
		Summary:     s.summary,
		SampleCount: len(s.samples),
		LastUpdated: s.lastUpdated,
		Stale:       s.stale,
		FromCache:   s.fromCache,
		Err:         s.lastErr,
	}
}
