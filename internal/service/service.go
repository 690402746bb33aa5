package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spreadwatch/internal/alerting"
	"spreadwatch/internal/fetcher"
	"spreadwatch/internal/logging"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/series"
	"spreadwatch/internal/session"
)

const updateBuffer = 16

// ReportFunc receives every published view.
type ReportFunc func(view session.View)

// Options wire a Service.
type Options struct {
	Fetcher fetcher.SampleFetcher
	Cache   session.Cache
	Policy  session.Policy
	Monitor *alerting.Monitor
	Report  ReportFunc
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service runs the session for one watched key, reports its views and evaluates alerts.
type Service struct {
	session *session.Session
	monitor *alerting.Monitor
	report  ReportFunc
	logger  zerolog.Logger
	updates chan session.View
}

// New constructs the watch service.
func New(opts Options, logger zerolog.Logger) (*Service, error) {
	s := &Service{
		monitor: opts.Monitor,
		report:  opts.Report,
		logger:  logging.Component(logger, "service"),
		updates: make(chan session.View, updateBuffer),
	}
	sess, err := session.New(opts.Fetcher, opts.Cache, logger, session.Options{
		Policy:   opts.Policy,
		Metrics:  opts.Metrics,
		Now:      opts.Now,
		OnUpdate: s.publish,
	})
	if err != nil {
		return nil, err
	}
	s.session = sess
	return s, nil
}

// Session exposes the underlying orchestrator.
func (s *Service) Session() *session.Session {
	return s.session
}

// Run watches key until ctx is cancelled.
func (s *Service) Run(ctx context.Context, key series.Key) error {
	if err := s.session.Start(ctx, key); err != nil {
		return err
	}
	defer s.session.Close()

	s.logger.Info().Str("key", key.String()).Msg("watching")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("key", key.String()).Msg("watch stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case view := <-s.updates:
			s.handle(ctx, view)
		}
	}
}

// Once performs a single load and fetch for key and evaluates alerts on the result.
func (s *Service) Once(ctx context.Context, key series.Key) (session.View, error) {
	view, err := s.session.Sync(ctx, key)
	if err != nil {
		return view, err
	}
	s.drain()
	s.observe(ctx, view)
	return view, nil
}

func (s *Service) handle(ctx context.Context, view session.View) {
	if s.report != nil {
		s.report(view)
	}
	s.observe(ctx, view)
}

func (s *Service) observe(ctx context.Context, view session.View) {
	if s.monitor == nil || view.State != session.StateReady || view.Stale {
		return
	}
	sent, err := s.monitor.Observe(ctx, view.Key, s.session.Samples())
	if err != nil {
		s.logger.Error().Err(err).Str("key", view.Key.String()).Msg("failed to send alert")
		return
	}
	if sent {
		s.logger.Info().Str("key", view.Key.String()).
			Str("spread_pct", decimal.NewFromFloat(view.Summary.Current).StringFixed(4)).
			Msg("alert dispatched")
	}
}

// publish is called synchronously by the session; slow consumers lose intermediate views.
func (s *Service) publish(view session.View) {
	select {
	case s.updates <- view:
	default:
		s.logger.Debug().Str("key", view.Key.String()).Str("state", string(view.State)).Msg("dropped view update")
	}
}

func (s *Service) drain() {
	for {
		select {
		case <-s.updates:
		default:
			return
		}
	}
}
