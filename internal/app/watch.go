package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"spreadwatch/internal/session"
)

// Watch runs the session for one key until interrupted, printing every update.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if addr := a.Config.Metrics.Listen; addr != "" {
		stop := a.serveMetrics(addr)
		defer stop()
	}

	svc, err := a.newService(a.newClient(), store, a.newMonitor(), a.printUpdate)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("key", opts.Key.String()).
		Dur("refresh", a.Config.Series.RefreshInterval(opts.Key.TimeFrame)).
		Msg("starting watch")
	if err := svc.Run(ctx, opts.Key); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch stopped")
	return nil
}

func (a *App) printUpdate(view session.View) {
	if view.State == session.StateLoading || view.State == session.StateFetching {
		return
	}
	updated := "-"
	if !view.LastUpdated.IsZero() {
		updated = view.LastUpdated.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(a.Out, "%s\t%s\t%s\tsamples=%d\tbuckets=%d\tcurrent=%s%%\tmax=%s%%%s\n",
		updated,
		view.Key,
		view.State,
		view.SampleCount,
		len(view.Buckets),
		formatPct(view.Summary.Current),
		formatPct(view.Summary.Max),
		freshness(view),
	)
}

func (a *App) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
