package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spreadwatch/internal/fetcher"
	"spreadwatch/internal/series"
)

// SimulateAlert runs the alert path once against a synthetic sample with the given spread.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	monitor := a.newMonitor()
	if monitor == nil {
		return errors.New("no alert channel configured")
	}
	if opts.SpreadPct == 0 {
		return errors.New("spread must be non-zero")
	}

	store, closeStore := a.openScratchStore()
	defer closeStore()

	sample := series.Sample{
		CreatedAt:    time.Now().UnixMilli(),
		Difference:   opts.SpreadPct,
		BuyExchange:  opts.Key.Exchange1,
		SellExchange: opts.Key.Exchange2,
	}
	svc, err := a.newService(&staticFetcher{samples: []series.Sample{sample}}, store, nil, nil)
	if err != nil {
		return err
	}
	view, err := svc.Once(ctx, opts.Key)
	if err != nil {
		return err
	}

	sent, err := monitor.Observe(ctx, opts.Key, svc.Session().Samples())
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	if !sent {
		fmt.Fprintf(a.Out, "spread %s%% is within threshold %s%%, no alert sent\n", formatPct(opts.SpreadPct), monitor.Threshold().StringFixed(4))
		return nil
	}
	fmt.Fprintf(a.Out, "simulated alert sent for %s at %s%% (%d sample)\n", view.Key, formatPct(opts.SpreadPct), view.SampleCount)
	return nil
}

type staticFetcher struct {
	samples []series.Sample
}

func (s *staticFetcher) FetchSamples(context.Context, fetcher.SampleQuery) ([]series.Sample, error) {
	return s.samples, nil
}

var _ fetcher.SampleFetcher = (*staticFetcher)(nil)
