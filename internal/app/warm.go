package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spreadwatch/internal/cache"
	"spreadwatch/internal/series"
)

// Warm fetches one symbol and pair for several time frames so later sessions start from cache.
func (a *App) Warm(ctx context.Context, opts WarmOptions) error {
	timeFrames, err := a.warmTimeFrames(opts.TimeFrames)
	if err != nil {
		return err
	}

	keys := make([]series.Key, 0, len(timeFrames))
	for _, tf := range timeFrames {
		key, err := series.ParseKey(opts.Symbol, opts.Pair, string(tf))
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	var (
		store      *cache.Store
		closeStore func()
	)
	if opts.DryRun {
		a.Logger.Warn().Msg("warm dry-run: nothing is persisted")
		store, closeStore = a.openScratchStore()
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
	}
	defer closeStore()

	svc, err := a.newService(a.newClient(), store, nil, nil)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		view, err := svc.Once(ctx, key)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("key", key.String()).Msg("warm failed")
			continue
		}
		if view.SampleCount > 0 && !opts.DryRun {
			if _, ok := store.Get(ctx, key); !ok {
				failed++
				a.Logger.Error().Str("key", key.String()).Msg("warmed entry was not persisted")
				continue
			}
		}
		processed++
		fmt.Fprintf(a.Out, "%s\tsamples=%d\tbuckets=%d%s\n", key, view.SampleCount, len(view.Buckets), freshness(view))
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("warm finished")
	if failed > 0 {
		return errors.New("some time frames failed to warm, check the logs")
	}
	return nil
}

// warmTimeFrames dedups the requested frames and keeps them within the cache soft cap,
// since each write evicts down to that cap.
func (a *App) warmTimeFrames(requested []series.TimeFrame) ([]series.TimeFrame, error) {
	limit := a.Config.Cache.SoftCap
	if len(requested) == 0 {
		all := series.TimeFrames()
		if limit > 0 && len(all) > limit {
			a.Logger.Info().Int("soft_cap", limit).
				Str("skipped", joinTimeFrames(all[limit:])).
				Msg("warming only as many time frames as the cache keeps")
			all = all[:limit]
		}
		return all, nil
	}

	seen := make(map[series.TimeFrame]struct{}, len(requested))
	out := make([]series.TimeFrame, 0, len(requested))
	for _, tf := range requested {
		if _, ok := seen[tf]; ok {
			continue
		}
		seen[tf] = struct{}{}
		out = append(out, tf)
	}
	if limit > 0 && len(out) > limit {
		return nil, fmt.Errorf("cannot warm %d time frames, the cache keeps at most %d entries (cache.soft_cap)", len(out), limit)
	}
	return out, nil
}

func joinTimeFrames(tfs []series.TimeFrame) string {
	parts := make([]string, len(tfs))
	for i, tf := range tfs {
		parts[i] = string(tf)
	}
	return strings.Join(parts, ",")
}
