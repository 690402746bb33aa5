package cache

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"spreadwatch/internal/logging"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/storage"
)

// Evictor reclaims entries least recently used first.
type Evictor struct {
	medium  storage.Medium
	keys    keyspace
	softCap int
	floor   int
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type candidate struct {
	dataKey    string
	metaKey    string
	lastAccess int64
}

// NewEvictor builds an evictor for one namespace.
func NewEvictor(medium storage.Medium, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Evictor {
	return &Evictor{
		medium:  medium,
		keys:    keyspace{ns: opts.Namespace},
		softCap: opts.SoftCap,
		floor:   opts.ForcedFloor,
		logger:  logging.Component(logger, "cache_evictor"),
		metrics: m,
	}
}

// Reclaim deletes the oldest entries by last access. Normal mode trims to the soft cap,
// forced mode down to the floor. It returns the number of entries removed.
func (e *Evictor) Reclaim(ctx context.Context, forced bool) (int, error) {
	return e.reclaim(ctx, forced, "")
}

// reclaim never evicts the entry stored under keep.
func (e *Evictor) reclaim(ctx context.Context, forced bool, keep string) (int, error) {
	dataKeys, err := e.medium.Keys(ctx, e.keys.dataPrefix())
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}
	metaKeys, err := e.medium.Keys(ctx, e.keys.metaPrefix())
	if err != nil {
		return 0, fmt.Errorf("list cache metadata: %w", err)
	}

	present := make(map[string]struct{}, len(dataKeys))
	for _, dk := range dataKeys {
		present[e.keys.metaFor(dk)] = struct{}{}
	}
	orphans := make([]string, 0)
	for _, mk := range metaKeys {
		if _, ok := present[mk]; !ok {
			orphans = append(orphans, mk)
		}
	}
	if len(orphans) > 0 {
		if err := e.medium.Remove(ctx, orphans...); err != nil {
			e.logger.Warn().Err(err).Int("orphans", len(orphans)).Msg("failed to drop orphaned metadata")
		}
	}

	target, mode := e.softCap, "normal"
	if forced {
		target, mode = e.floor, "forced"
	}
	if len(dataKeys) <= target {
		return 0, nil
	}

	candidates := make([]candidate, 0, len(dataKeys))
	for _, dk := range dataKeys {
		c := candidate{dataKey: dk, metaKey: e.keys.metaFor(dk)}
		if meta, ok := readMeta(ctx, e.medium, c.metaKey); ok {
			c.lastAccess = meta.LastAccess
		}
		// entries without metadata keep lastAccess 0 and go first
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastAccess != candidates[j].lastAccess {
			return candidates[i].lastAccess < candidates[j].lastAccess
		}
		return candidates[i].dataKey < candidates[j].dataKey
	})

	excess := len(candidates) - target
	evicted := 0
	for _, c := range candidates {
		if evicted == excess {
			break
		}
		if c.dataKey == keep {
			continue
		}
		if err := e.medium.Remove(ctx, c.dataKey, c.metaKey); err != nil {
			e.metrics.Evicted(mode, evicted)
			return evicted, fmt.Errorf("evict %s: %w", e.keys.id(c.dataKey), err)
		}
		evicted++
		e.logger.Debug().Str("entry", e.keys.id(c.dataKey)).Str("mode", mode).Msg("evicted cache entry")
	}

	e.metrics.Evicted(mode, evicted)
	e.logger.Info().Str("mode", mode).Int("evicted", evicted).Int("remaining", len(candidates)-evicted).Msg("cache reclaimed")
	return evicted, nil
}
