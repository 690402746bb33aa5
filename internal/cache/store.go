package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spreadwatch/internal/logging"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/series"
	"spreadwatch/internal/storage"
)

// Store persists one sample set per series key on a size-limited medium.
// Reads fail soft: anything unreadable is treated as a miss.
type Store struct {
	medium  storage.Medium
	opts    Options
	keys    keyspace
	evictor *Evictor
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithClock overrides the clock used for access times.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches counters.
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore wires a store and its evictor over medium.
func NewStore(medium storage.Medium, opts Options, logger zerolog.Logger, options ...StoreOption) *Store {
	if opts.Namespace == "" {
		opts.Namespace = DefaultOptions().Namespace
	}
	s := &Store{
		medium: medium,
		opts:   opts,
		keys:   keyspace{ns: opts.Namespace},
		logger: logging.Component(logger, "cache"),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.evictor = NewEvictor(medium, opts, logger, s.metrics)
	return s
}

// Get loads the persisted samples for key.
func (s *Store) Get(ctx context.Context, key series.Key) ([]series.Sample, bool) {
	dataKey := s.keys.data(key)
	raw, err := s.medium.Read(ctx, dataKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("cache read failed")
		}
		s.metrics.CacheLookup("miss")
		return nil, false
	}

	samples, err := decodePayload(key, raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("dropping unreadable cache entry")
		if rmErr := s.medium.Remove(ctx, dataKey, s.keys.meta(key)); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("key", key.String()).Msg("failed to drop cache entry")
		}
		s.metrics.CacheLookup("corrupt")
		return nil, false
	}

	s.metrics.CacheLookup("hit")
	return samples, true
}

// Put persists samples for key. The entry is stored sorted ascending by CreatedAt, so Get
// returns the same samples in time order rather than arrival order; the caller's slice is
// left untouched. Oversized sets are halved (newest kept) until they fit the entry ceiling;
// a full medium triggers one retry with the emergency keep ratio.
func (s *Store) Put(ctx context.Context, key series.Key, samples []series.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := series.SortedByTime(samples)
	raw, err := encodePayload(key, kept)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	for s.opts.EntryCeilingBytes > 0 && int64(len(raw)) > s.opts.EntryCeilingBytes {
		half := len(kept) / 2
		if half < s.opts.MinSamples || half == 0 {
			s.metrics.CacheWrite("too_large")
			s.logger.Warn().Str("key", key.String()).Int("samples", len(kept)).Int("bytes", len(raw)).Msg("cache entry too large, skipping")
			return fmt.Errorf("%s: %w", key, ErrEntryTooLarge)
		}
		kept = series.MostRecent(kept, half)
		s.metrics.Truncation("halve")
		if raw, err = encodePayload(key, kept); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
	}
	if len(kept) < len(samples) {
		s.logger.Debug().Str("key", key.String()).Int("from", len(samples)).Int("to", len(kept)).Msg("reduced cache entry")
	}

	dataKey := s.keys.data(key)
	if s.opts.GlobalCeilingBytes > 0 {
		usage, err := s.usage(ctx, dataKey)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache usage unknown")
		} else if usage+int64(len(raw)) > s.opts.GlobalCeilingBytes {
			if _, err := s.evictor.reclaim(ctx, true, dataKey); err != nil {
				s.logger.Warn().Err(err).Msg("forced reclaim failed")
			}
		}
	}

	err = s.write(ctx, key, raw, len(kept))
	if errors.Is(err, storage.ErrQuotaExceeded) {
		keep := int(math.Ceil(float64(len(kept)) * s.opts.EmergencyKeepRatio))
		if keep < 1 {
			keep = 1
		}
		kept = series.MostRecent(kept, keep)
		s.metrics.Truncation("emergency")
		s.logger.Warn().Str("key", key.String()).Int("samples", len(kept)).Msg("storage full, retrying with fewer samples")
		if raw, err = encodePayload(key, kept); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		err = s.write(ctx, key, raw, len(kept))
	}
	if err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			s.metrics.CacheWrite("quota")
		} else {
			s.metrics.CacheWrite("error")
		}
		return fmt.Errorf("persist %s: %w", key, err)
	}
	s.metrics.CacheWrite("ok")

	if _, err := s.evictor.reclaim(ctx, false, dataKey); err != nil {
		s.logger.Warn().Err(err).Msg("reclaim after write failed")
	}
	return nil
}

// Touch marks key as just used without rewriting its samples.
func (s *Store) Touch(ctx context.Context, key series.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaKey := s.keys.meta(key)
	meta, ok := readMeta(ctx, s.medium, metaKey)
	if !ok {
		raw, err := s.medium.Read(ctx, s.keys.data(key))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("touch %s: %w", key, err)
		}
		meta = entryMeta{Key: key, Size: int64(len(raw)), StoredAt: s.now().UnixMilli()}
	}
	meta.LastAccess = s.now().UnixMilli()
	if err := writeMeta(ctx, s.medium, metaKey, meta); err != nil {
		return fmt.Errorf("touch %s: %w", key, err)
	}
	return nil
}

// Reclaim runs the evictor.
func (s *Store) Reclaim(ctx context.Context, forced bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictor.Reclaim(ctx, forced)
}

// Clear removes every key in the namespace and returns the number of entries dropped.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.medium.Keys(ctx, s.keys.root())
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}
	if len(all) == 0 {
		return 0, nil
	}
	entries := 0
	dataPrefix := s.keys.dataPrefix()
	for _, k := range all {
		if strings.HasPrefix(k, dataPrefix) {
			entries++
		}
	}
	if err := s.medium.Remove(ctx, all...); err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info().Int("entries", entries).Msg("cache cleared")
	return entries, nil
}

// Entries lists persisted entries, most recently used first.
func (s *Store) Entries(ctx context.Context) ([]EntryInfo, error) {
	dataKeys, err := s.medium.Keys(ctx, s.keys.dataPrefix())
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	out := make([]EntryInfo, 0, len(dataKeys))
	for _, dk := range dataKeys {
		info := EntryInfo{ID: s.keys.id(dk)}
		if meta, ok := readMeta(ctx, s.medium, s.keys.metaFor(dk)); ok {
			info.HasMeta = true
			info.Key = meta.Key
			info.Size = meta.Size
			info.Samples = meta.Samples
			info.LastAccess = time.UnixMilli(meta.LastAccess).UTC()
		} else if raw, err := s.medium.Read(ctx, dk); err == nil {
			info.Size = int64(len(raw))
		}
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastAccess.Equal(out[j].LastAccess) {
			return out[i].LastAccess.After(out[j].LastAccess)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) write(ctx context.Context, key series.Key, raw []byte, count int) error {
	if err := s.medium.Write(ctx, s.keys.data(key), raw); err != nil {
		return err
	}
	now := s.now().UnixMilli()
	meta := entryMeta{Key: key, LastAccess: now, Size: int64(len(raw)), Samples: count, StoredAt: now}
	if err := writeMeta(ctx, s.medium, s.keys.meta(key), meta); err != nil {
		// the payload stays; without metadata it ranks oldest for eviction
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to write cache metadata")
	}
	return nil
}

// usage sums payload sizes of all entries except exclude.
func (s *Store) usage(ctx context.Context, exclude string) (int64, error) {
	dataKeys, err := s.medium.Keys(ctx, s.keys.dataPrefix())
	if err != nil {
		return 0, err
	}
	var total int64
	for _, dk := range dataKeys {
		if dk == exclude {
			continue
		}
		if meta, ok := readMeta(ctx, s.medium, s.keys.metaFor(dk)); ok && meta.Size > 0 {
			total += meta.Size
			continue
		}
		if raw, err := s.medium.Read(ctx, dk); err == nil {
			total += int64(len(raw))
		}
	}
	return total, nil
}
