package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Quota caps the total size of a wrapped medium. Writes that would push Size past
// the limit fail with ErrQuotaExceeded, the way a browser rejects a full localStorage.
type Quota struct {
	Medium

	limit int64
	mu    sync.Mutex
}

// WithQuota wraps m with a byte limit. A non-positive limit returns m unchanged.
func WithQuota(m Medium, limit int64) Medium {
	if limit <= 0 {
		return m
	}
	return &Quota{Medium: m, limit: limit}
}

// Limit returns the configured byte limit.
func (q *Quota) Limit() int64 {
	return q.limit
}

func (q *Quota) Write(ctx context.Context, key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	used, err := q.Medium.Size(ctx)
	if err != nil {
		return fmt.Errorf("quota size check: %w", err)
	}

	var replaced int64
	old, err := q.Medium.Read(ctx, key)
	switch {
	case err == nil:
		replaced = int64(len(key) + len(old))
	case errors.Is(err, ErrNotFound):
	default:
		return fmt.Errorf("quota read existing: %w", err)
	}

	if used-replaced+int64(len(key)+len(value)) > q.limit {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrQuotaExceeded, len(value), used, q.limit)
	}
	return q.Medium.Write(ctx, key, value)
}
