package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when the key does not exist.
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded is returned by Write when the medium refuses to hold more bytes.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Medium is a bounded persistent key-value area.
type Medium interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	// Remove deletes all given keys in one step. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Size approximates the bytes held, keys included.
	Size(ctx context.Context) (int64, error)
	Close() error
}
