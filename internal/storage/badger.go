package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// Badger persists entries on local disk so the cache survives restarts.
type Badger struct {
	db *badger.DB
}

// NewBadger opens (or creates) a badger database at path. An empty path keeps it in memory.
func NewBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger read %s: %w", key, err)
	}
	return value, nil
}

func (b *Badger) Write(ctx context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	if err != nil {
		return fmt.Errorf("badger write %s: %w", key, err)
	}
	return nil
}

func (b *Badger) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger remove: %w", err)
	}
	return nil
}

func (b *Badger) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := b.scan(prefix, func(item *badger.Item) {
		keys = append(keys, string(item.KeyCopy(nil)))
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys %s: %w", prefix, err)
	}
	return keys, nil
}

func (b *Badger) Size(ctx context.Context) (int64, error) {
	var total int64
	err := b.scan("", func(item *badger.Item) {
		total += int64(len(item.Key())) + item.ValueSize()
	})
	if err != nil {
		return 0, fmt.Errorf("badger size: %w", err)
	}
	return total, nil
}

func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Badger) scan(prefix string, fn func(item *badger.Item)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			fn(it.Item())
		}
		return nil
	})
}

var _ Medium = (*Badger)(nil)
