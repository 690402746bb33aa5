package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createCacheEntriesSQL = `CREATE TABLE IF NOT EXISTS cache_entries (
        key        TEXT PRIMARY KEY,
        value      BYTEA NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	readEntrySQL = `SELECT value FROM cache_entries WHERE key = $1;`

	upsertEntrySQL = `INSERT INTO cache_entries (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	deleteEntriesSQL = `DELETE FROM cache_entries WHERE key = ANY($1);`

	listKeysSQL = `SELECT key FROM cache_entries
    WHERE left(key, length($1)) = $1
    ORDER BY key;`

	totalSizeSQL = `SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0) FROM cache_entries;`
)

// SQLSTATE codes treated as the database refusing more data.
var quotaSQLStates = map[string]struct{}{
	"53100": {}, // disk_full
	"53200": {}, // out_of_memory
	"54000": {}, // program_limit_exceeded
}

// Postgres keeps entries in the cache_entries table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a medium and ensures the table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the cache_entries table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createCacheEntriesSQL); err != nil {
		return fmt.Errorf("create cache_entries: %w", err)
	}
	return nil
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

func (p *Postgres) Read(ctx context.Context, key string) ([]byte, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	var value []byte
	if scanErr := pool.QueryRow(ctx, readEntrySQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read entry %s: %w", key, scanErr)
	}
	return value, nil
}

func (p *Postgres) Write(ctx context.Context, key string, value []byte) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertEntrySQL, key, value); execErr != nil {
		if isQuotaError(execErr) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, execErr)
		}
		return fmt.Errorf("upsert entry %s: %w", key, execErr)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEntriesSQL, keys); execErr != nil {
		return fmt.Errorf("delete entries: %w", execErr)
	}
	return nil
}

func (p *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listKeysSQL, prefix)
	if queryErr != nil {
		return nil, fmt.Errorf("list keys: %w", queryErr)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if scanErr := rows.Scan(&k); scanErr != nil {
			return nil, scanErr
		}
		keys = append(keys, k)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

func (p *Postgres) Size(ctx context.Context) (int64, error) {
	pool, err := p.getPool()
	if err != nil {
		return 0, err
	}
	var total int64
	if scanErr := pool.QueryRow(ctx, totalSizeSQL).Scan(&total); scanErr != nil {
		return 0, fmt.Errorf("total size: %w", scanErr)
	}
	return total, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

func isQuotaError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := quotaSQLStates[pgErr.Code]
	return ok
}

var _ Medium = (*Postgres)(nil)
