package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"spreadwatch/internal/config"
	"spreadwatch/internal/series"
	"spreadwatch/internal/storage"
)

const payloadVersion = 1

var (
	// ErrEntryTooLarge means a sample set could not be reduced below the entry ceiling
	// without dropping under the minimum sample count.
	ErrEntryTooLarge = errors.New("cache: entry exceeds ceiling")
	errBadPayload    = errors.New("cache: unreadable payload")
)

// Options bound the persisted sample sets.
type Options struct {
	Namespace          string
	EntryCeilingBytes  int64
	GlobalCeilingBytes int64
	// MinSamples stops halving: a set is never cut below this many samples.
	MinSamples int
	// EmergencyKeepRatio is the share of samples kept when the medium reports a full quota.
	EmergencyKeepRatio float64
	SoftCap            int
	ForcedFloor        int
}

// DefaultOptions mirror the defaults in config.
func DefaultOptions() Options {
	return Options{
		Namespace:          "spreadwatch",
		EntryCeilingBytes:  2 << 20,
		GlobalCeilingBytes: 5 << 20,
		MinSamples:         10,
		EmergencyKeepRatio: 0.3,
		SoftCap:            5,
		ForcedFloor:        2,
	}
}

// OptionsFromConfig converts the cache configuration section.
func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		Namespace:          cfg.Namespace,
		EntryCeilingBytes:  cfg.EntryCeilingBytes,
		GlobalCeilingBytes: cfg.GlobalCeilingBytes,
		MinSamples:         cfg.MinSamples,
		EmergencyKeepRatio: cfg.EmergencyKeepRatio,
		SoftCap:            cfg.SoftCap,
		ForcedFloor:        cfg.ForcedFloor,
	}
}

// EntryInfo describes one persisted entry.
type EntryInfo struct {
	ID         string
	Key        series.Key
	Size       int64
	Samples    int
	LastAccess time.Time
	// HasMeta is false when the access metadata is missing.
	HasMeta bool
}

// entryMeta is stored next to each payload so LRU rank can change without rewriting samples.
type entryMeta struct {
	Key        series.Key `json:"key"`
	LastAccess int64      `json:"last_access"`
	Size       int64      `json:"size"`
	Samples    int        `json:"samples"`
	StoredAt   int64      `json:"stored_at"`
}

type payload struct {
	Version int             `json:"v"`
	Key     string          `json:"k"`
	Samples []series.Sample `json:"samples"`
}

// keyspace lays out "<ns>:data:<id>" and "<ns>:meta:<id>" keys.
type keyspace struct {
	ns string
}

func (k keyspace) root() string       { return k.ns + ":" }
func (k keyspace) dataPrefix() string { return k.ns + ":data:" }
func (k keyspace) metaPrefix() string { return k.ns + ":meta:" }

func (k keyspace) data(key series.Key) string { return k.dataPrefix() + key.String() }
func (k keyspace) meta(key series.Key) string { return k.metaPrefix() + key.String() }

func (k keyspace) id(dataKey string) string {
	return strings.TrimPrefix(dataKey, k.dataPrefix())
}

func (k keyspace) metaFor(dataKey string) string {
	return k.metaPrefix() + k.id(dataKey)
}

func encodePayload(key series.Key, samples []series.Sample) ([]byte, error) {
	return json.Marshal(payload{Version: payloadVersion, Key: key.String(), Samples: samples})
}

func decodePayload(key series.Key, data []byte) ([]series.Sample, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("%w: version %d", errBadPayload, p.Version)
	}
	if p.Key != key.String() {
		return nil, fmt.Errorf("%w: stored for %q", errBadPayload, p.Key)
	}
	if p.Samples == nil {
		p.Samples = []series.Sample{}
	}
	return p.Samples, nil
}

func readMeta(ctx context.Context, m storage.Medium, metaKey string) (entryMeta, bool) {
	raw, err := m.Read(ctx, metaKey)
	if err != nil {
		return entryMeta{}, false
	}
	var meta entryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return entryMeta{}, false
	}
	return meta, true
}

func writeMeta(ctx context.Context, m storage.Medium, metaKey string, meta entryMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return m.Write(ctx, metaKey, raw)
}
