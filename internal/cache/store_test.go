package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadwatch/internal/metrics"
	"spreadwatch/internal/series"
	"spreadwatch/internal/storage"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func testKey(symbol string) series.Key {
	return series.Key{Symbol: symbol, Exchange1: "paradex", Exchange2: "backpack", TimeFrame: series.TimeFrame1h}
}

func makeSamples(n int, exchangeLen int) []series.Sample {
	buy := strings.Repeat("b", exchangeLen)
	sell := strings.Repeat("s", exchangeLen)
	out := make([]series.Sample, n)
	for i := range out {
		out[i] = series.Sample{
			CreatedAt:    int64(1_700_000_000_000 + i*1000),
			Difference:   float64(i%50) / 100,
			BuyExchange:  buy,
			SellExchange: sell,
		}
	}
	return out
}

func newTestStore(t *testing.T, medium storage.Medium, opts Options) (*Store, *fakeClock) {
	t.Helper()
	clock := newClock()
	return NewStore(medium, opts, zerolog.Nop(), WithClock(clock.Now), WithMetrics(metrics.New())), clock
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, storage.NewMemory(), DefaultOptions())
	key := testKey("BTC")

	_, ok := store.Get(ctx, key)
	assert.False(t, ok)

	price := 64000.5
	in := []series.Sample{
		{CreatedAt: 2000, Difference: 0.2, BuyExchange: "paradex", SellExchange: "backpack", BuyPrice: &price},
		{CreatedAt: 1000, Difference: 0.1},
	}
	require.NoError(t, store.Put(ctx, key, in))

	got, ok := store.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].CreatedAt)
	assert.Equal(t, int64(2000), got[1].CreatedAt)
	require.NotNil(t, got[1].BuyPrice)
	assert.Equal(t, price, *got[1].BuyPrice)
	assert.Nil(t, got[1].SellPrice)
}

func TestPutStoresTimeOrderAndKeepsCallerSlice(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, storage.NewMemory(), DefaultOptions())
	key := testKey("SOL")

	in := []series.Sample{
		{CreatedAt: 3000, Difference: 0.3},
		{CreatedAt: 1000, Difference: 0.1},
		{CreatedAt: 2000, Difference: 0.2},
	}
	require.NoError(t, store.Put(ctx, key, in))

	got, ok := store.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 3)
	for i, want := range []int64{1000, 2000, 3000} {
		assert.Equal(t, want, got[i].CreatedAt)
	}
	assert.Equal(t, int64(3000), in[0].CreatedAt, "arrival order of the input is preserved")
	assert.ElementsMatch(t, in, got)
}

func TestPutEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	store, _ := newTestStore(t, medium, DefaultOptions())

	require.NoError(t, store.Put(ctx, testKey("BTC"), nil))
	keys, err := medium.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPutHalvesOversizedEntry(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, storage.NewMemory(), DefaultOptions())
	key := testKey("ETH")

	// roughly 3 MB of samples against a 2 MiB entry ceiling
	in := makeSamples(3000, 500)
	require.NoError(t, store.Put(ctx, key, in))

	got, ok := store.Get(ctx, key)
	require.True(t, ok)
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), len(in))
	assert.Equal(t, in[len(in)-1].CreatedAt, got[len(got)-1].CreatedAt, "newest samples survive")
}

func TestPutTooLargeAfterHalving(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.EntryCeilingBytes = 1024
	store, _ := newTestStore(t, storage.NewMemory(), opts)

	err := store.Put(ctx, testKey("ETH"), makeSamples(40, 200))
	require.ErrorIs(t, err, ErrEntryTooLarge)

	_, ok := store.Get(ctx, testKey("ETH"))
	assert.False(t, ok)
}

func TestPutRetriesWithEmergencyRatioWhenQuotaFull(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	medium := storage.WithQuota(storage.NewMemory(), 12*1024)
	store, _ := newTestStore(t, medium, opts)
	key := testKey("SOL")

	in := makeSamples(100, 100)
	require.NoError(t, store.Put(ctx, key, in))

	got, ok := store.Get(ctx, key)
	require.True(t, ok)
	assert.Len(t, got, 30)
	assert.Equal(t, in[99].CreatedAt, got[29].CreatedAt)
}

func TestPutFailsWhenRetryDoesNotFit(t *testing.T) {
	ctx := context.Background()
	medium := storage.WithQuota(storage.NewMemory(), 1024)
	store, _ := newTestStore(t, medium, DefaultOptions())

	err := store.Put(ctx, testKey("SOL"), makeSamples(100, 100))
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)

	_, ok := store.Get(ctx, testKey("SOL"))
	assert.False(t, ok)
}

func TestGetDropsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	store, _ := newTestStore(t, medium, DefaultOptions())
	key := testKey("BTC")

	require.NoError(t, store.Put(ctx, key, makeSamples(5, 4)))
	require.NoError(t, medium.Write(ctx, store.keys.data(key), []byte("{not json")))

	_, ok := store.Get(ctx, key)
	assert.False(t, ok)

	keys, err := medium.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "payload and metadata are both removed")
}

func TestGetRejectsPayloadForAnotherKey(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	store, _ := newTestStore(t, medium, DefaultOptions())

	raw, err := encodePayload(testKey("ETH"), makeSamples(3, 4))
	require.NoError(t, err)
	require.NoError(t, medium.Write(ctx, store.keys.data(testKey("BTC")), raw))

	_, ok := store.Get(ctx, testKey("BTC"))
	assert.False(t, ok)
}

func TestSoftCapEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, storage.NewMemory(), DefaultOptions())

	for i := 0; i < 6; i++ {
		clock.Advance(time.Minute)
		require.NoError(t, store.Put(ctx, testKey(fmt.Sprintf("SYM%d", i)), makeSamples(5, 4)))
	}

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	_, ok := store.Get(ctx, testKey("SYM0"))
	assert.False(t, ok, "oldest entry is evicted")
	for i := 1; i < 6; i++ {
		_, ok := store.Get(ctx, testKey(fmt.Sprintf("SYM%d", i)))
		assert.True(t, ok, "SYM%d kept", i)
	}
}

func TestTouchRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, storage.NewMemory(), DefaultOptions())

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		require.NoError(t, store.Put(ctx, testKey(fmt.Sprintf("SYM%d", i)), makeSamples(5, 4)))
	}
	clock.Advance(time.Minute)
	require.NoError(t, store.Touch(ctx, testKey("SYM0")))

	clock.Advance(time.Minute)
	require.NoError(t, store.Put(ctx, testKey("NEW"), makeSamples(5, 4)))

	_, ok := store.Get(ctx, testKey("SYM0"))
	assert.True(t, ok)
	_, ok = store.Get(ctx, testKey("SYM1"))
	assert.False(t, ok)
}

func TestTouchMissingEntry(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	store, _ := newTestStore(t, medium, DefaultOptions())

	require.NoError(t, store.Touch(ctx, testKey("NONE")))
	keys, err := medium.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTouchSynthesizesMissingMetadata(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	store, _ := newTestStore(t, medium, DefaultOptions())
	key := testKey("BTC")

	require.NoError(t, store.Put(ctx, key, makeSamples(5, 4)))
	require.NoError(t, medium.Remove(ctx, store.keys.meta(key)))
	require.NoError(t, store.Touch(ctx, key))

	meta, ok := readMeta(ctx, medium, store.keys.meta(key))
	require.True(t, ok)
	assert.Equal(t, key, meta.Key)
	assert.Positive(t, meta.Size)
	assert.Equal(t, newClock().Now().UnixMilli(), meta.LastAccess)
}

func TestForcedReclaimKeepsFloor(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, storage.NewMemory(), DefaultOptions())

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		require.NoError(t, store.Put(ctx, testKey(fmt.Sprintf("SYM%d", i)), makeSamples(5, 4)))
	}

	evicted, err := store.Reclaim(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, evicted)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SYM4:paradex_backpack:1h", entries[0].ID)
	assert.Equal(t, "SYM3:paradex_backpack:1h", entries[1].ID)
}

func TestGlobalCeilingForcesReclaim(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.GlobalCeilingBytes = 20 * 1024
	store, clock := newTestStore(t, storage.NewMemory(), opts)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Minute)
		require.NoError(t, store.Put(ctx, testKey(fmt.Sprintf("SYM%d", i)), makeSamples(30, 100)))
	}

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 3)
	_, ok := store.Get(ctx, testKey("SYM3"))
	assert.True(t, ok, "entry being written survives forced reclaim")
}

func TestReclaimRanksMissingMetadataFirstAndDropsOrphans(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	opts := DefaultOptions()
	opts.SoftCap = 2
	store, clock := newTestStore(t, medium, opts)

	for _, sym := range []string{"A", "B"} {
		clock.Advance(time.Minute)
		require.NoError(t, store.Put(ctx, testKey(sym), makeSamples(5, 4)))
	}
	// B loses its metadata, so it ranks oldest
	require.NoError(t, medium.Remove(ctx, store.keys.meta(testKey("B"))))
	require.NoError(t, medium.Write(ctx, store.keys.meta(testKey("GHOST")), []byte(`{}`)))

	clock.Advance(time.Minute)
	raw, err := encodePayload(testKey("C"), makeSamples(5, 4))
	require.NoError(t, err)
	require.NoError(t, medium.Write(ctx, store.keys.data(testKey("C")), raw))
	require.NoError(t, store.Touch(ctx, testKey("C")))

	evicted, err := store.Reclaim(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, ok := store.Get(ctx, testKey("B"))
	assert.False(t, ok)
	_, err = medium.Read(ctx, store.keys.meta(testKey("GHOST")))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClearRemovesNamespaceOnly(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	store, _ := newTestStore(t, medium, DefaultOptions())

	require.NoError(t, medium.Write(ctx, "other:data:x", []byte("keep")))
	require.NoError(t, store.Put(ctx, testKey("BTC"), makeSamples(5, 4)))
	require.NoError(t, store.Put(ctx, testKey("ETH"), makeSamples(5, 4)))

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := medium.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other:data:x"}, keys)
}
