package series

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmpty(t *testing.T) {
	buckets := Aggregate(nil, TimeFrame1m, time.UnixMilli(1_000_000))
	require.NotNil(t, buckets)
	assert.Empty(t, buckets)
}

func TestAggregateSameMillisecondAveraged(t *testing.T) {
	samples := []Sample{
		{CreatedAt: 1000, Difference: 0.1},
		{CreatedAt: 1000, Difference: 0.3},
	}

	buckets := Aggregate(samples, TimeFrame1m, time.UnixMilli(120_000))
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(0), buckets[0].BucketStart)
	assert.InDelta(t, 0.2, buckets[0].MeanDifference, 1e-12)
	assert.Equal(t, 2, buckets[0].Count)
}

func TestAggregateSingleSample(t *testing.T) {
	samples := []Sample{{CreatedAt: 3_700_000, Difference: -0.5}}

	buckets := Aggregate(samples, TimeFrame1h, time.UnixMilli(10_000_000))
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(3_600_000), buckets[0].BucketStart)
	assert.Equal(t, -0.5, buckets[0].MeanDifference)
}

func TestAggregateSortsAndSkipsGaps(t *testing.T) {
	samples := []Sample{
		{CreatedAt: 250_000, Difference: 4},
		{CreatedAt: 10_000, Difference: 1},
		{CreatedAt: 70_000, Difference: 2},
		{CreatedAt: 110_000, Difference: 4},
	}

	buckets := Aggregate(samples, TimeFrame1m, time.UnixMilli(300_000))
	require.Len(t, buckets, 3)
	assert.Equal(t, []int64{0, 60_000, 240_000}, []int64{buckets[0].BucketStart, buckets[1].BucketStart, buckets[2].BucketStart})
	assert.Equal(t, 3.0, buckets[1].MeanDifference)
}

func TestAggregateUnknownTimeFrameUsesMinute(t *testing.T) {
	samples := []Sample{{CreatedAt: 59_999, Difference: 1}, {CreatedAt: 60_000, Difference: 2}}

	buckets := Aggregate(samples, TimeFrame("2w"), time.UnixMilli(200_000))
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(60_000), buckets[1].BucketStart)
}

func TestAggregateIgnoresSamplesPastTrailingEdge(t *testing.T) {
	samples := []Sample{{CreatedAt: 30_000, Difference: 1}, {CreatedAt: 600_000, Difference: 9}}

	buckets := Aggregate(samples, TimeFrame1m, time.UnixMilli(90_000))
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(0), buckets[0].BucketStart)
}

func TestAggregatePropertiesOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.UnixMilli(50_000_000)

	for _, tf := range TimeFrames() {
		samples := make([]Sample, 500)
		for i := range samples {
			samples[i] = Sample{
				CreatedAt:  rng.Int63n(now.UnixMilli()),
				Difference: rng.Float64()*2 - 1,
			}
		}

		first := Aggregate(samples, tf, now)
		second := Aggregate(samples, tf, now)
		assert.Equal(t, first, second, "aggregate must be idempotent for %s", tf)

		total := 0
		for i, b := range first {
			assert.Positive(t, b.Count)
			assert.Zero(t, b.BucketStart%tf.WidthMillis())
			if i > 0 {
				assert.Greater(t, b.BucketStart, first[i-1].BucketStart)
			}
			total += b.Count
		}
		assert.Equal(t, len(samples), total)
	}
}

func TestFloorDivNegative(t *testing.T) {
	assert.Equal(t, int64(-1), floorDiv(-1, 60_000))
	assert.Equal(t, int64(0), floorDiv(59_999, 60_000))
	assert.Equal(t, int64(-1), floorDiv(-60_000, 60_000))
}
