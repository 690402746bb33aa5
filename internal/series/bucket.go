package series

import (
	"time"

	"github.com/tidwall/btree"
)

// Bucket is one aggregation cell. BucketStart is epoch milliseconds and a multiple of the width.
type Bucket struct {
	BucketStart    int64   `json:"bucket_start"`
	MeanDifference float64 `json:"mean_difference"`
	Count          int     `json:"count"`
}

// Time returns the bucket start as a UTC time.
func (b Bucket) Time() time.Time {
	return time.UnixMilli(b.BucketStart).UTC()
}

type accumulator struct {
	sum   float64
	count int
}

// Aggregate downsamples samples into fixed-width buckets holding the mean difference.
// Buckets without samples are omitted and the result is ascending by BucketStart.
// now bounds the trailing edge: samples falling in a bucket after floor(now/width)*width are ignored.
func Aggregate(samples []Sample, tf TimeFrame, now time.Time) []Bucket {
	if len(samples) == 0 {
		return []Bucket{}
	}

	width := tf.WidthMillis()
	end := floorDiv(now.UnixMilli(), width)

	var cells btree.Map[int64, *accumulator]
	for _, s := range samples {
		idx := floorDiv(s.CreatedAt, width)
		if idx > end {
			continue
		}
		acc, ok := cells.Get(idx)
		if !ok {
			acc = &accumulator{}
			cells.Set(idx, acc)
		}
		acc.sum += s.Difference
		acc.count++
	}

	buckets := make([]Bucket, 0, cells.Len())
	cells.Scan(func(idx int64, acc *accumulator) bool {
		if acc.count > 0 {
			buckets = append(buckets, Bucket{
				BucketStart:    idx * width,
				MeanDifference: acc.sum / float64(acc.count),
				Count:          acc.count,
			})
		}
		return true
	})
	return buckets
}

func floorDiv(v, d int64) int64 {
	q := v / d
	if v%d != 0 && (v < 0) != (d < 0) {
		q--
	}
	return q
}
