package series

// Merge appends the part of delta that is strictly newer than the watermark of existing,
// then keeps only the retentionCap most recent samples. A non-positive cap disables trimming.
//
// Samples in delta at or before the watermark are dropped even when their values differ.
// Neither input is modified.
func Merge(existing, delta []Sample, retentionCap int) []Sample {
	if len(existing) == 0 {
		out := make([]Sample, len(delta))
		copy(out, delta)
		return capSamples(out, retentionCap)
	}

	watermark := Watermark(existing)
	out := make([]Sample, len(existing), len(existing)+len(delta))
	copy(out, existing)
	for _, s := range delta {
		if s.CreatedAt > watermark {
			out = append(out, s)
		}
	}
	return capSamples(out, retentionCap)
}

func capSamples(samples []Sample, retentionCap int) []Sample {
	if retentionCap <= 0 || len(samples) <= retentionCap {
		return samples
	}
	return MostRecent(samples, retentionCap)
}
