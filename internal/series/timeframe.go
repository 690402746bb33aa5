package series

import (
	"fmt"
	"strings"
	"time"
)

// TimeFrame is the selected aggregation granularity, e.g. "1m" or "24h".
type TimeFrame string

const (
	TimeFrame1m  TimeFrame = "1m"
	TimeFrame5m  TimeFrame = "5m"
	TimeFrame15m TimeFrame = "15m"
	TimeFrame30m TimeFrame = "30m"
	TimeFrame1h  TimeFrame = "1h"
	TimeFrame3h  TimeFrame = "3h"
	TimeFrame6h  TimeFrame = "6h"
	TimeFrame24h TimeFrame = "24h"
)

// DefaultBucketWidth applies to unrecognised time frames.
const DefaultBucketWidth = time.Minute

var bucketWidths = map[TimeFrame]time.Duration{
	TimeFrame1m:  time.Minute,
	TimeFrame5m:  5 * time.Minute,
	TimeFrame15m: 15 * time.Minute,
	TimeFrame30m: 30 * time.Minute,
	TimeFrame1h:  time.Hour,
	TimeFrame3h:  3 * time.Hour,
	TimeFrame6h:  6 * time.Hour,
	TimeFrame24h: 24 * time.Hour,
}

var orderedTimeFrames = []TimeFrame{
	TimeFrame1m, TimeFrame5m, TimeFrame15m, TimeFrame30m,
	TimeFrame1h, TimeFrame3h, TimeFrame6h, TimeFrame24h,
}

// TimeFrames lists the recognised time frames from finest to coarsest.
func TimeFrames() []TimeFrame {
	out := make([]TimeFrame, len(orderedTimeFrames))
	copy(out, orderedTimeFrames)
	return out
}

// ParseTimeFrame validates a time frame name.
func ParseTimeFrame(v string) (TimeFrame, error) {
	tf := TimeFrame(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := bucketWidths[tf]; !ok {
		return "", fmt.Errorf("unknown time frame %q", v)
	}
	return tf, nil
}

// Known reports whether tf is in the lookup table.
func (tf TimeFrame) Known() bool {
	_, ok := bucketWidths[tf]
	return ok
}

// Width returns the bucket width for tf.
func (tf TimeFrame) Width() time.Duration {
	if w, ok := bucketWidths[tf]; ok {
		return w
	}
	return DefaultBucketWidth
}

// WidthMillis returns the bucket width in milliseconds.
func (tf TimeFrame) WidthMillis() int64 {
	return tf.Width().Milliseconds()
}
