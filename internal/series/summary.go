package series

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

const (
	maxStatsSamples  = 5000
	quantileAccuracy = 0.01
	outlierIQRFactor = 1.5
)

// Summary holds the headline figures shown next to a chart.
type Summary struct {
	Count int

	// Current is the difference of the newest sample.
	Current float64
	// Max is the largest bucket mean.
	Max float64

	Q1     float64
	Median float64
	Q3     float64
	// Low and High are the extremes after dropping values outside 1.5 IQR.
	Low  float64
	High float64
}

// Summarize computes the summary of a sample set and its bucketed view.
func Summarize(samples []Sample, buckets []Bucket) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	sum := Summary{Count: len(samples)}
	if latest, ok := Latest(samples); ok {
		sum.Current = latest.Difference
	}
	for i, b := range buckets {
		if i == 0 || b.MeanDifference > sum.Max {
			sum.Max = b.MeanDifference
		}
	}

	window := samples
	if len(window) > maxStatsSamples {
		window = MostRecent(window, maxStatsSamples)
	}

	sketch, err := ddsketch.NewDefaultDDSketch(quantileAccuracy)
	if err != nil {
		return sum
	}
	for _, s := range window {
		if math.IsNaN(s.Difference) || math.IsInf(s.Difference, 0) {
			continue
		}
		_ = sketch.Add(s.Difference)
	}
	if sketch.IsEmpty() {
		return sum
	}

	qs, err := sketch.GetValuesAtQuantiles([]float64{0.25, 0.5, 0.75})
	if err != nil {
		return sum
	}
	sum.Q1, sum.Median, sum.Q3 = qs[0], qs[1], qs[2]

	iqr := sum.Q3 - sum.Q1
	lower := sum.Q1 - outlierIQRFactor*iqr
	upper := sum.Q3 + outlierIQRFactor*iqr
	sum.Low, sum.High = math.Inf(1), math.Inf(-1)
	for _, s := range window {
		if s.Difference < lower || s.Difference > upper {
			continue
		}
		sum.Low = math.Min(sum.Low, s.Difference)
		sum.High = math.Max(sum.High, s.Difference)
	}
	if math.IsInf(sum.Low, 1) {
		lo, _ := sketch.GetMinValue()
		hi, _ := sketch.GetMaxValue()
		sum.Low, sum.High = lo, hi
	}
	return sum
}
