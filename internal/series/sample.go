package series

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sample is one observed spread measurement. CreatedAt is epoch milliseconds.
type Sample struct {
	CreatedAt    int64    `json:"t"`
	Difference   float64  `json:"d"`
	BuyExchange  string   `json:"b,omitempty"`
	SellExchange string   `json:"s,omitempty"`
	BuyPrice     *float64 `json:"bp,omitempty"`
	SellPrice    *float64 `json:"sp,omitempty"`
}

// Key identifies one query shape: a symbol, an exchange pair and a time frame.
type Key struct {
	Symbol    string
	Exchange1 string
	Exchange2 string
	TimeFrame TimeFrame
}

// ParseKey builds a Key from a symbol, an exchange pair id ("paradex_backpack") and a time frame.
func ParseKey(symbol, pair, timeFrame string) (Key, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return Key{}, errors.New("symbol is required")
	}
	ex1, ex2, ok := strings.Cut(strings.TrimSpace(pair), "_")
	if !ok || ex1 == "" || ex2 == "" {
		return Key{}, fmt.Errorf("invalid exchange pair %q, expected <exchange1>_<exchange2>", pair)
	}
	tf, err := ParseTimeFrame(timeFrame)
	if err != nil {
		return Key{}, err
	}
	return Key{Symbol: symbol, Exchange1: ex1, Exchange2: ex2, TimeFrame: tf}, nil
}

// Pair returns the exchange pair id as understood by the spread API.
func (k Key) Pair() string {
	return k.Exchange1 + "_" + k.Exchange2
}

// String renders the key as "<symbol>:<pair>:<timeframe>".
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Symbol, k.Pair(), k.TimeFrame)
}

// Watermark returns the greatest CreatedAt in samples, or 0 when empty.
func Watermark(samples []Sample) int64 {
	var max int64
	for i, s := range samples {
		if i == 0 || s.CreatedAt > max {
			max = s.CreatedAt
		}
	}
	return max
}

// SortedByTime returns a copy of samples ordered ascending by CreatedAt.
// Ties keep their arrival order.
func SortedByTime(samples []Sample) []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// MostRecent returns the n newest samples by CreatedAt, oldest first.
func MostRecent(samples []Sample, n int) []Sample {
	if n <= 0 {
		return []Sample{}
	}
	sorted := SortedByTime(samples)
	if len(sorted) <= n {
		return sorted
	}
	return sorted[len(sorted)-n:]
}

// Latest returns the sample with the greatest CreatedAt.
func Latest(samples []Sample) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.CreatedAt >= latest.CreatedAt {
			latest = s
		}
	}
	return latest, true
}
