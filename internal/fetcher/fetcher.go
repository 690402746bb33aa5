package fetcher

import (
	"context"
	"errors"
	"fmt"

	"spreadwatch/internal/series"
)

// ErrMalformedResponse marks a payload whose shape the client does not understand.
var ErrMalformedResponse = errors.New("malformed api response")

// APIError is a non-200 answer from the spread API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spread api error (%d)", e.Status)
	}
	return fmt.Sprintf("spread api error (%d): %s", e.Status, e.Message)
}

// SampleQuery asks for the samples of one key. Since, when set, limits the result
// to samples created after that epoch millisecond.
type SampleQuery struct {
	Key   series.Key
	Since *int64
}

// SampleFetcher retrieves spread samples.
type SampleFetcher interface {
	FetchSamples(ctx context.Context, q SampleQuery) ([]series.Sample, error)
}

// CatalogFetcher retrieves the lists used to pick a key.
type CatalogFetcher interface {
	FetchSymbols(ctx context.Context) ([]string, error)
	FetchExchangePairs(ctx context.Context) ([]ExchangePair, error)
	FetchLargestSpreads(ctx context.Context, tf series.TimeFrame) ([]LargestSpread, error)
}

// ExchangePair is one selectable venue pair, e.g. {"paradex_backpack", "Paradex - Backpack"}.
type ExchangePair struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PairExtremes holds the largest buy and sell spreads seen for one pair.
type PairExtremes struct {
	LargestBuy  float64 `json:"largest_buy"`
	LargestSell float64 `json:"largest_sell"`
}

// LargestSpread summarises the widest spread per symbol over a time range.
type LargestSpread struct {
	Symbol        string                  `json:"symbol"`
	MaxSpread     float64                 `json:"max_spread"`
	MaxPair       string                  `json:"max_pair"`
	FormattedPair string                  `json:"formatted_pair"`
	PairSpreads   map[string]PairExtremes `json:"pair_spreads"`
}
