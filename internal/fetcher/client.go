package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"spreadwatch/internal/logging"
	"spreadwatch/internal/series"
)

const (
	samplesPath       = "/api/data"
	symbolsPath       = "/api/symbols"
	pairsPath         = "/api/exchange_pairs"
	largestPath       = "/api/largest_spreads_api"
	defaultUserAgent  = "spreadwatch/1.0"
	secondsCutoff     = 9_999_999_999
	maxResponseBytes  = 64 << 20
	defaultAPITimeout = 10 * time.Second
)

// ClientOptions parameterise the spread API client.
type ClientOptions struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the spread API over HTTP.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	group   singleflight.Group
}

// NewClient constructs an API client. A zero RequestsPerSecond disables throttling.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		opts:    opts,
		logger:  logging.Component(logger, "spread_client"),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchSamples retrieves samples for q, ascending by creation time.
func (c *Client) FetchSamples(ctx context.Context, q SampleQuery) ([]series.Sample, error) {
	params := url.Values{}
	params.Set("symbol", q.Key.Symbol)
	params.Set("exchange_pair", q.Key.Pair())
	params.Set("time_range", string(q.Key.TimeFrame))
	params.Set("sort_by", "created")
	params.Set("sort_order", "asc")
	if q.Since != nil && *q.Since > 0 {
		params.Set("since", strconv.FormatInt(*q.Since, 10))
	}

	body, err := c.get(ctx, samplesPath, params)
	if err != nil {
		return nil, err
	}

	var raw []apiSample
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode samples: %v", ErrMalformedResponse, err)
	}

	samples := make([]series.Sample, 0, len(raw))
	for i, r := range raw {
		s, err := r.toSample()
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ErrMalformedResponse, i, err)
		}
		samples = append(samples, s)
	}
	c.logger.Debug().Str("key", q.Key.String()).Int("samples", len(samples)).Msg("fetched samples")
	return samples, nil
}

// FetchSymbols lists the instruments known to the API, sorted.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	v, err, _ := c.group.Do(symbolsPath, func() (any, error) {
		body, err := c.get(ctx, symbolsPath, nil)
		if err != nil {
			return nil, err
		}
		var rows []struct {
			Symbol string `json:"symbol"`
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("%w: decode symbols: %v", ErrMalformedResponse, err)
		}
		symbols := make([]string, 0, len(rows))
		for _, r := range rows {
			if r.Symbol != "" {
				symbols = append(symbols, r.Symbol)
			}
		}
		sort.Strings(symbols)
		return symbols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// FetchExchangePairs lists the selectable exchange pairs.
func (c *Client) FetchExchangePairs(ctx context.Context) ([]ExchangePair, error) {
	v, err, _ := c.group.Do(pairsPath, func() (any, error) {
		body, err := c.get(ctx, pairsPath, nil)
		if err != nil {
			return nil, err
		}
		var pairs []ExchangePair
		if err := json.Unmarshal(body, &pairs); err != nil {
			return nil, fmt.Errorf("%w: decode exchange pairs: %v", ErrMalformedResponse, err)
		}
		for i, p := range pairs {
			if !strings.Contains(p.ID, "_") {
				return nil, fmt.Errorf("%w: exchange pair %d has id %q", ErrMalformedResponse, i, p.ID)
			}
		}
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ExchangePair), nil
}

// FetchLargestSpreads returns the widest spread per symbol within tf, widest first.
func (c *Client) FetchLargestSpreads(ctx context.Context, tf series.TimeFrame) ([]LargestSpread, error) {
	params := url.Values{}
	params.Set("time_range", string(tf))
	v, err, _ := c.group.Do(largestPath+"?"+params.Encode(), func() (any, error) {
		body, err := c.get(ctx, largestPath, params)
		if err != nil {
			return nil, err
		}
		var spreads []LargestSpread
		if err := json.Unmarshal(body, &spreads); err != nil {
			return nil, fmt.Errorf("%w: decode largest spreads: %v", ErrMalformedResponse, err)
		}
		sort.SliceStable(spreads, func(i, j int) bool {
			return spreads[i].MaxSpread > spreads[j].MaxSpread
		})
		return spreads, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]LargestSpread), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type apiSample struct {
	Difference   *float64 `json:"difference"`
	BuyExchange  string   `json:"buy_exchange"`
	SellExchange string   `json:"sell_exchange"`
	BuyPrice     *float64 `json:"buy_price"`
	SellPrice    *float64 `json:"sell_price"`
	Created      float64  `json:"created"`
}

func (a apiSample) toSample() (series.Sample, error) {
	if a.Created <= 0 {
		return series.Sample{}, fmt.Errorf("created %v", a.Created)
	}
	if a.Difference == nil {
		return series.Sample{}, fmt.Errorf("missing difference")
	}
	created := int64(a.Created)
	if created < secondsCutoff {
		created = int64(math.Round(a.Created * 1000))
	}
	return series.Sample{
		CreatedAt:    created,
		Difference:   *a.Difference,
		BuyExchange:  a.BuyExchange,
		SellExchange: a.SellExchange,
		BuyPrice:     a.BuyPrice,
		SellPrice:    a.SellPrice,
	}, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return &APIError{Status: status, Message: apiErr.Error}
		}
		if apiErr.Message != "" {
			return &APIError{Status: status, Message: apiErr.Message}
		}
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &APIError{Status: status, Message: msg}
}

var (
	_ SampleFetcher  = (*Client)(nil)
	_ CatalogFetcher = (*Client)(nil)
)
