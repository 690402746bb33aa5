package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/series"
)

const (
	DirectionPositive = "positive"
	DirectionNegative = "negative"
)

// Monitor raises a notification when the newest spread of a key crosses the threshold,
// at most once per key within the cooldown.
type Monitor struct {
	notifier  Notifier
	threshold decimal.Decimal
	cooldown  time.Duration
	channels  []string
	now       func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
	seen map[string]int64
}

// NewMonitor builds a monitor. A zero threshold disables it.
func NewMonitor(notifier Notifier, thresholdPct float64, cooldown time.Duration, channels []string) *Monitor {
	return &Monitor{
		notifier:  notifier,
		threshold: decimal.NewFromFloat(thresholdPct).Abs(),
		cooldown:  cooldown,
		channels:  channels,
		now:       time.Now,
		last:      make(map[string]time.Time),
		seen:      make(map[string]int64),
	}
}

// Threshold returns the absolute alert threshold in percent.
func (m *Monitor) Threshold() decimal.Decimal {
	return m.threshold
}

// Observe checks the newest sample of a sample set. It reports whether a notification was sent.
func (m *Monitor) Observe(ctx context.Context, key series.Key, samples []series.Sample) (bool, error) {
	if m == nil || m.notifier == nil || m.threshold.IsZero() {
		return false, nil
	}
	latest, ok := series.Latest(samples)
	if !ok {
		return false, nil
	}

	id := key.String()
	now := m.now()
	spread := decimal.NewFromFloat(latest.Difference)

	m.mu.Lock()
	if m.seen[id] == latest.CreatedAt {
		m.mu.Unlock()
		return false, nil
	}
	m.seen[id] = latest.CreatedAt
	if !spread.Abs().GreaterThan(m.threshold) {
		m.mu.Unlock()
		return false, nil
	}
	if last, ok := m.last[id]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		return false, nil
	}
	m.last[id] = now
	m.mu.Unlock()

	note := Notification{
		Key:          key,
		At:           time.UnixMilli(latest.CreatedAt).UTC(),
		SpreadPct:    spread,
		ThresholdPct: m.threshold,
		Direction:    Classify(spread),
		BuyExchange:  latest.BuyExchange,
		SellExchange: latest.SellExchange,
		Channels:     m.channels,
	}
	if err := m.notifier.Notify(ctx, note); err != nil {
		m.mu.Lock()
		delete(m.last, id)
		if m.seen[id] == latest.CreatedAt {
			delete(m.seen, id)
		}
		m.mu.Unlock()
		return false, err
	}
	return true, nil
}

// Classify names the sign of a spread.
func Classify(spread decimal.Decimal) string {
	if spread.IsNegative() {
		return DirectionNegative
	}
	return DirectionPositive
}
