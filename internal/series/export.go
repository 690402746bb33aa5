package series

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

const (
	isoMillis   = "2006-01-02T15:04:05.000Z07:00"
	unknownCell = "N/A"
)

var csvHeader = []string{"timestamp", "spread_pct", "buy_exchange", "sell_exchange", "buy_price", "sell_price"}

// WriteCSV writes the full sample set ascending by time. Missing prices are written as N/A.
func WriteCSV(w io.Writer, samples []Sample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range SortedByTime(samples) {
		record := []string{
			time.UnixMilli(s.CreatedAt).UTC().Format(isoMillis),
			decimal.NewFromFloat(s.Difference).StringFixed(6),
			s.BuyExchange,
			s.SellExchange,
			formatPrice(s.BuyPrice),
			formatPrice(s.SellPrice),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatPrice(p *float64) string {
	if p == nil {
		return unknownCell
	}
	return decimal.NewFromFloat(*p).String()
}
