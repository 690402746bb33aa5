package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"spreadwatch/internal/fetcher"
	"spreadwatch/internal/series"
)

// Symbols prints the symbols known to the spread API.
func (a *App) Symbols(ctx context.Context) error {
	symbols, err := a.newClient().FetchSymbols(ctx)
	if err != nil {
		return fmt.Errorf("fetch symbols: %w", err)
	}
	for _, s := range symbols {
		fmt.Fprintln(a.Out, s)
	}
	return nil
}

// Pairs prints the selectable exchange pairs.
func (a *App) Pairs(ctx context.Context) error {
	pairs, err := a.newClient().FetchExchangePairs(ctx)
	if err != nil {
		return fmt.Errorf("fetch exchange pairs: %w", err)
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tName")
	for _, p := range pairs {
		fmt.Fprintf(writer, "%s\t%s\n", p.ID, p.Name)
	}
	return writer.Flush()
}

// Largest prints the widest spread per symbol over the time frame, widest first.
func (a *App) Largest(ctx context.Context, tf series.TimeFrame, limit int) error {
	spreads, err := a.newClient().FetchLargestSpreads(ctx, tf)
	if err != nil {
		return fmt.Errorf("fetch largest spreads: %w", err)
	}
	if limit > 0 && len(spreads) > limit {
		spreads = spreads[:limit]
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tMax spread %\tPair\tPer pair (buy/sell)")
	for _, s := range spreads {
		pair := s.FormattedPair
		if pair == "" {
			pair = s.MaxPair
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", s.Symbol, formatPct(s.MaxSpread), pair, pairBreakdown(s.PairSpreads))
	}
	return writer.Flush()
}

func pairBreakdown(m map[string]fetcher.PairExtremes) string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s=%s/%s", id, formatPct(m[id].LargestBuy), formatPct(m[id].LargestSell)))
	}
	return strings.Join(parts, " ")
}
