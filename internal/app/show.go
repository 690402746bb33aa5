package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/series"
	"spreadwatch/internal/session"
)

// Show loads one key, refreshes it once and prints the summary and the newest buckets.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(a.newClient(), store, nil, nil)
	if err != nil {
		return err
	}
	view, err := svc.Once(ctx, opts.Key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", opts.Key, err)
	}

	a.printSummary(view)
	if len(view.Buckets) == 0 {
		fmt.Fprintln(a.Out, "no samples found")
		return nil
	}

	buckets := view.Buckets
	if opts.Limit > 0 && len(buckets) > opts.Limit {
		buckets = buckets[len(buckets)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Bucket (UTC)\tMean spread %\tSamples")
	for _, b := range buckets {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", b.Time().Format(time.RFC3339), formatPct(b.MeanDifference), b.Count)
	}
	return writer.Flush()
}

func (a *App) printSummary(view session.View) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Key:\t%s\n", view.Key)
	fmt.Fprintf(writer, "State:\t%s%s\n", view.State, freshness(view))
	fmt.Fprintf(writer, "Samples:\t%d\n", view.SampleCount)
	if !view.LastUpdated.IsZero() {
		fmt.Fprintf(writer, "Updated:\t%s\n", view.LastUpdated.UTC().Format(time.RFC3339))
	}
	if view.Err != nil {
		fmt.Fprintf(writer, "Last error:\t%s\n", sanitizeInline(view.Err.Error()))
	}
	if view.SampleCount > 0 {
		s := view.Summary
		fmt.Fprintf(writer, "Current:\t%s%%\n", formatPct(s.Current))
		fmt.Fprintf(writer, "Max (bucket mean):\t%s%%\n", formatPct(s.Max))
		fmt.Fprintf(writer, "Q1 / median / Q3:\t%s / %s / %s\n", formatPct(s.Q1), formatPct(s.Median), formatPct(s.Q3))
		fmt.Fprintf(writer, "Range (IQR filtered):\t%s .. %s\n", formatPct(s.Low), formatPct(s.High))
	}
	writer.Flush()
	fmt.Fprintln(a.Out)
}

func freshness(view session.View) string {
	var flags []string
	if view.FromCache {
		flags = append(flags, "cached")
	}
	if view.Stale {
		flags = append(flags, "stale")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}

func formatPct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func bucketTimes(buckets []series.Bucket) (time.Time, time.Time) {
	if len(buckets) == 0 {
		return time.Time{}, time.Time{}
	}
	return buckets[0].Time(), buckets[len(buckets)-1].Time()
}
