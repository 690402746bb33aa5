package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"spreadwatch/internal/series"
)

// Export writes the full sample set of a key as CSV and/or its bucketed view as a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

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
	if view.SampleCount == 0 {
		a.Logger.Info().Str("key", opts.Key.String()).Msg("no samples to export")
		return nil
	}
	if view.Stale {
		a.Logger.Warn().Err(view.Err).Msg("exporting cached data, latest fetch failed")
	}

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(f *os.File) error {
			return svc.Session().WriteCSV(f)
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("samples", view.SampleCount).Msg("exported samples")
	}

	if opts.PNGPath != "" {
		buckets := downsampleBuckets(view.Buckets, opts.MaxPoints)
		if len(buckets) < 2 {
			a.Logger.Warn().Int("buckets", len(buckets)).Msg("not enough buckets to chart")
			return nil
		}
		if err := writeBucketsPNG(opts.PNGPath, opts.Key, buckets); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		first, last := bucketTimes(buckets)
		a.Logger.Info().Str("path", opts.PNGPath).
			Int("buckets", len(buckets)).
			Time("from", first).Time("to", last).
			Msg("exported chart")
	}

	return nil
}

func downsampleBuckets(buckets []series.Bucket, max int) []series.Bucket {
	if max <= 0 || len(buckets) <= max {
		return buckets
	}
	if max == 1 {
		return buckets[len(buckets)-1:]
	}

	result := make([]series.Bucket, 0, max)
	step := float64(len(buckets)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		result = append(result, buckets[idx])
	}
	return result
}

func writeBucketsPNG(path string, key series.Key, buckets []series.Bucket) error {
	x := make([]time.Time, len(buckets))
	y := make([]float64, len(buckets))
	for i, b := range buckets {
		x[i] = b.Time()
		y[i] = b.MeanDifference
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Title:  key.String(),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Spread (%)",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Mean spread % per " + string(key.TimeFrame),
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return writeFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

func writeFile(path string, fn func(f *os.File) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
