package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spreadwatch/internal/app"
	"spreadwatch/internal/series"
)

var (
	warmSymbol     string
	warmPair       string
	warmTimeFrames []string
	warmDryRun     bool
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Fill the cache for one symbol and pair across time frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		frames := make([]series.TimeFrame, 0, len(warmTimeFrames))
		for _, raw := range warmTimeFrames {
			tf, err := series.ParseTimeFrame(raw)
			if err != nil {
				return fmt.Errorf("invalid --timeframes value: %w", err)
			}
			frames = append(frames, tf)
		}

		opts := app.WarmOptions{
			Symbol:     warmSymbol,
			Pair:       warmPair,
			TimeFrames: frames,
			DryRun:     warmDryRun,
		}
		return getApp().Warm(cmd.Context(), opts)
	},
}

func init() {
	warmCmd.Flags().StringVar(&warmSymbol, "symbol", "", "Symbol to warm")
	warmCmd.Flags().StringVar(&warmPair, "pair", defaultPair, "Exchange pair id <exchange1>_<exchange2>")
	warmCmd.Flags().StringSliceVar(&warmTimeFrames, "timeframes", nil, "Time frames to warm, at most cache.soft_cap (defaults to the shortest frames up to that cap)")
	warmCmd.Flags().BoolVar(&warmDryRun, "dry-run", false, "Fetch without writing to storage")
	_ = warmCmd.MarkFlagRequired("symbol")
}
