package cli

import (
	"github.com/spf13/cobra"

	"spreadwatch/internal/series"
)

var (
	largestTimeFrame string
	largestLimit     int
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List symbols known to the spread API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Symbols(cmd.Context())
	},
}

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List selectable exchange pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Pairs(cmd.Context())
	},
}

var largestCmd = &cobra.Command{
	Use:   "largest",
	Short: "Rank symbols by their widest spread over a time frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, err := series.ParseTimeFrame(largestTimeFrame)
		if err != nil {
			return err
		}
		return getApp().Largest(cmd.Context(), tf, largestLimit)
	},
}

func init() {
	largestCmd.Flags().StringVar(&largestTimeFrame, "timeframe", defaultTimeFrame, "Time frame to rank over")
	largestCmd.Flags().IntVar(&largestLimit, "limit", 0, "Only show the top N symbols")
}
