package cli

import (
	"github.com/spf13/cobra"

	"spreadwatch/internal/series"
)

const (
	defaultPair      = "paradex_backpack"
	defaultTimeFrame = "1h"
)

// keyFlags binds --symbol, --pair and --timeframe on a command.
type keyFlags struct {
	symbol    string
	pair      string
	timeFrame string
}

func (k *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&k.symbol, "symbol", "", "Symbol to watch, e.g. BTC")
	cmd.Flags().StringVar(&k.pair, "pair", defaultPair, "Exchange pair id <exchange1>_<exchange2>")
	cmd.Flags().StringVar(&k.timeFrame, "timeframe", defaultTimeFrame, "Time frame (1m, 5m, 15m, 30m, 1h, 3h, 6h, 24h)")
	_ = cmd.MarkFlagRequired("symbol")
}

func (k *keyFlags) key() (series.Key, error) {
	return series.ParseKey(k.symbol, k.pair, k.timeFrame)
}
