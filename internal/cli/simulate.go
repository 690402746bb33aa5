package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"spreadwatch/internal/app"
)

var (
	simulateKey    keyFlags
	simulateSpread float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic spread through the alert channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSpread == 0 {
			return errors.New("--spread must be non-zero")
		}
		key, err := simulateKey.key()
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{Key: key, SpreadPct: simulateSpread})
	},
}

func init() {
	simulateKey.register(simulateCmd)
	simulateCmd.Flags().Float64Var(&simulateSpread, "spread", 0, "Spread in percent, negative for the reverse direction")
}
