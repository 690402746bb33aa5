package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spreadwatch/internal/app"
)

var (
	showKey   keyFlags
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Refresh one key and display its summary and newest buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		key, err := showKey.key()
		if err != nil {
			return err
		}

		opts := app.ShowOptions{
			Key:   key,
			Limit: showLimit,
		}
		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showKey.register(showCmd)
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of buckets to display")
}
