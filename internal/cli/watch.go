package cli

import (
	"github.com/spf13/cobra"

	"spreadwatch/internal/app"
)

var watchKey keyFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch one symbol and pair, refreshing on the time frame schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := watchKey.key()
		if err != nil {
			return err
		}
		return getApp().Watch(cmd.Context(), app.WatchOptions{Key: key})
	},
}

func init() {
	watchKey.register(watchCmd)
}
