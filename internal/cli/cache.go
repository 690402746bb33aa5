package cli

import (
	"github.com/spf13/cobra"
)

var reclaimForced bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local sample cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries, most recently used first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CacheList(cmd.Context())
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CacheClear(cmd.Context())
	},
}

var cacheReclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Evict least recently used entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CacheReclaim(cmd.Context(), reclaimForced)
	},
}

func init() {
	cacheReclaimCmd.Flags().BoolVar(&reclaimForced, "forced", false, "Evict down to the forced floor")
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd, cacheReclaimCmd)
}
