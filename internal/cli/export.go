package cli

import (
	"github.com/spf13/cobra"

	"spreadwatch/internal/app"
)

var (
	exportKey       keyFlags
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export samples as CSV and/or bucket means as a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := exportKey.key()
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Key:       key,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportKey.register(exportCmd)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum chart points (defaults to config)")
}
