package cli

import (
	"github.com/spf13/cobra"

	"btc-advisor/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportSecondary string
	exportFromDB    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily records as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
			Secondary: exportSecondary,
			FromDB:    exportFromDB,
		}

		var err error
		if opts.From, err = parseDay("from", exportFrom); err != nil {
			return err
		}
		if opts.To, err = parseDay("to", exportTo); err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First day (YYYY-MM-DD or RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last day (YYYY-MM-DD or RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().StringVar(&exportSecondary, "secondary", app.SecondaryFearGreed, "Secondary axis: fear_greed, ahr999 or none")
	exportCmd.Flags().BoolVar(&exportFromDB, "from-db", false, "Read the PostgreSQL mirror instead of daily_data.json")
}
