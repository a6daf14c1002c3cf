package cli

import (
	"github.com/spf13/cobra"

	"btc-advisor/internal/app"
)

var (
	reportForce  bool
	reportQuiet  bool
	reportPush   bool
	refreshForce bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an investment advice report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{
			Force: reportForce,
			Quiet: reportQuiet,
			Push:  reportPush,
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the historical series and daily data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Refresh(cmd.Context(), refreshForce)
	},
}

var reorganizeCmd = &cobra.Command{
	Use:   "reorganize",
	Short: "Rebuild daily_data.json from the stored historical data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reorganize(cmd.Context())
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Collect one monitor record and print the digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Monitor(cmd.Context())
	},
}

var fixDataCmd = &cobra.Command{
	Use:   "fix-data FILE",
	Short: "Repair a malformed data file in place, keeping a .bak copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().FixData(args[0])
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DumpConfig(cmd.OutOrStdout())
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportForce, "force", false, "Refetch data even when the stored history is fresh")
	reportCmd.Flags().BoolVar(&reportQuiet, "quiet", false, "Do not print the report")
	reportCmd.Flags().BoolVar(&reportPush, "push", false, "Push the report to the configured alert channels")

	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "Refetch data even when the stored history is fresh")
}
