package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"btc-advisor/internal/app"
)

var (
	backfillFrom    string
	backfillTo      string
	backfillDryRun  bool
	backfillRefresh bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Mirror daily records into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDay("from", backfillFrom)
		if err != nil {
			return err
		}
		to, err := parseDay("to", backfillTo)
		if err != nil {
			return err
		}
		if from != nil && to != nil && to.Before(*from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.BackfillOptions{
			From:    from,
			To:      to,
			DryRun:  backfillDryRun,
			Refresh: backfillRefresh,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First day (YYYY-MM-DD or RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last day (YYYY-MM-DD or RFC3339, inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
	backfillCmd.Flags().BoolVar(&backfillRefresh, "refresh", false, "Force a data refresh before mirroring")
}
