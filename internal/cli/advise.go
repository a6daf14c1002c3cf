package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"btc-advisor/internal/app"
)

var (
	adviseMonths  int
	adviseOffline bool
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Ask the language model for narrative advice on recent daily data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adviseMonths < 0 {
			return fmt.Errorf("--months cannot be negative")
		}
		return getApp().Advise(cmd.Context(), app.AdviseOptions{
			Months:  adviseMonths,
			Offline: adviseOffline,
		})
	},
}

func init() {
	adviseCmd.Flags().IntVar(&adviseMonths, "months", 0, "Months of daily data to include (defaults to config)")
	adviseCmd.Flags().BoolVar(&adviseOffline, "offline", false, "Save the prompt instead of calling the API")
}
