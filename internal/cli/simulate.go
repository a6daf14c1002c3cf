package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"btc-advisor/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条监控记录并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.ProtocolYield < 0 || simulateOpts.TVL < 0 {
			return errors.New("--protocol-yield 与 --tvl 不能为负数")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateOpts.ProtocolYield, "protocol-yield", 8, "Ethena 协议收益率 (%)")
	simulateCmd.Flags().Float64Var(&simulateOpts.StakingYield, "staking-yield", 6, "sUSDe 质押收益率 (%)")
	simulateCmd.Flags().Float64Var(&simulateOpts.TVL, "tvl", 5e9, "Ethena TVL (USD)")
	simulateCmd.Flags().Float64Var(&simulateOpts.Price, "price", 0, "BTC 价格 (USD)，0 表示缺失")
	simulateCmd.Flags().Float64Var(&simulateOpts.AHR999, "ahr999", 0, "AHR999 指数，0 表示缺失")
	simulateCmd.Flags().Float64Var(&simulateOpts.FearGreed, "fear-greed", 0, "恐惧贪婪指数，0 表示缺失")
}
