package app

import (
	"context"
	"errors"
	"time"

	"btc-advisor/internal/alerting"
	"btc-advisor/internal/monitor"
	"btc-advisor/internal/report"
)

// SimulateOptions 描述一次模拟监控记录的取值。
type SimulateOptions struct {
	ProtocolYield float64
	StakingYield  float64
	TVL           float64
	Price         float64
	AHR999        float64
	FearGreed     float64
}

// SimulateAlert 使用给定的数值构造一条监控记录并通过告警通道发送，不写入监控日志。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	now := a.now()
	rec := SimulatedRecord(now, a.Config.App.Location(), opts)
	d := report.Digest{Latest: rec, Alerts: monitor.Alerts(rec, a.thresholds())}
	a.Logger.Info().Int("alerts", len(d.Alerts)).Msg("发送模拟告警")

	return notifier.Notify(ctx, alerting.Notification{
		Kind:   alerting.KindSimulate,
		Title:  "[simulated] Ethena & BTC market monitor",
		Body:   report.FormatDigest(d),
		SentAt: now,
	})
}

// SimulatedRecord builds a monitor record from fixed values. Zero market
// values are left unset.
func SimulatedRecord(now time.Time, loc *time.Location, opts SimulateOptions) monitor.Record {
	rec := monitor.NewRecord(now, loc)
	rec.Ethena = monitor.Ethena{ProtocolYield: opts.ProtocolYield, StakingYield: opts.StakingYield, TVL: opts.TVL}
	set := func(v float64) *float64 {
		if v == 0 {
			return nil
		}
		return &v
	}
	rec.Market.BTC.Price = set(opts.Price)
	rec.Market.Sentiment.AHR999 = set(opts.AHR999)
	rec.Market.Sentiment.FearGreed = set(opts.FearGreed)
	return rec
}
