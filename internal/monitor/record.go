package monitor

import (
	"fmt"
	"time"

	"btc-advisor/internal/series"
)

// TimestampLayout is the wall-clock format records are stamped with.
const TimestampLayout = "2006-01-02 15:04:05"

// Record is one monitor observation. Market values are nil when the source
// was unavailable for that tick.
type Record struct {
	Timestamp string `json:"timestamp"`
	Ethena    Ethena `json:"ethena"`
	Market    Market `json:"market"`
}

// Ethena is the protocol part of a record. Yields are percentages.
type Ethena struct {
	ProtocolYield float64  `json:"protocol_yield"`
	StakingYield  float64  `json:"staking_yield"`
	TVL           float64  `json:"tvl"`
	SUSDeRate     *float64 `json:"susde_rate,omitempty"`
}

type Market struct {
	BTC       BTC       `json:"btc"`
	Sentiment Sentiment `json:"sentiment"`
}

type BTC struct {
	Price *float64 `json:"price"`
}

type Sentiment struct {
	AHR999    *float64 `json:"ahr999"`
	FearGreed *float64 `json:"fear_greed"`
}

// NewRecord stamps a record at now in loc.
func NewRecord(now time.Time, loc *time.Location) Record {
	if loc == nil {
		loc = time.UTC
	}
	return Record{Timestamp: now.In(loc).Format(TimestampLayout)}
}

// Time parses the record timestamp in loc.
func (r Record) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(TimestampLayout, r.Timestamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse record timestamp %q: %w", r.Timestamp, err)
	}
	return t, nil
}

// Date is the calendar day part of the timestamp.
func (r Record) Date() string {
	if len(r.Timestamp) < 10 {
		return r.Timestamp
	}
	return r.Timestamp[:10]
}

// Metric names the numeric fields compared between records.
type Metric string

const (
	MetricProtocolYield Metric = "protocol_yield"
	MetricStakingYield  Metric = "staking_yield"
	MetricTVL           Metric = "tvl"
	MetricBTCPrice      Metric = "btc_price"
	MetricAHR999        Metric = "ahr999"
	MetricFearGreed     Metric = "fear_greed"
)

// Metrics lists every metric in display order.
func Metrics() []Metric {
	return []Metric{MetricProtocolYield, MetricStakingYield, MetricTVL, MetricBTCPrice, MetricAHR999, MetricFearGreed}
}

// Label is the human-readable metric name.
func (m Metric) Label() string {
	switch m {
	case MetricProtocolYield:
		return "Protocol yield"
	case MetricStakingYield:
		return "Staking yield"
	case MetricTVL:
		return "TVL"
	case MetricBTCPrice:
		return series.BTCPrice.Label()
	case MetricAHR999:
		return series.AHR999.Label()
	case MetricFearGreed:
		return series.FearGreed.Label()
	default:
		return string(m)
	}
}

// Value extracts the metric. Market metrics may be absent.
func (r Record) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case MetricProtocolYield:
		return r.Ethena.ProtocolYield, true
	case MetricStakingYield:
		return r.Ethena.StakingYield, true
	case MetricTVL:
		return r.Ethena.TVL, true
	case MetricBTCPrice:
		v = r.Market.BTC.Price
	case MetricAHR999:
		v = r.Market.Sentiment.AHR999
	case MetricFearGreed:
		v = r.Market.Sentiment.FearGreed
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
