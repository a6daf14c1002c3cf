package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-advisor/internal/series"
)

// SeriesFetcher retrieves the daily history of one indicator, newest first.
type SeriesFetcher interface {
	Indicator() series.Indicator
	FetchSeries(ctx context.Context, days int) (series.Collection, error)
}

// VaultRateFetcher retrieves the on-chain sUSDe/USDe conversion rate.
type VaultRateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, uint64, error)
}

// ProtocolFetcher retrieves the Ethena yield and TVL snapshot.
type ProtocolFetcher interface {
	FetchProtocol(ctx context.Context) (ProtocolSnapshot, error)
}

// number decodes a JSON number or numeric string. null is reported as absent.
func number(raw json.RawMessage) (float64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0, false, fmt.Errorf("parse number %s: %w", raw, err)
	}
	return d.InexactFloat64(), true, nil
}

// dayOf renders the calendar date of t in loc.
func dayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
