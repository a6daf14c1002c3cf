package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailyRecord mirrors one row of daily_data.json.
type DailyRecord struct {
	Date      time.Time
	Price     decimal.NullDecimal
	AHR999    decimal.NullDecimal
	FearGreed *int32
	UpdatedAt time.Time
}

// AdviceRun 记录一次投资建议运行。
type AdviceRun struct {
	ID         uuid.UUID
	Status     string
	Message    string
	Action     string
	Confidence string
	Report     string
	CreatedAt  time.Time
}
