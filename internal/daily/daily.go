package daily

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/fsutil"
	"btc-advisor/internal/series"
)

// FileName is the unified per-day document consumed by the narrative advisor.
const FileName = "daily_data.json"

const description = "Daily combined BTC price, AHR999 index and Fear & Greed index data"

// Record is the outer-joined view of one calendar day.
type Record struct {
	Date           string   `json:"date"`
	Price          *float64 `json:"price,omitempty"`
	AHR999         *float64 `json:"ahr999,omitempty"`
	FearGreedValue *int     `json:"fear_greed_value,omitempty"`
}

// Document is the persisted form of the record set.
type Document struct {
	Data        []Record `json:"data"`
	Count       int      `json:"count"`
	GeneratedAt string   `json:"generated_at"`
	Description string   `json:"description"`
}

// Reorganize outer-joins the series on date and returns records sorted by
// ascending date. Points without a date are skipped. Empty input yields an
// empty, non-nil slice.
func Reorganize(sources map[series.Indicator]series.Collection) []Record {
	byDate := make(map[string]*Record)
	upsert := func(date string) *Record {
		rec, ok := byDate[date]
		if !ok {
			rec = &Record{Date: date}
			byDate[date] = rec
		}
		return rec
	}

	for _, ind := range series.All() {
		c, ok := sources[ind]
		if !ok {
			continue
		}
		for _, p := range c.Points {
			if p.Date == "" {
				continue
			}
			v, ok := p.ValueOf(ind)
			if !ok {
				upsert(p.Date)
				continue
			}
			rec := upsert(p.Date)
			switch ind {
			case series.BTCPrice:
				rec.Price = series.Float(v)
			case series.AHR999:
				rec.AHR999 = series.Float(v)
			case series.FearGreed:
				iv := int(v)
				rec.FearGreedValue = &iv
			}
		}
	}

	records := make([]Record, 0, len(byDate))
	for _, rec := range byDate {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
	return records
}

// FromHistorical reorganizes the combined historical document.
func FromHistorical(h series.Historical) []Record {
	sources := make(map[series.Indicator]series.Collection, 3)
	for _, ind := range series.All() {
		sources[ind] = h.Collection(ind)
	}
	return Reorganize(sources)
}

// NewDocument wraps records with their metadata.
func NewDocument(records []Record, now time.Time) Document {
	if records == nil {
		records = []Record{}
	}
	return Document{
		Data:        records,
		Count:       len(records),
		GeneratedAt: now.Format("2006-01-02 15:04:05"),
		Description: description,
	}
}

// Save writes the document atomically.
func Save(path string, doc Document) error {
	if err := fsutil.WriteJSONAtomic(path, doc); err != nil {
		return fmt.Errorf("save daily data: %w", err)
	}
	return nil
}

// Load reads daily records from path, accepting the wrapped document, a bare
// list, or a doubly-encoded string. Records without a date are dropped.
func Load(path string, logger zerolog.Logger) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("daily data %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read daily data: %w", err)
	}

	unwrapped, err := series.Unwrap(raw)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(unwrapped.Items))
	dropped := 0
	for _, item := range unwrapped.Items {
		var rec Record
		if !series.DecodeDated(item, &rec, func() string { return rec.Date }) {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).Str("path", path).Msg("dropped malformed daily records")
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
	return records, nil
}
