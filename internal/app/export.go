package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"btc-advisor/internal/fsutil"
)

// Secondary axis choices of the PNG export.
const (
	SecondaryFearGreed = "fear_greed"
	SecondaryAHR999    = "ahr999"
	SecondaryNone      = "none"
)

// exportRow is one day of the export, whichever store it came from.
type exportRow struct {
	Date      time.Time
	Price     *float64
	AHR999    *float64
	FearGreed *float64
}

// Export renders daily records as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	switch opts.Secondary {
	case "", SecondaryFearGreed, SecondaryAHR999, SecondaryNone:
	default:
		return fmt.Errorf("unknown secondary axis %q", opts.Secondary)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	loc := a.Config.App.Location()

	to := a.now()
	if opts.To != nil {
		to = opts.To.In(loc)
	}
	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.In(loc)
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	var (
		rows []exportRow
		err  error
	)
	if opts.FromDB {
		rows, err = a.exportRowsFromDB(ctx, from, to)
	} else {
		rows, err = a.exportRowsFromFile(from, to, loc)
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no daily records found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting daily records")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, downsampled, opts.Secondary); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportRowsFromFile(from, to time.Time, loc *time.Location) ([]exportRow, error) {
	records, err := a.LoadDaily()
	if err != nil {
		return nil, err
	}
	records = filterDaily(records, &from, &to)
	rows := make([]exportRow, 0, len(records))
	for _, r := range records {
		day, err := time.ParseInLocation("2006-01-02", r.Date, loc)
		if err != nil {
			a.Logger.Debug().Str("date", r.Date).Msg("skip record with unparseable date")
			continue
		}
		row := exportRow{Date: day, Price: r.Price, AHR999: r.AHR999}
		if r.FearGreedValue != nil {
			v := float64(*r.FearGreedValue)
			row.FearGreed = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *App) exportRowsFromDB(ctx context.Context, from, to time.Time) ([]exportRow, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	if !store.Configured() {
		return nil, errors.New("database not configured; cannot export from database")
	}

	records, err := store.ListDailyBetween(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	rows := make([]exportRow, 0, len(records))
	for _, r := range records {
		row := exportRow{Date: r.Date, Price: fromNullDecimal(r.Price), AHR999: fromNullDecimal(r.AHR999)}
		if r.FearGreed != nil {
			v := float64(*r.FearGreed)
			row.FearGreed = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func fromNullDecimal(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.InexactFloat64()
	return &v
}

func downsampleRows(rows []exportRow, max int) []exportRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]exportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, rows []exportRow) error {
	if err := fsutil.EnsureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"date", "price", "ahr999", "fear_greed_value"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Date.Format("2006-01-02"),
			formatOptional(row.Price, 2),
			formatOptional(row.AHR999, 4),
			formatOptional(row.FearGreed, 0),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatOptional(v *float64, places int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', places, 64)
}

// rowSeries extracts the days on which pick yields a value.
func rowSeries(rows []exportRow, pick func(exportRow) *float64) ([]time.Time, []float64) {
	x := make([]time.Time, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v := pick(row); v != nil {
			x = append(x, row.Date)
			y = append(y, *v)
		}
	}
	return x, y
}

func writeRowsPNG(path string, rows []exportRow, secondary string) error {
	priceX, priceY := rowSeries(rows, func(r exportRow) *float64 { return r.Price })
	if len(priceX) < 2 {
		return errors.New("at least two priced days are required to render a chart")
	}

	if err := fsutil.EnsureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "BTC price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "BTC price",
				XValues: priceX,
				YValues: priceY,
			},
		},
	}

	var (
		name string
		pick func(exportRow) *float64
		unit string
	)
	switch secondary {
	case SecondaryAHR999:
		name, unit = "AHR999", "%.2f"
		pick = func(r exportRow) *float64 { return r.AHR999 }
	case SecondaryNone:
	default:
		name, unit = "Fear & Greed", "%.0f"
		pick = func(r exportRow) *float64 { return r.FearGreed }
	}
	if pick != nil {
		if x, y := rowSeries(rows, pick); len(x) >= 2 {
			graph.YAxisSecondary = chart.YAxis{
				Name: name,
				ValueFormatter: func(v interface{}) string {
					return chart.FloatValueFormatterWithFormat(v, unit)
				},
			}
			graph.Series = append(graph.Series, chart.TimeSeries{
				Name:    name,
				XValues: x,
				YValues: y,
				YAxis:   chart.YAxisSecondary,
			})
		}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
