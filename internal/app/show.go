package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"btc-advisor/internal/daily"
	"btc-advisor/internal/storage"
)

// Show prints the newest daily records, or recent advice runs with opts.Runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Runs {
		return a.showRuns(ctx, opts.Limit)
	}

	records, err := a.LoadDaily()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no daily records found")
		return nil
	}
	writeDailyTable(os.Stdout, records, opts.Limit)
	return nil
}

func (a *App) showRuns(ctx context.Context, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if !store.Configured() {
		return errors.New("database not configured; cannot show advice runs")
	}

	runs, err := store.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no advice runs found")
		return nil
	}
	writeRunsTable(os.Stdout, runs)
	return nil
}

// writeDailyTable prints up to limit records, newest first. records are
// sorted ascending by date.
func writeDailyTable(w io.Writer, records []daily.Record, limit int) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tPrice\tAHR999\tFear&Greed")

	shown := 0
	for i := len(records) - 1; i >= 0 && shown < limit; i-- {
		r := records[i]
		fg := "-"
		if r.FearGreedValue != nil {
			fg = strconv.Itoa(*r.FearGreedValue)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", r.Date, orDash(r.Price, 2), orDash(r.AHR999, 4), fg)
		shown++
	}

	writer.Flush()
}

func writeRunsTable(w io.Writer, runs []storage.AdviceRun) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tID\tStatus\tAction\tConfidence\tMessage")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.ID.String()[:8],
			run.Status,
			run.Action,
			run.Confidence,
			sanitizeInline(run.Message),
		)
	}

	writer.Flush()
}

func orDash(v *float64, places int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', places, 64)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
