package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"btc-advisor/internal/config"
	"btc-advisor/internal/daily"
	"btc-advisor/internal/narrative"
	"btc-advisor/internal/report"
	"btc-advisor/internal/series"
)

// Report generates one investment advice report.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	s, err := a.newService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer s.close()

	run, err := s.svc.GenerateAdvice(ctx, opts.Force, opts.Push)
	if err != nil {
		return err
	}
	if !opts.Quiet {
		fmt.Fprintln(os.Stdout, run.Report)
		fmt.Fprintf(os.Stdout, "\nReport saved to %s\n", run.ReportPath)
	}
	if !run.OK() {
		return errors.New(run.Result.Message)
	}
	return nil
}

// Refresh updates the historical document and daily_data.json.
func (a *App) Refresh(ctx context.Context, force bool) error {
	s, err := a.newService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer s.close()

	h, err := s.svc.Refresh(ctx, force)
	if err != nil {
		return err
	}
	for _, ind := range series.All() {
		c := h.Collection(ind)
		latest := "-"
		if p, ok := c.Latest(); ok {
			latest = p.Date
		}
		fmt.Fprintf(os.Stdout, "%-14s %5d points, latest %s\n", ind.Label(), c.Len(), latest)
	}
	return nil
}

// Reorganize rebuilds daily_data.json from the stored historical document
// without fetching.
func (a *App) Reorganize(ctx context.Context) error {
	store := series.NewStore(a.Config.Data.Dir, a.Logger)
	h, ok := store.LoadHistorical()
	if !ok || h.Empty() {
		return fmt.Errorf("no usable %s in %s; run refresh first", series.HistoricalFile, a.Config.Data.Dir)
	}

	s, err := a.newService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer s.close()

	records, err := s.svc.Reorganize(ctx, h)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d daily records written to %s\n", len(records), a.dailyPath())
	return nil
}

// Advise runs the narrative advisor over daily_data.json.
func (a *App) Advise(ctx context.Context, opts AdviseOptions) error {
	narrator := a.newNarrator(opts.Offline, opts.Months)
	s, err := a.newService(ctx, serviceOptions{narrator: narrator})
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.svc.Narrate(ctx)
	if errors.Is(err, narrative.ErrNoData) {
		return fmt.Errorf("%w; run refresh or reorganize first", err)
	}
	if err != nil {
		return err
	}
	if res.Offline {
		fmt.Fprintf(os.Stdout, "Offline mode: prompt with %d records saved to %s\n", res.Records, res.FilePath)
		return nil
	}
	fmt.Fprintln(os.Stdout, res.Advice)
	fmt.Fprintf(os.Stdout, "\nAdvice saved to %s\n", res.FilePath)
	return nil
}

// Monitor performs one monitor tick and prints the digest.
func (a *App) Monitor(ctx context.Context) error {
	s, err := a.newService(ctx, serviceOptions{monitor: true})
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.svc.MonitorTick(ctx, a.now())
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, report.FormatDigest(d))
	return nil
}

// FixData repairs a series or daily data file in place.
func (a *App) FixData(path string) error {
	res, err := series.FixFile(path)
	if err != nil {
		return err
	}
	for _, step := range res.Steps {
		a.Logger.Info().Str("path", path).Msg(step)
	}
	if !res.Changed() {
		fmt.Fprintf(os.Stdout, "%s is already well-formed (%d items)\n", path, res.Kept)
		return nil
	}
	fmt.Fprintf(os.Stdout, "%s repaired: kept %d, dropped %d, backup at %s\n", path, res.Kept, res.Dropped, res.Backup)
	return nil
}

// DumpConfig writes the effective configuration with secrets masked.
func (a *App) DumpConfig(w io.Writer) error {
	return config.Dump(w, a.Config)
}

// LoadDaily reads daily_data.json.
func (a *App) LoadDaily() ([]daily.Record, error) {
	return daily.Load(a.dailyPath(), a.Logger)
}
