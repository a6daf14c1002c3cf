package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"btc-advisor/internal/alerting"
	"btc-advisor/internal/analysis"
	"btc-advisor/internal/daily"
	"btc-advisor/internal/fsutil"
	"btc-advisor/internal/narrative"
	"btc-advisor/internal/report"
	"btc-advisor/internal/storage"
)

const reportTitle = "BTC investment advice"

// AdviceRun is one generated report.
type AdviceRun struct {
	ID         uuid.UUID
	Result     analysis.Result
	Report     string
	ReportPath string
}

// OK reports whether advice could be generated.
func (r AdviceRun) OK() bool {
	return r.Result.Status == analysis.StatusSuccess
}

// GenerateAdvice refreshes the history, analyses it, writes the report file
// and records the run. push overrides the configured push setting when true.
func (s *Service) GenerateAdvice(ctx context.Context, force, push bool) (AdviceRun, error) {
	h, err := s.Refresh(ctx, force)
	if err != nil && !errors.Is(err, ErrNoMarketData) {
		if ctx.Err() != nil {
			return AdviceRun{}, err
		}
		s.logger.Error().Err(err).Msg("refresh failed; analysing what is stored")
	}

	now := s.now().In(s.opts.Location)
	res := s.deps.Engine.Run(sourcesOf(h), now)
	res.FormattedOutput = report.Format(res)

	run := AdviceRun{ID: uuid.New(), Result: res, Report: res.FormattedOutput}
	run.ReportPath = filepath.Join(s.opts.ReportsDir, "report_"+now.Format("20060102_150405")+".txt")
	if err := fsutil.WriteFileAtomic(run.ReportPath, []byte(run.Report), 0o644); err != nil {
		return run, fmt.Errorf("save report: %w", err)
	}
	s.logger.Info().Str("id", run.ID.String()).Str("path", run.ReportPath).
		Str("status", string(res.Status)).
		Str("action", res.Overall.Action).
		Str("confidence", string(res.Overall.Confidence)).
		Msg("advice report saved")

	s.recordRun(ctx, run)

	if push || s.opts.Push {
		s.notify(ctx, alerting.Notification{Kind: alerting.KindReport, Title: reportTitle, Body: run.Report})
	}
	return run, nil
}

func (s *Service) recordRun(ctx context.Context, run AdviceRun) {
	if s.deps.Runs == nil {
		return
	}
	_, err := s.deps.Runs.InsertRun(ctx, storage.AdviceRun{
		ID:         run.ID,
		Status:     string(run.Result.Status),
		Message:    run.Result.Message,
		Action:     run.Result.Overall.Action,
		Confidence: string(run.Result.Overall.Confidence),
		Report:     run.Report,
	})
	if err != nil {
		if !optional(err) {
			s.logger.Error().Err(err).Str("id", run.ID.String()).Msg("persist advice run failed")
		}
		return
	}
	if s.opts.RunRetention > 0 {
		if err := s.deps.Runs.DeleteRunsBefore(ctx, s.now().Add(-s.opts.RunRetention)); err != nil {
			s.logger.Warn().Err(err).Msg("prune advice runs failed")
		}
	}
}

// Narrate sends the recent daily records and the rule-based advice to the
// narrative advisor. The advice is computed from stored history without a refresh.
func (s *Service) Narrate(ctx context.Context) (narrative.Result, error) {
	if s.deps.Narrator == nil {
		return narrative.Result{}, errors.New("narrative advisor not configured")
	}
	records, err := daily.Load(s.opts.DailyPath, s.logger)
	if err != nil {
		return narrative.Result{}, err
	}

	h, _ := s.deps.Store.LoadHistorical()
	res := s.deps.Engine.Run(sourcesOf(h), s.now().In(s.opts.Location))
	return s.deps.Narrator.Advise(ctx, records, res.Overall)
}

// ReportJob is the scheduled report: advice, optional push and narrative.
func (s *Service) ReportJob(ctx context.Context) error {
	return s.runJob(ctx, "report", func(ctx context.Context) error {
		run, err := s.GenerateAdvice(ctx, false, false)
		if err != nil {
			return err
		}
		if !run.OK() {
			return fmt.Errorf("advice unavailable: %s", run.Result.Message)
		}
		if s.opts.Narrate && s.deps.Narrator != nil {
			if _, err := s.Narrate(ctx); err != nil {
				s.logger.Error().Err(err).Msg("narrative advice failed")
			}
		}
		return nil
	})
}
