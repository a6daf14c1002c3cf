package app

import (
	"context"
	"errors"
	"time"

	"btc-advisor/internal/daily"
)

const backfillBatch = 500

// Backfill 将 daily_data.json 中的日线记录回填到 PostgreSQL。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	s, err := a.newService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer s.close()

	if opts.Refresh {
		if _, err := s.svc.Refresh(ctx, true); err != nil {
			return err
		}
	}

	records, err := a.LoadDaily()
	if err != nil {
		return err
	}
	records = filterDaily(records, opts.From, opts.To)
	if len(records) == 0 {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	if opts.DryRun {
		a.Logger.Warn().Int("records", len(records)).
			Str("first", records[0].Date).
			Str("last", records[len(records)-1].Date).
			Msg("回填 dry-run：不会写入数据库")
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if !store.Configured() {
		return errors.New("database.dsn 未配置，无法回填")
	}

	written := 0
	for start := 0; start < len(records); start += backfillBatch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := min(start+backfillBatch, len(records))
		n, err := store.UpsertDaily(ctx, records[start:end])
		written += n
		if err != nil {
			a.Logger.Error().Err(err).Str("from", records[start].Date).Msg("回填失败")
			return err
		}
	}

	total, err := store.CountDaily(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("written", written).Int64("total", total).Msg("回填完成")
	return nil
}

// filterDaily keeps records whose date lies in [from, to]. Nil bounds are open.
func filterDaily(records []daily.Record, from, to *time.Time) []daily.Record {
	if from == nil && to == nil {
		return records
	}
	out := make([]daily.Record, 0, len(records))
	for _, r := range records {
		if from != nil && r.Date < from.Format("2006-01-02") {
			continue
		}
		if to != nil && r.Date > to.Format("2006-01-02") {
			continue
		}
		out = append(out, r)
	}
	return out
}
