package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"btc-advisor/internal/daily"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS daily_records (
        day        DATE PRIMARY KEY,
        price      NUMERIC,
        ahr999     NUMERIC,
        fear_greed INTEGER,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS advice_runs (
        id         UUID PRIMARY KEY,
        status     TEXT NOT NULL,
        message    TEXT NOT NULL DEFAULT '',
        action     TEXT NOT NULL,
        confidence TEXT NOT NULL,
        report     TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_advice_runs_created ON advice_runs (created_at DESC);`,
}

const (
	upsertDailyRecordSQL = `INSERT INTO daily_records (
        day,
        price,
        ahr999,
        fear_greed
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (day) DO UPDATE
    SET
        price      = COALESCE(EXCLUDED.price, daily_records.price),
        ahr999     = COALESCE(EXCLUDED.ahr999, daily_records.ahr999),
        fear_greed = COALESCE(EXCLUDED.fear_greed, daily_records.fear_greed),
        updated_at = now();`

	listDailyBetweenSQL = `SELECT
        day,
        price,
        ahr999,
        fear_greed,
        updated_at
    FROM daily_records
    WHERE day >= $1
      AND day < $2
    ORDER BY day;`

	countDailySQL = `SELECT COUNT(*) FROM daily_records;`

	insertAdviceRunSQL = `INSERT INTO advice_runs (
        id,
        status,
        message,
        action,
        confidence,
        report
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING created_at;`

	listRecentRunsSQL = `SELECT
        id,
        status,
        message,
        action,
        confidence,
        report,
        created_at
    FROM advice_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteRunsBeforeSQL = `DELETE FROM advice_runs WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DailyStore persists the daily record mirror.
type DailyStore interface {
	UpsertDaily(ctx context.Context, records []daily.Record) (int, error)
	ListDailyBetween(ctx context.Context, from, to time.Time) ([]DailyRecord, error)
	CountDaily(ctx context.Context) (int64, error)
}

// RunStore 记录每次建议运行。
type RunStore interface {
	InsertRun(ctx context.Context, run AdviceRun) (AdviceRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]AdviceRun, error)
	DeleteRunsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to daily records and advice runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store. A nil pool yields an unconfigured store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Configured reports whether a pool is attached.
func (s *Store) Configured() bool {
	return s != nil && s.pool != nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaSQL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// 解锁失败时连接释放后锁随会话结束
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertDaily mirrors daily records in one batch. Missing fields never
// overwrite stored values.
func (s *Store) UpsertDaily(ctx context.Context, records []daily.Record) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	queued := 0
	for _, rec := range records {
		day, parseErr := time.Parse("2006-01-02", rec.Date)
		if parseErr != nil {
			continue
		}
		var fearGreed any
		if rec.FearGreedValue != nil {
			fearGreed = int32(*rec.FearGreedValue)
		}
		batch.Queue(upsertDailyRecordSQL, day, nullableDecimal(rec.Price), nullableDecimal(rec.AHR999), fearGreed)
		queued++
	}
	if queued == 0 {
		return 0, nil
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < queued; i++ {
		if _, execErr := results.Exec(); execErr != nil {
			return i, fmt.Errorf("upsert daily record: %w", execErr)
		}
	}
	return queued, nil
}

// ListDailyBetween lists daily records within [from, to).
func (s *Store) ListDailyBetween(ctx context.Context, from, to time.Time) ([]DailyRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily between: %w", queryErr)
	}
	defer rows.Close()

	records := make([]DailyRecord, 0)
	for rows.Next() {
		var rec DailyRecord
		if scanErr := rows.Scan(&rec.Date, &rec.Price, &rec.AHR999, &rec.FearGreed, &rec.UpdatedAt); scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountDaily counts mirrored days.
func (s *Store) CountDaily(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDailySQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count daily records: %w", scanErr)
	}
	return count, nil
}

// InsertRun persists an advice run.
func (s *Store) InsertRun(ctx context.Context, run AdviceRun) (AdviceRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return AdviceRun{}, err
	}

	row := pool.QueryRow(ctx, insertAdviceRunSQL,
		run.ID,
		run.Status,
		run.Message,
		run.Action,
		run.Confidence,
		run.Report,
	)
	if scanErr := row.Scan(&run.CreatedAt); scanErr != nil {
		return AdviceRun{}, fmt.Errorf("insert advice run: %w", scanErr)
	}
	return run, nil
}

// ListRecentRuns lists the most recent advice runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]AdviceRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]AdviceRun, 0, limit)
	for rows.Next() {
		var run AdviceRun
		if err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.Message,
			&run.Action,
			&run.Confidence,
			&run.Report,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// DeleteRunsBefore deletes historical runs.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete runs before: %w", execErr)
	}
	return nil
}

func nullableDecimal(v *float64) any {
	if v == nil {
		return nil
	}
	return decimal.NewFromFloat(*v)
}

var (
	_ DailyStore     = (*Store)(nil)
	_ RunStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
