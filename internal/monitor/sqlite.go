package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteLog stores monitor records in a single SQLite table.
type SQLiteLog struct {
	db     *sql.DB
	loc    *time.Location
	mu     sync.Mutex
	logger zerolog.Logger
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string, loc *time.Location, logger zerolog.Logger) (*SQLiteLog, error) {
	if loc == nil {
		loc = time.UTC
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps in-memory databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	l := &SQLiteLog{db: db, loc: loc, logger: logger.With().Str("component", "monitor_sqlite").Logger()}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.logger.Info().Str("path", path).Msg("sqlite monitor log opened")
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitor_records (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_unix   INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			payload   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_monitor_ts ON monitor_records(ts_unix)`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (l *SQLiteLog) Append(ctx context.Context, r Record) error {
	t, err := r.Time(l.loc)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal monitor record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO monitor_records (ts_unix, timestamp, payload) VALUES (?, ?, ?)`,
		t.Unix(), r.Timestamp, string(payload))
	if err != nil {
		l.logger.Error().Err(err).Msg("insert monitor record failed")
		return fmt.Errorf("insert monitor record: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Since(ctx context.Context, cutoff time.Time) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		`SELECT payload FROM monitor_records WHERE ts_unix >= ? ORDER BY ts_unix ASC, id ASC`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("query monitor records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			l.logger.Warn().Err(err).Msg("skipping malformed monitor record")
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *SQLiteLog) Latest(ctx context.Context) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var payload string
	err := l.db.QueryRowContext(ctx,
		`SELECT payload FROM monitor_records ORDER BY ts_unix DESC, id DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query latest monitor record: %w", err)
	}
	var r Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Record{}, false, fmt.Errorf("decode latest monitor record: %w", err)
	}
	return r, true, nil
}

func (l *SQLiteLog) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `DELETE FROM monitor_records WHERE ts_unix < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune monitor records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info().Int64("removed", n).Msg("monitor log pruned")
	}
	return int(n), nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

var _ Log = (*SQLiteLog)(nil)
