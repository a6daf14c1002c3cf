package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/fsutil"
)

// Log is the append-only monitor history. Records are returned oldest first.
type Log interface {
	Append(ctx context.Context, r Record) error
	Since(ctx context.Context, cutoff time.Time) ([]Record, error)
	Latest(ctx context.Context) (Record, bool, error)
	// Prune drops records older than cutoff and reports how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// FileLog keeps one JSON record per line.
type FileLog struct {
	path   string
	loc    *time.Location
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileLog opens the JSON-lines log at path. The file is created on first append.
func NewFileLog(path string, loc *time.Location, logger zerolog.Logger) *FileLog {
	if loc == nil {
		loc = time.UTC
	}
	return &FileLog{path: path, loc: loc, logger: logger.With().Str("component", "monitor_log").Logger()}
}

func (l *FileLog) Append(_ context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal monitor record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := fsutil.EnsureDir(l.path); err != nil {
		return fmt.Errorf("create monitor log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msg("open monitor log failed")
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msg("append monitor record failed")
		return err
	}
	return nil
}

func (l *FileLog) Since(_ context.Context, cutoff time.Time) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	return filterSince(all, cutoff, l.loc), nil
}

func (l *FileLog) Latest(_ context.Context) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.readAll()
	if err != nil || len(all) == 0 {
		return Record{}, false, err
	}
	return all[len(all)-1], true, nil
}

// Prune rewrites the file without records older than cutoff. Lines that do
// not decode, or whose timestamp does not parse, are kept verbatim.
func (l *FileLog) Prune(_ context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines, err := l.readLines()
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	removed, unreadable := 0, 0
	for _, ln := range lines {
		if ln.rec == nil {
			unreadable++
		} else if t, err := ln.rec.Time(l.loc); err == nil && t.Before(cutoff) {
			removed++
			continue
		}
		buf.Write(ln.raw)
		buf.WriteByte('\n')
	}
	if removed == 0 {
		return 0, nil
	}
	if unreadable > 0 {
		l.logger.Warn().Int("lines", unreadable).Msg("keeping malformed monitor lines while pruning")
	}

	if err := fsutil.WriteFileAtomic(l.path, buf.Bytes(), 0o644); err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msg("rewrite monitor log failed")
		return 0, err
	}
	l.logger.Info().Int("removed", removed).Int("kept", len(lines)-removed).Msg("monitor log pruned")
	return removed, nil
}

func (l *FileLog) Close() error {
	return nil
}

// logLine is one non-empty line of the file; rec is nil when it does not decode.
type logLine struct {
	raw []byte
	rec *Record
}

func (l *FileLog) readLines() ([]logLine, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []logLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		ln := logLine{raw: append([]byte(nil), raw...)}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			l.logger.Warn().Err(err).Int("line", lineNo).Msg("skipping malformed monitor record")
		} else {
			ln.rec = &r
		}
		out = append(out, ln)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read monitor log: %w", err)
	}
	return out, nil
}

func (l *FileLog) readAll() ([]Record, error) {
	lines, err := l.readLines()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(lines))
	for _, ln := range lines {
		if ln.rec != nil {
			out = append(out, *ln.rec)
		}
	}
	return out, nil
}

// filterSince keeps records at or after cutoff. Unparseable timestamps are dropped.
func filterSince(records []Record, cutoff time.Time, loc *time.Location) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		t, err := r.Time(loc)
		if err != nil || t.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}

var _ Log = (*FileLog)(nil)

// Backend selects the Log implementation.
type Backend string

const (
	BackendJSONL  Backend = "jsonl"
	BackendSQLite Backend = "sqlite"
)

// Open builds the Log for backend. path is the JSON-lines file or the SQLite database.
func Open(backend Backend, path string, loc *time.Location, logger zerolog.Logger) (Log, error) {
	switch backend {
	case "", BackendJSONL:
		return NewFileLog(path, loc, logger), nil
	case BackendSQLite:
		l, err := OpenSQLite(path, loc, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown monitor backend %q", backend)
	}
}
