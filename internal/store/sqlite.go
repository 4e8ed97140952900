package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/avolkov/paperboy/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS papers (
	source     TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	first_seen DATETIME NOT NULL,
	score      INTEGER NOT NULL DEFAULT 0,
	bucket     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (source, source_id)
);

CREATE TABLE IF NOT EXISTS digest_runs (
	run_id     TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	fetched    INTEGER NOT NULL DEFAULT 0,
	kept       INTEGER NOT NULL DEFAULT 0,
	top_picks  INTEGER NOT NULL DEFAULT 0,
	delivered  INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	value       REAL NOT NULL,
	recorded_at DATETIME NOT NULL
);
`

// SQLiteStore is the durable ledger. Writes are synchronous: a successful
// MarkProcessed means the record survives a crash.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the ledger at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %v", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrUnavailable, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Lookup(ctx context.Context, key model.Key) (*model.ProcessedRecord, error) {
	query, args, err := sq.Select("outcome", "first_seen", "score", "bucket").
		From("papers").
		Where(sq.Eq{"source": key.Source, "source_id": key.SourceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", ErrUnavailable, err)
	}

	rec := model.ProcessedRecord{Key: key}
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&rec.Outcome, &rec.FirstSeen, &rec.Score, &rec.Bucket); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: lookup %s: %v", ErrUnavailable, key, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, rec model.ProcessedRecord) error {
	if !rec.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q for %s", rec.Outcome, rec.Key)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Select("outcome").
		From("papers").
		Where(sq.Eq{"source": rec.Key.Source, "source_id": rec.Key.SourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build query: %v", ErrUnavailable, err)
	}

	var existing model.Outcome
	err = tx.QueryRowContext(ctx, query, args...).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		insert, iargs, err := sq.Insert("papers").
			Columns("source", "source_id", "outcome", "first_seen", "score", "bucket").
			Values(rec.Key.Source, rec.Key.SourceID, rec.Outcome, rec.FirstSeen.UTC(), rec.Score, rec.Bucket).
			ToSql()
		if err != nil {
			return fmt.Errorf("%w: build insert: %v", ErrUnavailable, err)
		}
		if _, err := tx.ExecContext(ctx, insert, iargs...); err != nil {
			return fmt.Errorf("%w: insert %s: %v", ErrUnavailable, rec.Key, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: lookup %s: %v", ErrUnavailable, rec.Key, err)
	case existing == rec.Outcome:
		return nil
	default:
		return &ConflictError{Key: rec.Key, Existing: existing, Attempted: rec.Outcome}
	}
}

func (s *SQLiteStore) Reset(ctx context.Context, key model.Key) error {
	query, args, err := sq.Delete("papers").
		Where(sq.Eq{"source": key.Source, "source_id": key.SourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build delete: %v", ErrUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: reset %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *SQLiteStore) ResetAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM papers"); err != nil {
		return fmt.Errorf("%w: reset all: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) RecentRecords(ctx context.Context, limit int) ([]model.ProcessedRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := sq.Select("source", "source_id", "outcome", "first_seen", "score", "bucket").
		From("papers").
		OrderBy("first_seen DESC", "source ASC", "source_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", ErrUnavailable, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: recent records: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ProcessedRecord
	for rows.Next() {
		var rec model.ProcessedRecord
		if err := rows.Scan(&rec.Key.Source, &rec.Key.SourceID, &rec.Outcome, &rec.FirstSeen, &rec.Score, &rec.Bucket); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrUnavailable, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %v", ErrUnavailable, err)
	}
	return records, nil
}

func (s *SQLiteStore) LogRun(ctx context.Context, run model.RunSummary) error {
	query, args, err := sq.Insert("digest_runs").
		Columns("run_id", "started_at", "fetched", "kept", "top_picks", "delivered", "error").
		Values(run.RunID, run.StartedAt.UTC(), run.Fetched, run.Kept, run.TopPicks, run.Delivered, run.Error).
		Suffix("ON CONFLICT(run_id) DO UPDATE SET fetched=excluded.fetched, kept=excluded.kept, top_picks=excluded.top_picks, delivered=excluded.delivered, error=excluded.error").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build run insert: %v", ErrUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: log run %s: %v", ErrUnavailable, run.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) LogMetric(ctx context.Context, runID, name string, value float64) error {
	query, args, err := sq.Insert("metrics").
		Columns("run_id", "name", "value", "recorded_at").
		Values(runID, name, value, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build metric insert: %v", ErrUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: log metric %s: %v", ErrUnavailable, name, err)
	}
	return nil
}
