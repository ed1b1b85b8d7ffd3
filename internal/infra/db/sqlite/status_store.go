package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/repository"
)

var _ repository.JobStatusStore = (*StatusStore)(nil)

// StatusStore keeps job records in a local SQLite file for single-node deployments.
type StatusStore struct {
	db *sql.DB
}

func Open(path string) (*StatusStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; the API and worker share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &StatusStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS research_jobs (
  id                 TEXT PRIMARY KEY,
  state              TEXT NOT NULL,
  error              TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
`)
	return err
}

func (s *StatusStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *StatusStore) Put(ctx context.Context, rec model.JobRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO research_jobs(id, state, error, created_at_unix_ms, updated_at_unix_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  state = excluded.state,
  error = excluded.error,
  updated_at_unix_ms = excluded.updated_at_unix_ms
`,
		rec.ID,
		string(rec.State),
		rec.Error,
		rec.CreatedAt.UnixMilli(),
		rec.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *StatusStore) Get(ctx context.Context, jobID string) (model.JobRecord, error) {
	var rec model.JobRecord
	var state string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
SELECT id, state, error, created_at_unix_ms, updated_at_unix_ms
FROM research_jobs
WHERE id = ?
`, jobID).Scan(&rec.ID, &state, &rec.Error, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.JobRecord{}, domain.NotFoundError("job "+jobID, nil)
		}
		return model.JobRecord{}, domain.StorageError("read job status", err)
	}
	rec.State = model.JobState(state)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, nil
}
