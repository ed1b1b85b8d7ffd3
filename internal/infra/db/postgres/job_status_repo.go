package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/repository"
)

var _ repository.JobStatusStore = (*jobStatusRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS research_jobs (
  id         TEXT PRIMARY KEY,
  state      TEXT NOT NULL,
  error      TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS research_jobs_state_idx ON research_jobs (state, updated_at);`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type jobStatusRepo struct {
	db execer
}

func NewJobStatusRepo(pool *pgxpool.Pool) *jobStatusRepo {
	return &jobStatusRepo{db: pool}
}

// EnsureSchema creates the research_jobs table when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

func (r *jobStatusRepo) Put(ctx context.Context, rec model.JobRecord) error {
	const q = `
INSERT INTO research_jobs (id, state, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  error = EXCLUDED.error,
  updated_at = EXCLUDED.updated_at;`

	_, err := r.db.Exec(ctx, q, rec.ID, string(rec.State), rec.Error, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *jobStatusRepo) Get(ctx context.Context, jobID string) (model.JobRecord, error) {
	const q = `SELECT id, state, error, created_at, updated_at FROM research_jobs WHERE id = $1;`

	var rec model.JobRecord
	var state string
	err := r.db.QueryRow(ctx, q, jobID).Scan(&rec.ID, &state, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.JobRecord{}, domain.NotFoundError("job "+jobID, nil)
		}
		return model.JobRecord{}, domain.StorageError("read job status", errors.Join(domain.ErrReadDatabaseRow, err))
	}
	rec.State = model.JobState(state)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
