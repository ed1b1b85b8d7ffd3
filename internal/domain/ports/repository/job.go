package repository

import (
	"context"

	"research-assistant/internal/domain/model"
)

// JobStatusStore keeps the lifecycle state of each job. Backends: per-job
// file, Redis, Postgres, SQLite.
type JobStatusStore interface {
	Put(ctx context.Context, rec model.JobRecord) error
	// Get returns domain.ErrNotFound for unknown ids.
	Get(ctx context.Context, jobID string) (model.JobRecord, error)
}

// ArtifactStore is the durable per-job namespace holding inputs and outputs.
type ArtifactStore interface {
	CreateNamespace(ctx context.Context, jobID string) error
	NamespaceExists(ctx context.Context, jobID string) (bool, error)
	Put(ctx context.Context, jobID, name string, data []byte) error
	// Get returns domain.ErrNotFound when the artifact does not exist.
	Get(ctx context.Context, jobID, name string) ([]byte, error)
	// List returns visible artifact names (no dot-prefixed bookkeeping files), sorted.
	List(ctx context.Context, jobID string) ([]string, error)
}
