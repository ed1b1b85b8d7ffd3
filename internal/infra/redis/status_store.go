package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/repository"
)

var _ repository.JobStatusStore = (*StatusStore)(nil)

// StatusStore keeps job records as JSON strings. Records never expire unless
// ttl is positive.
type StatusStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewStatusStore(client RedisClient, ttl time.Duration) *StatusStore {
	if ttl < 0 {
		ttl = 0
	}
	return &StatusStore{client: client, ttl: ttl}
}

func (s *StatusStore) statusKey(jobID string) string {
	return "research:job:" + jobID
}

func (s *StatusStore) Put(ctx context.Context, rec model.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.statusKey(rec.ID), data, s.ttl)
}

func (s *StatusStore) Get(ctx context.Context, jobID string) (model.JobRecord, error) {
	data, err := s.client.Get(ctx, s.statusKey(jobID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.JobRecord{}, domain.NotFoundError("job "+jobID, nil)
		}
		return model.JobRecord{}, domain.StorageError("read job status", err)
	}
	var rec model.JobRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.JobRecord{}, domain.StorageError("decode job status", err)
	}
	return rec, nil
}
