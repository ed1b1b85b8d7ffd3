package redis

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/internal/config"
	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), &config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestClientOptions(t *testing.T) {
	t.Run("bare address", func(t *testing.T) {
		opts, err := clientOptions(&config.RedisConfig{URL: "localhost:6379", DB: 2, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "pw", opts.Password)
	})
	t.Run("url", func(t *testing.T) {
		opts, err := clientOptions(&config.RedisConfig{URL: "redis://:secret@cache:6380/3"})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 3, opts.DB)
		assert.Equal(t, "secret", opts.Password)
	})
	t.Run("bad url", func(t *testing.T) {
		_, err := clientOptions(&config.RedisConfig{URL: "redis://cache:6380/notadb"})
		assert.Error(t, err)
	})
}

func TestJobQueue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	q := NewJobQueue(c, "")

	t.Run("empty queue", func(t *testing.T) {
		_, err := q.Dequeue(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrQueueEmpty)
	})

	t.Run("fifo order with delivery ids", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, adapter.JobMessage{JobID: "a", Timeout: 10 * time.Minute}))
		require.NoError(t, q.Enqueue(ctx, adapter.JobMessage{JobID: "b", Timeout: time.Minute}))

		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		first, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "a", first.JobID)
		assert.Equal(t, 10*time.Minute, first.Timeout)
		assert.Len(t, first.DeliveryID, 26)
		assert.False(t, first.EnqueuedAt.IsZero())

		second, err := q.Dequeue(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, "b", second.JobID)
		assert.NotEqual(t, first.DeliveryID, second.DeliveryID)

		n, err = q.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStatusStore(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	s := NewStatusStore(c, 0)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	rec := model.JobRecord{ID: "job-1", State: model.JobStateFailed, Error: "ModelError: boom", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	t.Run("records outlive any idle period by default", func(t *testing.T) {
		mr.FastForward(90 * 24 * time.Hour)
		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, got.State)
		assert.Zero(t, mr.TTL("research:job:job-1"), "no expiry is set")
	})

	t.Run("an operator ttl expires records", func(t *testing.T) {
		expiring := NewStatusStore(c, time.Hour)
		require.NoError(t, expiring.Put(ctx, model.JobRecord{ID: "job-2", State: model.JobStateFinished}))
		mr.FastForward(2 * time.Hour)
		_, err := expiring.Get(ctx, "job-2")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("corrupt record is a storage error", func(t *testing.T) {
		require.NoError(t, mr.Set("research:job:bad", "{"))
		_, err := s.Get(ctx, "bad")
		assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	})
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	l := NewLocker(c)
	key := JobLockKey("job-1")

	token, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = l.TryLock(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrJobLocked)

	require.NoError(t, l.Unlock(ctx, key, "someone-else"))
	_, err = l.TryLock(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrJobLocked, "a foreign token must not release the lock")

	require.NoError(t, l.Unlock(ctx, key, token))
	_, err = l.TryLock(ctx, key, time.Minute)
	assert.NoError(t, err)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	rl := NewRateLimiter(c)
	key := SubmitKey("10.0.0.1")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := rl.Allow(ctx, SubmitKey("10.0.0.2"), 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other)

	mr.FastForward(61 * time.Second)
	ok, err = rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window resets")
}

// --- SummaryCache ---

type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", redis.Nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error { return nil }
func (m *mockRedisClient) Close() error                                  { return nil }

type mockSource struct {
	searches  int
	summaries int
	err       error
}

func (m *mockSource) Search(ctx context.Context, query string, limit int) ([]string, error) {
	m.searches++
	if m.err != nil {
		return nil, m.err
	}
	return []string{"Quantum computing", "Qubit"}, nil
}

func (m *mockSource) Summary(ctx context.Context, title string) (string, bool, error) {
	m.summaries++
	if m.err != nil {
		return "", false, m.err
	}
	if title == "Nowhere" {
		return "", false, nil
	}
	return "About " + title, true, nil
}

func TestSummaryCache(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	t.Run("second lookup is served from redis", func(t *testing.T) {
		c, _ := newTestClient(t)
		src := &mockSource{}
		cache := NewSummaryCache(src, c, time.Hour, &logger)

		for i := 0; i < 2; i++ {
			titles, err := cache.Search(ctx, "Quantum Computing", 5)
			require.NoError(t, err)
			assert.Equal(t, []string{"Quantum computing", "Qubit"}, titles)

			s, found, err := cache.Summary(ctx, "Qubit")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "About Qubit", s)

			_, found, err = cache.Summary(ctx, "Nowhere")
			require.NoError(t, err)
			assert.False(t, found)
		}
		assert.Equal(t, 1, src.searches)
		assert.Equal(t, 2, src.summaries)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		sets := 0
		rc := &mockRedisClient{SetFunc: func(ctx context.Context, key string, value interface{}, exp time.Duration) error {
			sets++
			return nil
		}}
		src := &mockSource{err: errors.New("timeout")}
		cache := NewSummaryCache(src, rc, time.Hour, &logger)

		_, err := cache.Search(ctx, "q", 5)
		assert.Error(t, err)
		_, _, err = cache.Summary(ctx, "t")
		assert.Error(t, err)
		assert.Zero(t, sets)
	})

	t.Run("redis outage falls through to the source", func(t *testing.T) {
		rc := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", errors.New("conn refused") },
			SetFunc: func(ctx context.Context, key string, value interface{}, exp time.Duration) error {
				return errors.New("conn refused")
			},
		}
		src := &mockSource{}
		cache := NewSummaryCache(src, rc, time.Hour, &logger)

		s, found, err := cache.Summary(ctx, "Qubit")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "About Qubit", s)
	})
}
