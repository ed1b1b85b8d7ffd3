package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/infra/metrics"
)

var _ adapter.KnowledgeSource = (*SummaryCache)(nil)

// SummaryCache memoizes knowledge-source lookups. Errors from the inner
// source are never cached; "not found" answers are.
type SummaryCache struct {
	inner  adapter.KnowledgeSource
	cache  RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

type cachedSummary struct {
	Summary string `json:"summary"`
	Found   bool   `json:"found"`
}

func NewSummaryCache(inner adapter.KnowledgeSource, cache RedisClient, ttl time.Duration, logger *zerolog.Logger) *SummaryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	l := logger.With().Str("component", "SummaryCache").Logger()
	return &SummaryCache{inner: inner, cache: cache, ttl: ttl, logger: &l}
}

func searchKey(query string, limit int) string {
	return fmt.Sprintf("wiki:search:%d:%s", limit, strings.ToLower(strings.TrimSpace(query)))
}

func summaryKey(title string) string {
	return "wiki:summary:" + title
}

func (c *SummaryCache) Search(ctx context.Context, query string, limit int) ([]string, error) {
	key := searchKey(query, limit)
	if val, err := c.cache.Get(ctx, key); err == nil {
		var titles []string
		if json.Unmarshal([]byte(val), &titles) == nil {
			metrics.IncCacheRequest("wiki_search", "hit")
			return titles, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("wiki_search", "miss")
	titles, err := c.inner.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(titles); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return titles, nil
}

func (c *SummaryCache) Summary(ctx context.Context, title string) (string, bool, error) {
	key := summaryKey(title)
	if val, err := c.cache.Get(ctx, key); err == nil {
		var cs cachedSummary
		if json.Unmarshal([]byte(val), &cs) == nil {
			metrics.IncCacheRequest("wiki_summary", "hit")
			return cs.Summary, cs.Found, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("wiki_summary", "miss")
	summary, found, err := c.inner.Summary(ctx, title)
	if err != nil {
		return "", false, err
	}
	if data, err := json.Marshal(cachedSummary{Summary: summary, Found: found}); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return summary, found, nil
}
