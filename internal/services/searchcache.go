package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codequarry/codequarry-backend/internal/logger"
)

// CachedVideoSearch fronts a VideoSearch with a Redis TTL cache so repeated
// keyword-expansion queries don't burn API quota. A nil client degrades to a
// pass-through.
type cachedVideoSearch struct {
	log   *logger.Logger
	inner VideoSearch
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedVideoSearch(log *logger.Logger, inner VideoSearch, rdb *redis.Client, ttl time.Duration) VideoSearch {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &cachedVideoSearch{
		log:   log.With("service", "CachedVideoSearch"),
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
	}
}

func (c *cachedVideoSearch) Search(ctx context.Context, query string, maxResults int) ([]VideoCandidate, error) {
	ctx = defaultCtx(ctx)
	if c.rdb == nil {
		return c.inner.Search(ctx, query, maxResults)
	}

	key := fmt.Sprintf("yt:search:%s:%d", query, maxResults)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []VideoCandidate
		if err := json.Unmarshal(raw, &cached); err == nil {
			c.log.Debug("Search cache hit", "query", query)
			return cached, nil
		}
	}

	results, err := c.inner.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(results); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("Search cache write failed", "query", query, "error", err)
		}
	}
	return results, nil
}
