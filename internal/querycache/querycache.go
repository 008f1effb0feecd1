// Package querycache caches search result pages in Redis. Keys embed the
// index generation, so every completed sync that changed the corpus starts a
// fresh keyspace and stale entries simply age out via TTL. Concurrent
// identical queries are collapsed with singleflight.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/pkg/logger"
	pkgredis "github.com/docscout/docscout/pkg/redis"
)

const keyPrefix = "docscout:search:"

type Cache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	log    *slog.Logger
}

func New(client *pkgredis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    logger.WithComponent("query-cache"),
	}
}

// GetOrCompute returns the cached result for (generation, query, page) or
// computes and stores it. The second return value reports a cache hit. Redis
// failures degrade to computing directly.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	generation int64,
	query string,
	page int,
	compute func() index.Result,
) (index.Result, bool) {
	key := c.buildKey(generation, query, page)
	if result, ok := c.get(ctx, key); ok {
		return result, true
	}
	v, _, _ := c.group.Do(key, func() (any, error) {
		result := compute()
		c.set(ctx, key, result)
		return result, nil
	})
	return v.(index.Result), false
}

func (c *Cache) get(ctx context.Context, key string) (index.Result, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.log.Error("cache get failed", "key", key, "error", err)
		}
		return index.Result{}, false
	}
	var result index.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.log.Error("cache unmarshal failed", "key", key, "error", err)
		return index.Result{}, false
	}
	return result, true
}

func (c *Cache) set(ctx context.Context, key string, result index.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) buildKey(generation int64, query string, page int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d", query, page))
	return fmt.Sprintf("%sg%d:%x", keyPrefix, generation, sum[:16])
}
