package tei

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ScoreCache keeps cross-encoder scores in redis keyed by the query/text
// pair. The cross-encoder is pure, so a cached score never goes stale;
// TTL only bounds memory. Every cache failure degrades to a miss.
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScoreCache returns a disabled cache when client is nil.
func NewScoreCache(client *redis.Client, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ScoreCache{client: client, ttl: ttl}
}

func (c *ScoreCache) get(ctx context.Context, query, text string) (float64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, cacheKey(query, text)).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("rerank_cache_get_failed", "error", err)
		}
		return 0, false
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

func (c *ScoreCache) put(ctx context.Context, query, text string, score float64) {
	if c == nil || c.client == nil {
		return
	}
	err := c.client.Set(ctx, cacheKey(query, text), strconv.FormatFloat(score, 'g', -1, 64), c.ttl).Err()
	if err != nil {
		slog.Debug("rerank_cache_put_failed", "error", err)
	}
}

func cacheKey(query, text string) string {
	sum := sha256.Sum256([]byte(query + "\x00" + text))
	return "rerank:" + hex.EncodeToString(sum[:16])
}
