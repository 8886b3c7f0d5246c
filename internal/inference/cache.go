package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autobot-platform/autobot/internal/metrics"
)

// ResponseCache keeps recent completions in Redis under a fixed TTL, keyed
// by a digest of the normalized prompt. Semantically-near-but-not-identical
// prompts intentionally miss; only exact repeats (modulo case and spacing)
// are served from cache.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCache creates a response cache with a fixed TTL.
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{client: client, ttl: ttl}
}

func cacheKey(prompt string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "llmcache:" + hex.EncodeToString(sum[:])
}

// Get returns the cached completion for the prompt, or ok=false on a miss.
// Redis errors count as misses so inference still works without the cache.
func (c *ResponseCache) Get(ctx context.Context, prompt string) (string, bool) {
	val, err := c.client.Get(ctx, cacheKey(prompt)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheHitsTotal.WithLabelValues("error").Inc()
			return "", false
		}
		metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		return "", false
	}
	metrics.CacheHitsTotal.WithLabelValues("hit").Inc()
	return val, true
}

// Set stores a completion under the fixed TTL.
func (c *ResponseCache) Set(ctx context.Context, prompt, response string) error {
	return c.client.Set(ctx, cacheKey(prompt), response, c.ttl).Err()
}

// Invalidate drops the cached completion for one prompt.
func (c *ResponseCache) Invalidate(ctx context.Context, prompt string) error {
	return c.client.Del(ctx, cacheKey(prompt)).Err()
}
