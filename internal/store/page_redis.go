package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// InspectCache remembers page geometry and metadata summaries by the
// SHA-256 of the uploaded bytes, so re-inspecting the same file skips the
// loader.
type InspectCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInspectCache(c *redis.Client, ttl time.Duration) *InspectCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InspectCache{client: c, ttl: ttl}
}

// Digest is the cache key for data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *InspectCache) key(digest string) string { return fmt.Sprintf("inspect:%s", digest) }

// Get decodes the cached value into v. ok is false on a miss.
func (c *InspectCache) Get(ctx context.Context, digest string, v interface{}) (bool, error) {
	b, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		// drop entries written by an incompatible version
		_ = c.client.Del(ctx, c.key(digest)).Err()
		return false, nil
	}
	return true, nil
}

func (c *InspectCache) Put(ctx context.Context, digest string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(digest), b, c.ttl).Err()
}
