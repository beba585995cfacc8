package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Breaker keeps per-task circuit state in Redis so every instance backs off
// together. Redis failures leave the circuit closed.
type Breaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

func NewBreaker(c *redis.Client, baseBackoff, maxBackoff time.Duration) *Breaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff < baseBackoff {
		maxBackoff = baseBackoff
	}
	return &Breaker{redis: c, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

func (b *Breaker) key(task string) string { return fmt.Sprintf("cb:gateway:%s", task) }

// backoff doubles per consecutive failure: 30s, 60s, 120s ... up to maxBackoff.
func (b *Breaker) backoff(failures int) time.Duration {
	d := b.baseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= b.maxBackoff {
			return b.maxBackoff
		}
	}
	return d
}

// Open records a failure for task and starts (or extends) its cooldown.
func (b *Breaker) Open(ctx context.Context, task string) {
	key := b.key(task)
	failures, err := b.redis.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		log.Warn().Err(err).Str("task", task).Msg("breaker state write failed")
		return
	}
	cooldown := b.backoff(int(failures))
	now := b.now()
	retryAt := now.Add(cooldown)

	pipe := b.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt.Unix(),
		"opened_at": now.Unix(),
	})
	pipe.Expire(ctx, key, b.maxBackoff*2)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("task", task).Msg("breaker state write failed")
		return
	}

	log.Warn().
		Str("task", task).
		Dur("cooldown", cooldown).
		Int64("failures", failures).
		Time("retry_at", retryAt).
		Msg("circuit breaker OPENED")
}

// IsOpen reports whether calls for task are still cooling down. An expired
// cooldown moves the circuit to half-open and lets one probe through.
func (b *Breaker) IsOpen(ctx context.Context, task string) bool {
	key := b.key(task)
	vals, err := b.redis.HMGet(ctx, key, "state", "retry_at").Result()
	if err != nil || len(vals) != 2 {
		return false
	}
	state, _ := vals[0].(string)
	if state != "open" {
		return false
	}
	retryStr, _ := vals[1].(string)
	retryAt, _ := strconv.ParseInt(retryStr, 10, 64)
	if b.now().Unix() >= retryAt {
		b.redis.HSet(ctx, key, "state", "half_open")
		log.Info().Str("task", task).Msg("circuit breaker moved to HALF-OPEN")
		return false
	}
	return true
}

// Close resets the circuit after a successful call.
func (b *Breaker) Close(ctx context.Context, task string) {
	key := b.key(task)
	n, err := b.redis.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return
	}
	b.redis.Del(ctx, key)
	log.Info().Str("task", task).Msg("circuit breaker CLOSED (reset)")
}
