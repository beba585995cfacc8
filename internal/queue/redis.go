package queue

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// CancelSet is the shared set of cancelled job ids. Every instance polls it,
// so a cancel issued against one instance reaches a job running on another.
type CancelSet struct {
	client    *redis.Client
	CancelKey string
	ttl       time.Duration
}

// NewCancelSet connects to Redis and pings it.
func NewCancelSet(redisURL string) (*CancelSet, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewCancelSetFromClient(c), nil
}

// NewCancelSetFromClient wraps an existing client.
func NewCancelSetFromClient(c *redis.Client) *CancelSet {
	return &CancelSet{client: c, CancelKey: "jobs:cancelled:set", ttl: 24 * time.Hour}
}

func (q *CancelSet) Close() error { return q.client.Close() }

// Ping checks redis connectivity.
func (q *CancelSet) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// CancelJob marks a job as cancelled. The set's expiry is refreshed so
// entries for long-finished jobs do not accumulate forever.
func (q *CancelSet) CancelJob(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, q.CancelKey, jobID)
	pipe.Expire(ctx, q.CancelKey, q.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// IsCancelled returns true if job is cancelled.
func (q *CancelSet) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return q.client.SIsMember(ctx, q.CancelKey, jobID).Result()
}

// Cancelled returns which of ids are in the set, in one round trip.
func (q *CancelSet) Cancelled(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	res, err := q.client.SMIsMember(ctx, q.CancelKey, members...).Result()
	if err != nil {
		return nil, err
	}
	for i, hit := range res {
		if hit {
			out[ids[i]] = true
		}
	}
	return out, nil
}

// Forget removes a finished job from the set.
func (q *CancelSet) Forget(ctx context.Context, jobID string) error {
	return q.client.SRem(ctx, q.CancelKey, jobID).Err()
}
