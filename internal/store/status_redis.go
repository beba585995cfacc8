package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdfsuite/internal/pdf"
)

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// JobRecord is the persisted view of one job.
type JobRecord struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	JobType      string                 `json:"job_type"`
	Status       Status                 `json:"status"`
	Progress     int                    `json:"progress"`
	InputFiles   []string               `json:"input_files"`
	OutputFile   string                 `json:"output_file,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Notice       string                 `json:"notice,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
}

// RedisStore keeps job records in hashes keyed job:{id}:status with a
// per-user index set user:{user}:jobs.
type RedisStore struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects and pings. Records expire after ttl; zero keeps them.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
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
	return NewRedisStoreFromClient(c, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: c, keyNS: "job", ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(jobID string) string   { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }
func (s *RedisStore) userKey(user string) string { return fmt.Sprintf("user:%s:jobs", user) }

// Create writes a new record and indexes it under its user.
func (s *RedisStore) Create(ctx context.Context, rec JobRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return pdf.Validationf("job record needs an id and a user")
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	inputs, _ := json.Marshal(rec.InputFiles)
	m := map[string]interface{}{
		"id":          rec.ID,
		"user_id":     rec.UserID,
		"job_type":    rec.JobType,
		"status":      string(rec.Status),
		"progress":    rec.Progress,
		"input_files": string(inputs),
		"created_at":  rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  rec.UpdatedAt.Format(time.RFC3339Nano),
	}
	if rec.Summary != nil {
		b, _ := json.Marshal(rec.Summary)
		m["summary"] = string(b)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(rec.ID), m)
	pipe.SAdd(ctx, s.userKey(rec.UserID), rec.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(rec.ID), s.ttl)
		pipe.Expire(ctx, s.userKey(rec.UserID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return pdf.WrapIO("job store", err)
}

func (s *RedisStore) update(ctx context.Context, jobID string, m map[string]interface{}) error {
	m["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
	// HSet on a missing key would resurrect an expired record.
	n, err := s.client.Exists(ctx, s.key(jobID)).Result()
	if err != nil {
		return pdf.WrapIO("job store", err)
	}
	if n == 0 {
		return pdf.WrapIO("job store", fmt.Errorf("no record for job %s", jobID))
	}
	return pdf.WrapIO("job store", s.client.HSet(ctx, s.key(jobID), m).Err())
}

// SetProgress marks the job processing at the given percentage.
func (s *RedisStore) SetProgress(ctx context.Context, jobID string, percent int) error {
	return s.update(ctx, jobID, map[string]interface{}{
		"status":   string(StatusProcessing),
		"progress": percent,
	})
}

// Complete stores the terminal success state.
func (s *RedisStore) Complete(ctx context.Context, jobID, outputFile string, summary map[string]interface{}) error {
	m := map[string]interface{}{
		"status":   string(StatusCompleted),
		"progress": 100,
	}
	if outputFile != "" {
		m["output_file"] = outputFile
	}
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		m["summary"] = string(b)
	}
	return s.update(ctx, jobID, m)
}

// Fail stores the terminal failure state with a short message.
func (s *RedisStore) Fail(ctx context.Context, jobID, message string) error {
	return s.update(ctx, jobID, map[string]interface{}{
		"status":        string(StatusFailed),
		"error_message": message,
	})
}

// SetNotice attaches a non-fatal message, e.g. an artifact that could not be persisted.
func (s *RedisStore) SetNotice(ctx context.Context, jobID, notice string) error {
	return s.update(ctx, jobID, map[string]interface{}{"notice": notice})
}

// Get returns the record, or ok=false when it does not exist or has expired.
func (s *RedisStore) Get(ctx context.Context, jobID string) (JobRecord, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return JobRecord{}, false, pdf.WrapIO("job store", err)
	}
	if len(res) == 0 {
		return JobRecord{}, false, nil
	}
	return decodeRecord(res), true, nil
}

// ListByUser returns the user's records, newest first. Index entries whose
// record has expired are pruned.
func (s *RedisStore) ListByUser(ctx context.Context, user string) ([]JobRecord, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(user)).Result()
	if err != nil {
		return nil, pdf.WrapIO("job store", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, pdf.WrapIO("job store", err)
	}
	out := make([]JobRecord, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		res := cmd.Val()
		if len(res) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, decodeRecord(res))
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.userKey(user), stale...).Err()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func decodeRecord(res map[string]string) JobRecord {
	rec := JobRecord{
		ID:           res["id"],
		UserID:       res["user_id"],
		JobType:      res["job_type"],
		Status:       Status(res["status"]),
		OutputFile:   res["output_file"],
		ErrorMessage: res["error_message"],
		Notice:       res["notice"],
	}
	if p, err := strconv.Atoi(res["progress"]); err == nil {
		rec.Progress = p
	}
	if v := res["input_files"]; v != "" {
		_ = json.Unmarshal([]byte(v), &rec.InputFiles)
	}
	if v := res["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.CreatedAt = t
		}
	}
	if v := res["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.UpdatedAt = t
		}
	}
	if v := res["summary"]; v != "" {
		_ = json.Unmarshal([]byte(v), &rec.Summary)
	}
	return rec
}

// Ping checks redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStore) Client() *redis.Client { return s.client }
