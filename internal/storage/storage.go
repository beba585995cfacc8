// Package storage persists job artifacts in S3 or on local disk, optionally
// encrypted at rest.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/local/pdfsuite/internal/config"
)

// ErrNotFound is returned by Get for a key that does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store is an artifact backend.
type Store interface {
	Put(ctx context.Context, key string, data []byte, meta Metadata) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Name() string
}

// Metadata travels with an artifact.
type Metadata struct {
	JobID       string
	UserID      string
	Operation   string
	ContentType string
}

func (m Metadata) asMap() map[string]string {
	out := map[string]string{}
	if m.JobID != "" {
		out["job_id"] = m.JobID
	}
	if m.UserID != "" {
		out["user_id"] = m.UserID
	}
	if m.Operation != "" {
		out["operation"] = m.Operation
	}
	return out
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactKey builds {user}/{operation}/{operation}_{unix}_{job}.pdf. The
// job id keeps keys distinct for jobs finishing in the same second.
// Characters outside [A-Za-z0-9._-] become underscores.
func ArtifactKey(userID, operation, jobID string, at time.Time) string {
	user := keySegment(userID)
	job := unsafeKeyChars.ReplaceAllString(jobID, "_")
	if job == "" {
		return fmt.Sprintf("%s/%s/%s_%d.pdf", user, operation, operation, at.Unix())
	}
	return fmt.Sprintf("%s/%s/%s_%d_%s.pdf", user, operation, operation, at.Unix(), job)
}

func keySegment(s string) string {
	s = unsafeKeyChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// New picks S3 when a bucket is configured, else the local directory.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	if cfg.UsesS3() {
		return NewS3Store(ctx, cfg)
	}
	return NewLocalStore(cfg.LocalDir, cfg.EncryptionKey)
}
