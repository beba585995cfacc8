package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Request is forwarded to the gateway's /v1/{task} endpoint. Params are
// passed through untouched.
type Request struct {
	Task   string
	UserID string
	Text   string
	Params map[string]any
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
	// Raw is the gateway's full JSON body.
	Raw json.RawMessage
}

var (
	ErrNotConfigured = errors.New("ai gateway not configured")
	ErrRateLimited   = errors.New("rate_limited")
	ErrBreakerOpen   = errors.New("circuit breaker open")
	ErrInvalidTask   = errors.New("invalid task name")
)

// HTTPError is a non-2xx answer from the gateway.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from ai gateway: %s", e.StatusCode, e.Body)
}

var taskName = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,39}$`)

// ValidTask reports whether task is safe to use as a path segment.
func ValidTask(task string) bool { return taskName.MatchString(task) }

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }
