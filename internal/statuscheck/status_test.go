package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok() Pinger { return pingFunc(func(context.Context) error { return nil }) }

func TestSummaryHealthy(t *testing.T) {
	c := New(Options{Redis: ok(), Storage: ok(), StorageName: "s3"})
	s := c.Summary(context.Background())
	assert.True(t, s.Redis.OK)
	assert.Equal(t, "Connected (s3)", s.Storage.Message)
	assert.True(t, s.Renderer.OK, s.Renderer.Message)
	assert.True(t, s.Validator.OK, s.Validator.Message)
	assert.False(t, s.Gateway.OK)
	assert.Equal(t, "Not configured", s.Gateway.Message)
	assert.True(t, s.Healthy(), "gateway is optional")
}

func TestSummaryFailures(t *testing.T) {
	slow := pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	broken := pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 200)) })

	c := New(Options{Redis: slow, Storage: broken, Gateway: ok(), Timeout: 10 * time.Millisecond})
	s := c.Summary(context.Background())
	assert.Equal(t, Status{OK: false, Message: "timeout"}, s.Redis)
	assert.False(t, s.Storage.OK)
	assert.Len(t, s.Storage.Message, 120)
	assert.True(t, s.Gateway.OK)
	assert.False(t, s.Healthy())

	s = New(Options{}).Summary(context.Background())
	assert.Equal(t, "client unavailable", s.Redis.Message)
}
