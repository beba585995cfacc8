package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("S3_BUCKET", "")
	cfg := FromEnv()

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Logging.Pretty)
	assert.Equal(t, "dev_pdfsuite", cfg.Axiom.Dataset)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 7*24*time.Hour, cfg.Redis.RecordTTL)
	assert.False(t, cfg.Storage.UsesS3())
	assert.Equal(t, 3, cfg.Jobs.MaxPerUser)
	assert.True(t, cfg.PDF.ValidateOutput)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "Local")
	t.Setenv("S3_BUCKET", "artifacts")
	t.Setenv("MAX_JOBS_PER_USER", "7")
	t.Setenv("ARTIFACT_TTL", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com , ")
	t.Setenv("AI_GATEWAY_URL", "http://gateway:9000/")
	t.Setenv("PREVIEW_DPI", "600")
	t.Setenv("MAX_UPLOAD_MB", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, "local", cfg.Environment)
	assert.True(t, cfg.Logging.Pretty)
	assert.True(t, cfg.Storage.UsesS3())
	assert.Equal(t, 7, cfg.Jobs.MaxPerUser)
	assert.Equal(t, 90*time.Second, cfg.Jobs.ArtifactTTL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://gateway:9000", cfg.Gateway.URL)
	assert.Equal(t, 300, cfg.PDF.PreviewDPI, "clamped to the maximum")
	assert.Equal(t, int64(100), cfg.Server.MaxUploadMB)
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", " YES ", "on"} {
		assert.True(t, parseBool(s), s)
	}
	for _, s := range []string{"", "0", "off", "nope"} {
		assert.False(t, parseBool(s), s)
	}
}
