package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           string
	MaxUploadMB    int64
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ShutdownGrace  time.Duration
}

// RedisConfig points at the Redis instance holding job records and the cancel set.
type RedisConfig struct {
	URL          string
	CancelPoll   time.Duration
	RecordTTL    time.Duration
	InspectCache time.Duration
}

// StorageConfig selects where artifacts are persisted. An empty Bucket means
// the local directory is used.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
	// EncryptionKey enables at-rest encryption of artifacts when non-empty.
	EncryptionKey string
}

// JobsConfig bounds job execution.
type JobsConfig struct {
	MaxPerUser      int
	JobTimeout      time.Duration
	ArtifactTTL     time.Duration
	CleanupInterval time.Duration
}

// GatewayConfig configures the AI gateway pass-through.
type GatewayConfig struct {
	URL         string
	APIKey      string
	Timeout     time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// PDFConfig tunes document handling.
type PDFConfig struct {
	ValidateOutput bool
	PreviewDPI     int
	MaxPreviewDPI  int
}

// Config is the top-level configuration.
type Config struct {
	Environment string
	Logging     LoggingConfig
	Axiom       AxiomConfig
	Server      ServerConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Jobs        JobsConfig
	Gateway     GatewayConfig
	PDF         PDFConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{Environment: strings.ToLower(getEnv("ENVIRONMENT", "production"))}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfsuite.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfsuite",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		MaxUploadMB:    parseInt64(getEnv("MAX_UPLOAD_MB", "100"), 100),
		AllowedOrigins: parseList(getEnv("CORS_ALLOWED_ORIGINS", "https://*,http://*")),
		ReadTimeout:    parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
		WriteTimeout:   parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "120s"), 120*time.Second),
		ShutdownGrace:  parseDuration(getEnv("SHUTDOWN_GRACE", "10s"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		CancelPoll:   parseDuration(getEnv("CANCEL_POLL_INTERVAL", "2s"), 2*time.Second),
		RecordTTL:    parseDuration(getEnv("JOB_RECORD_TTL", "168h"), 7*24*time.Hour),
		InspectCache: parseDuration(getEnv("INSPECT_CACHE_TTL", "1h"), time.Hour),
	}

	cfg.Storage = StorageConfig{
		Bucket:          getEnv("S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		LocalDir:        getEnv("RESULT_DIR", "uploads/results"),
		EncryptionKey:   getEnv("ARTIFACT_ENCRYPTION_KEY", ""),
	}

	cfg.Jobs = JobsConfig{
		MaxPerUser:      parseInt(getEnv("MAX_JOBS_PER_USER", "3"), 3),
		JobTimeout:      parseDuration(getEnv("JOB_TIMEOUT", "5m"), 5*time.Minute),
		ArtifactTTL:     parseDuration(getEnv("ARTIFACT_TTL", "1h"), time.Hour),
		CleanupInterval: parseDuration(getEnv("CLEANUP_INTERVAL", "5m"), 5*time.Minute),
	}

	cfg.Gateway = GatewayConfig{
		URL:         strings.TrimRight(getEnv("AI_GATEWAY_URL", ""), "/"),
		APIKey:      getEnv("AI_GATEWAY_API_KEY", ""),
		Timeout:     parseDuration(getEnv("AI_GATEWAY_TIMEOUT", "60s"), 60*time.Second),
		BaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		MaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
	}

	cfg.PDF = PDFConfig{
		ValidateOutput: parseBool(getEnv("VALIDATE_OUTPUT", "true")),
		PreviewDPI:     parseInt(getEnv("PREVIEW_DPI", "72"), 72),
		MaxPreviewDPI:  parseInt(getEnv("PREVIEW_MAX_DPI", "300"), 300),
	}
	if cfg.PDF.PreviewDPI > cfg.PDF.MaxPreviewDPI {
		cfg.PDF.PreviewDPI = cfg.PDF.MaxPreviewDPI
	}

	return cfg
}

// UsesS3 reports whether artifacts go to a bucket rather than local disk.
func (c StorageConfig) UsesS3() bool { return c.Bucket != "" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
