// Package server exposes the job runner and the synchronous helpers
// (inspect, preview, AI pass-through) over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/local/pdfsuite/internal/config"
	"github.com/local/pdfsuite/internal/filetype"
	"github.com/local/pdfsuite/internal/gateway"
	"github.com/local/pdfsuite/internal/jobs"
	"github.com/local/pdfsuite/internal/metrics"
	"github.com/local/pdfsuite/internal/statuscheck"
	"github.com/local/pdfsuite/internal/store"
)

const userHeader = "X-User-ID"

type JobRunner interface {
	Submit(ctx context.Context, s jobs.Submission) (string, error)
	Cancel(ctx context.Context, id, user string) error
	Artifact(ctx context.Context, id string) (*jobs.Artifact, error)
	Release(ctx context.Context, id, user string) error
}

type RecordReader interface {
	Get(ctx context.Context, jobID string) (store.JobRecord, bool, error)
	ListByUser(ctx context.Context, user string) ([]store.JobRecord, error)
}

// InfoCache memoizes inspect results by content digest.
type InfoCache interface {
	Get(ctx context.Context, digest string, v interface{}) (bool, error)
	Put(ctx context.Context, digest string, v interface{}) error
}

type AIGateway interface {
	Do(ctx context.Context, req gateway.Request) (gateway.Response, error)
}

type HealthReporter interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies of the HTTP layer. Cache, Gateway and Health are optional.
type Dependencies struct {
	Jobs    JobRunner
	Records RecordReader
	Cache   InfoCache
	Gateway AIGateway
	Health  HealthReporter
}

type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	PreviewDPI     int
	MaxPreviewDPI  int
}

func OptionsFrom(cfg config.Config) Options {
	return Options{
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PreviewDPI:     cfg.PDF.PreviewDPI,
		MaxPreviewDPI:  cfg.PDF.MaxPreviewDPI,
	}
}

type Server struct {
	deps   Dependencies
	opts   Options
	detect *filetype.Detector
}

func New(deps Dependencies, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"https://*", "http://*"}
	}
	if opts.PreviewDPI <= 0 {
		opts.PreviewDPI = 72
	}
	if opts.MaxPreviewDPI <= 0 {
		opts.MaxPreviewDPI = 300
	}
	return &Server{deps: deps, opts: opts, detect: filetype.New()}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", userHeader},
		ExposedHeaders: []string{"Content-Disposition", "X-Notice"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/health/deps", s.healthDeps)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/jobs/{op}", s.submitJob)
		api.Get("/jobs/{id}", s.getJob)
		api.Get("/jobs/{id}/download", s.download)
		api.Delete("/jobs/{id}/artifact", s.releaseArtifact)
		api.Post("/jobs/{id}/cancel", s.cancelJob)
		api.Get("/users/{user}/jobs", s.userJobs)
		api.Post("/inspect", s.inspect)
		api.Post("/preview", s.preview)
		api.Post("/ai/{task}", s.aiTask)
	})
	return r
}

// HTTPServer wraps Routes in an *http.Server configured from cfg.
func (s *Server) HTTPServer(cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       time.Minute,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) healthDeps(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}
	sum := s.deps.Health.Summary(r.Context())
	status := http.StatusOK
	if !sum.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sum)
}
