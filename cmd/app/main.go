package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdfsuite/internal/config"
	"github.com/local/pdfsuite/internal/gateway"
	"github.com/local/pdfsuite/internal/jobs"
	"github.com/local/pdfsuite/internal/limiter"
	logpkg "github.com/local/pdfsuite/internal/logger"
	"github.com/local/pdfsuite/internal/metrics"
	"github.com/local/pdfsuite/internal/pdfcheck"
	"github.com/local/pdfsuite/internal/queue"
	"github.com/local/pdfsuite/internal/server"
	"github.com/local/pdfsuite/internal/statuscheck"
	"github.com/local/pdfsuite/internal/storage"
	"github.com/local/pdfsuite/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	if err := logpkg.Init(logpkg.OptionsFrom(cfg)); err != nil {
		log.Warn().Err(err).Msg("logger init degraded")
	}
	defer logpkg.Close()
	metrics.Init()

	ctx := context.Background()

	records, err := store.NewRedisStore(cfg.Redis.URL, cfg.Redis.RecordTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer records.Close()
	rc := records.Client()

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", backendName(cfg.Storage)).Msg("failed to init artifact storage")
	}

	deps := jobs.Dependencies{
		Records: records,
		Cancels: queue.NewCancelSetFromClient(rc),
		Storage: artifacts,
		Limiter: limiter.New(cfg.Jobs.MaxPerUser),
	}
	if cfg.PDF.ValidateOutput {
		deps.Validator = pdfcheck.New()
	}
	runner, err := jobs.New(deps, jobs.OptionsFrom(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init job runner")
	}
	runner.Start()

	gw := gateway.New(cfg.Gateway, gateway.NewBreaker(rc, cfg.Gateway.BaseBackoff, cfg.Gateway.MaxBackoff))
	health := statuscheck.Options{
		Redis:       records,
		Storage:     artifacts,
		StorageName: artifacts.Name(),
	}
	srvDeps := server.Dependencies{
		Jobs:    runner,
		Records: records,
		Cache:   store.NewInspectCache(rc, cfg.Redis.InspectCache),
	}
	if gw.Enabled() {
		health.Gateway = gw
		srvDeps.Gateway = gw
	} else {
		log.Info().Msg("AI gateway not configured; /api/v1/ai disabled")
	}
	srvDeps.Health = statuscheck.New(health)

	srv := server.New(srvDeps, server.OptionsFrom(cfg)).HTTPServer(cfg.Server)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("storage", artifacts.Name()).
			Bool("validate_output", cfg.PDF.ValidateOutput).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := runner.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Int("running", runner.Running()).Msg("jobs abandoned at shutdown")
	}
	log.Info().Msg("shutdown complete")
}

func backendName(c cfgpkg.StorageConfig) string {
	if c.UsesS3() {
		return "s3"
	}
	return "local"
}
