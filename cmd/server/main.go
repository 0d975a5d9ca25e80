// Command server runs the mission backend HTTP API.
//
// Startup order: environment → config → logging → database → tracing →
// enrichment worker → router → HTTP server. Shutdown is graceful: on
// SIGINT/SIGTERM the server drains in-flight requests, the enrichment
// worker exits, and the tracer provider flushes.
//
// @title        Shutterline Mission API
// @version      1.0
// @description  Mission lifecycle orchestration and cross-chain bridge matching.
// @BasePath     /api/v1
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/shutterline/go-mission-backend/docs"
	"github.com/shutterline/go-mission-backend/internal/config"
	"github.com/shutterline/go-mission-backend/internal/enrich"
	httpapi "github.com/shutterline/go-mission-backend/internal/http"
	"github.com/shutterline/go-mission-backend/internal/observability"
	"github.com/shutterline/go-mission-backend/internal/repo"
	"github.com/shutterline/go-mission-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	log.Info().Str("version", ver).Str("port", cfg.Port).Msg("starting mission backend")

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	// Metadata enrichment runs in the background; without an extractor
	// configured it simply drains its queue.
	worker := enrich.NewWorker(db, nil, cfg.EnrichQueueSize)
	workerDone := worker.Start(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Dependencies{
		EnqueueEnrichment: worker.Enqueue,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	<-workerDone
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown error")
	}
	log.Info().Msg("stopped")
}
