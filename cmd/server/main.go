// Command server starts the interview auditor HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpserver "github.com/fairyhunter13/ai-interview-auditor/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/repo/filestore"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-interview-auditor/internal/app"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI and session instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	uploads, err := filestore.NewUploadStore(cfg.UploadDir)
	if err != nil {
		slog.Error("upload store init failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := app.NewRedisClient(cfg)
	if err != nil {
		slog.Error("redis init failed", slog.Any("error", err))
		os.Exit(1)
	}
	var redisProbe app.RedisPinger
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		redisProbe = rdb
	}

	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.AnalysisTopic)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, uploads, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	repo := postgres.NewSessionRepo(pool)
	// Processing happens in the worker; the API only creates, reads and resets sessions.
	sessionSvc := usecase.NewSessionService(repo, producer, uploads, nil, nil, nil)
	uploadSvc := usecase.NewUploadService(uploads, cfg.MaxUploadBytes())

	dbCheck, redisCheck, queueCheck := app.BuildReadinessChecks(pool, redisProbe, producer)
	srv := httpserver.NewServer(cfg, sessionSvc, uploadSvc, dbCheck, redisCheck, queueCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
}
