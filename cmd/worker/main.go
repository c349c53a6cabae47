// Package main provides the worker application entry point.
// The worker consumes analysis tasks from Redpanda and runs the analysis round
// for each session.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

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

	// Expose worker metrics on a dedicated port so Prometheus can scrape
	// AI call, pipeline and queue metrics.
	observability.InitMetrics()
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
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
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	transcriber, assistant := app.BuildAI(cfg, rdb)
	dispatcher, caller, err := app.BuildDispatcher(cfg, assistant)
	if err != nil {
		slog.Error("prompt catalog load failed", slog.Any("error", err))
		os.Exit(1)
	}

	repo := postgres.NewSessionRepo(pool)
	sessionSvc := usecase.NewSessionService(repo, nil, uploads, transcriber, dispatcher, caller)

	// Fail sessions whose worker died mid-run so they do not stay in flight forever.
	if sweeper := app.NewStuckSessionSweeper(repo, cfg.SessionStuckAfter, cfg.StuckSweepInterval); sweeper != nil {
		go sweeper.Run(ctx)
	}

	consumer, err := redpanda.NewConsumer(ctx, redpanda.ConsumerConfig{
		Brokers:        cfg.KafkaBrokers,
		Group:          cfg.ConsumerGroup,
		Topic:          cfg.AnalysisTopic,
		MaxConcurrency: cfg.ConsumerMaxConcurrency,
	}, sessionSvc)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	slog.Info("worker started, waiting for analysis tasks",
		slog.String("topic", cfg.AnalysisTopic),
		slog.Int("max_concurrency", cfg.ConsumerMaxConcurrency))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
