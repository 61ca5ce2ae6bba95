// Command server starts the findajob HTTP API and webhook receiver.
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

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/findajob/internal/adapter/httpserver"
	"github.com/fairyhunter13/findajob/internal/adapter/observability"
	asynqadp "github.com/fairyhunter13/findajob/internal/adapter/queue/asynq"
	"github.com/fairyhunter13/findajob/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/findajob/internal/adapter/runstore"
	"github.com/fairyhunter13/findajob/internal/app"
	"github.com/fairyhunter13/findajob/internal/config"
	"github.com/fairyhunter13/findajob/internal/usecase"
)

// redisPinger adapts *redis.Client to the readiness check interface.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) app.RedisPingResult { return p.rdb.Ping(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

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

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)

	if cfg.JobRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.JobRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.JobRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	redisOpt, err := redis.ParseURL(cfg.ResultBackendURL)
	if err != nil {
		slog.Error("redis url invalid", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpt)
	defer func() { _ = rdb.Close() }()
	runs := runstore.New(rdb, cfg.RunRetention)

	queue, err := asynqadp.New(cfg.BrokerURL)
	if err != nil {
		slog.Error("queue connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			slog.Error("failed to close queue client", slog.Any("error", err))
		}
	}()

	searchSvc := usecase.NewSearchService(queue, runs, cfg.WebhookBaseURL)

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisPinger{rdb: rdb})
	srv := httpserver.NewServer(cfg, searchSvc, jobRepo, dbCheck, redisCheck)
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

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
