// Command worker consumes pipeline runs from the Redis-backed queue and
// drives crawl, enrichment, and delivery for each run.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/findajob/internal/adapter/crawler/linkedin"
	"github.com/fairyhunter13/findajob/internal/adapter/observability"
	asynqadp "github.com/fairyhunter13/findajob/internal/adapter/queue/asynq"
	"github.com/fairyhunter13/findajob/internal/adapter/runstore"
	"github.com/fairyhunter13/findajob/internal/adapter/webhook"
	"github.com/fairyhunter13/findajob/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Dedicated /metrics endpoint so Prometheus can scrape pipeline metrics
	// from the worker process.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
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

	redisOpt, err := redis.ParseURL(cfg.ResultBackendURL)
	if err != nil {
		slog.Error("redis url invalid", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpt)
	defer func() { _ = rdb.Close() }()

	runs := runstore.New(rdb, cfg.RunRetention)
	crawler := linkedin.New(linkedin.Config{Delay: cfg.CrawlDelay})
	emitter := webhook.New(cfg.WebhookTimeout)

	pipeline := asynqadp.NewPipeline(runs, crawler, emitter, asynqadp.DefaultClientFactory(), cfg.LLMTimeout)

	worker, err := asynqadp.NewWorker(cfg, pipeline)
	if err != nil {
		slog.Error("worker init failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	if err := worker.Start(ctx); err != nil {
		slog.Error("worker start failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("worker started, waiting for shutdown signal",
		slog.Int("concurrency", cfg.WorkerConcurrency))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	worker.Stop()
	slog.Info("worker stopped")
}
