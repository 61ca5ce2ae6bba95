package asynqadp

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/findajob/internal/config"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// Worker consumes pipeline tasks. Each worker slot executes one run at a
// time; runs parallelize across slots, never within one.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	pipeline *Pipeline
}

// NewWorker wires the asynq server and the pipeline handler.
func NewWorker(cfg config.Config, pipeline *Pipeline) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(cfg.BrokerURL)
	if err != nil {
		return nil, err
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})
	mux := asynq.NewServeMux()
	w := &Worker{server: srv, mux: mux, pipeline: pipeline}

	taskTimeout := cfg.TaskTimeout
	softWarning := cfg.TaskSoftWarning

	mux.HandleFunc(TaskRunPipeline, func(ctx context.Context, t *asynq.Task) error {
		tracer := otel.Tracer("queue.worker")
		ctx, span := tracer.Start(ctx, "RunPipeline")
		defer span.End()

		var p domain.PipelineTaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, taskTimeout)
		defer cancel()

		warn := time.AfterFunc(softWarning, func() {
			slog.Warn("run approaching task time limit",
				slog.String("run_id", p.RunID),
				slog.Duration("elapsed", softWarning))
		})
		defer warn.Stop()

		return w.pipeline.Execute(ctx, p)
	})

	return w, nil
}

// Start begins consuming tasks. It does not block.
func (w *Worker) Start(_ context.Context) error { return w.server.Start(w.mux) }

// Stop drains in-flight runs and shuts the server down.
func (w *Worker) Stop() { w.server.Shutdown() }
