// Package asynqadp adapts the asynq work queue to the pipeline runtime.
// Redis is the broker: the queue is the only cross-process synchronization
// primitive, run state lives in the run store.
package asynqadp

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/fairyhunter13/findajob/internal/adapter/observability"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// TaskRunPipeline is the composite crawl-enrich-deliver task for one run.
const TaskRunPipeline = "run_pipeline"

// Queue implements domain.Queue.
type Queue struct{ client *asynq.Client }

// New connects a producer client to the broker.
func New(redisURL string) (*Queue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &Queue{client: asynq.NewClient(opt)}, nil
}

// EnqueuePipeline schedules one run. The task is not retried by the broker:
// a run is not resumable across attempts, failure semantics live in the run
// record instead.
func (q *Queue) EnqueuePipeline(ctx domain.Context, payload domain.PipelineTaskPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	t := asynq.NewTask(TaskRunPipeline, b)
	info, err := q.client.EnqueueContext(ctx, t, asynq.MaxRetry(0))
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	observability.EnqueueRun()
	return info.ID, nil
}

// Close releases the broker connection.
func (q *Queue) Close() error { return q.client.Close() }

var _ domain.Queue = (*Queue)(nil)
