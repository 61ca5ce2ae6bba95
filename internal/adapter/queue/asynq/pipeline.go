package asynqadp

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/fairyhunter13/findajob/internal/adapter/ai"
	"github.com/fairyhunter13/findajob/internal/adapter/observability"
	"github.com/fairyhunter13/findajob/internal/ai/tools"
	"github.com/fairyhunter13/findajob/internal/domain"
	"github.com/fairyhunter13/findajob/internal/enrich"
)

// cancelledReason is the error string stored on a run stopped by Cancel.
const cancelledReason = "cancelled"

// ClientFactory builds the per-run LLM client. One client per run, one job
// at a time, so history stays deterministic.
type ClientFactory func(ctx context.Context, cfg ai.Config) (ai.Client, error)

// DefaultClientFactory wires the real providers with the full tool registry.
func DefaultClientFactory() ClientFactory {
	return func(ctx context.Context, cfg ai.Config) (ai.Client, error) {
		return ai.New(ctx, cfg, tools.NewRegistry())
	}
}

// Pipeline executes one run: crawl everything, enrich job by job in crawl
// order, then deliver in the same order. Per-job enrichment and delivery
// failures are counted without failing the run; crawler and configuration
// failures are fatal.
type Pipeline struct {
	Runs       domain.RunStore
	Crawler    domain.Crawler
	Emitter    domain.Emitter
	NewClient  ClientFactory
	LLMTimeout time.Duration
}

// NewPipeline constructs the executor.
func NewPipeline(runs domain.RunStore, crawler domain.Crawler, emitter domain.Emitter, factory ClientFactory, llmTimeout time.Duration) *Pipeline {
	return &Pipeline{
		Runs:       runs,
		Crawler:    crawler,
		Emitter:    emitter,
		NewClient:  factory,
		LLMTimeout: llmTimeout,
	}
}

// Execute drives the run to a terminal state. The returned error reports
// fatal failures to the queue; the run record is always settled first.
func (p *Pipeline) Execute(ctx context.Context, payload domain.PipelineTaskPayload) error {
	runID := payload.RunID
	req := payload.Request

	observability.StartRun()
	outcome := "failed"
	defer func() { observability.FinishRun(outcome) }()

	slog.Info("run started",
		slog.String("run_id", runID),
		slog.String("keywords", req.SpiderConfig.Keywords),
		slog.String("provider", req.AIProvider))

	if cancelled, err := p.Runs.Cancelled(ctx, runID); err != nil {
		return err
	} else if cancelled {
		outcome = cancelledReason
		return p.Runs.Fail(ctx, runID, cancelledReason)
	}

	jobs, counters, err := p.crawl(ctx, runID, req)
	if err != nil {
		if errors.Is(err, domain.ErrRunCancelled) {
			outcome = cancelledReason
			return p.Runs.Fail(ctx, runID, cancelledReason)
		}
		_ = p.Runs.Fail(ctx, runID, err.Error())
		return err
	}

	enriched, err := p.enrichAll(ctx, runID, req, jobs, &counters)
	if err != nil {
		if errors.Is(err, domain.ErrRunCancelled) {
			outcome = cancelledReason
			return p.Runs.Fail(ctx, runID, cancelledReason)
		}
		_ = p.Runs.Fail(ctx, runID, err.Error())
		return err
	}

	if err := p.deliverAll(ctx, runID, req.Webhook, enriched, &counters); err != nil {
		if errors.Is(err, domain.ErrRunCancelled) {
			outcome = cancelledReason
			return p.Runs.Fail(ctx, runID, cancelledReason)
		}
		_ = p.Runs.Fail(ctx, runID, err.Error())
		return err
	}

	if err := p.Runs.Succeed(ctx, runID); err != nil {
		return err
	}
	outcome = "succeeded"
	slog.Info("run succeeded",
		slog.String("run_id", runID),
		slog.Int("total_jobs", counters.TotalJobs),
		slog.Int("enriched", counters.Enriched),
		slog.Int("delivered", counters.Delivered),
		slog.Int("enrichment_failures", counters.EnrichmentFailures),
		slog.Int("delivery_failures", counters.DeliveryFailures))
	return nil
}

func (p *Pipeline) crawl(ctx context.Context, runID string, req domain.SearchRequest) ([]domain.RawJob, domain.Counters, error) {
	var counters domain.Counters
	if err := p.Runs.SetState(ctx, runID, domain.RunCrawling); err != nil {
		return nil, counters, err
	}

	var jobs []domain.RawJob
	err := p.Crawler.Crawl(ctx, req.SpiderConfig, func(j domain.RawJob) error {
		cancelled, cerr := p.Runs.Cancelled(ctx, runID)
		if cerr != nil {
			return cerr
		}
		if cancelled {
			return domain.ErrRunCancelled
		}
		jobs = append(jobs, j)
		observability.CrawlJob()
		return nil
	})
	if err != nil {
		return nil, counters, err
	}

	counters.TotalJobs = len(jobs)
	if err := p.Runs.SetCounters(ctx, runID, counters); err != nil {
		return nil, counters, err
	}
	return jobs, counters, nil
}

func (p *Pipeline) enrichAll(ctx context.Context, runID string, req domain.SearchRequest, jobs []domain.RawJob, counters *domain.Counters) ([]domain.EnrichedJob, error) {
	if err := p.Runs.SetState(ctx, runID, domain.RunEnriching); err != nil {
		return nil, err
	}

	client, err := p.NewClient(ctx, ai.Config{
		Provider: req.AIProvider,
		Model:    req.AIProviderConfig.Model,
		BaseURL:  req.AIProviderConfig.BaseURL,
		APIKey:   req.AIProviderConfig.APIKey,
		Timeout:  p.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	stage := enrich.NewStage(client)

	enriched := make([]domain.EnrichedJob, 0, len(jobs))
	for _, job := range jobs {
		cancelled, cerr := p.Runs.Cancelled(ctx, runID)
		if cerr != nil {
			return nil, cerr
		}
		if cancelled {
			return nil, domain.ErrRunCancelled
		}

		ej, err := stage.EnrichJob(ctx, req.UserCV, job)
		if err != nil {
			counters.EnrichmentFailures++
			observability.EnrichJob("failed")
			slog.Warn("enrichment failed",
				slog.String("run_id", runID),
				slog.String("job_id", job.JobID),
				slog.Any("error", err))
		} else {
			counters.Enriched++
			enriched = append(enriched, ej)
			observability.EnrichJob("ok")
			observability.ObserveAlignment(ej.JobSummary.BackgroundAligns.Total)
		}
		if err := p.Runs.SetCounters(ctx, runID, *counters); err != nil {
			return nil, err
		}
	}
	return enriched, nil
}

func (p *Pipeline) deliverAll(ctx context.Context, runID, webhookURL string, enriched []domain.EnrichedJob, counters *domain.Counters) error {
	if err := p.Runs.SetState(ctx, runID, domain.RunDelivering); err != nil {
		return err
	}

	for _, ej := range enriched {
		cancelled, cerr := p.Runs.Cancelled(ctx, runID)
		if cerr != nil {
			return cerr
		}
		if cancelled {
			return domain.ErrRunCancelled
		}

		if err := p.Emitter.Deliver(ctx, webhookURL, ej); err != nil {
			counters.DeliveryFailures++
			observability.DeliverJob("failed")
			slog.Warn("delivery failed",
				slog.String("run_id", runID),
				slog.String("job_id", ej.JobID),
				slog.Any("error", err))
		} else {
			counters.Delivered++
			observability.DeliverJob("ok")
		}
		if err := p.Runs.SetCounters(ctx, runID, *counters); err != nil {
			return err
		}
	}
	return nil
}
