// Package enrich runs the per-job AI stage: one tool-calling conversation
// that scores the candidate against the job and summarizes it, then one
// structured completion that writes the cover letter.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"log/slog"

	"github.com/fairyhunter13/findajob/internal/adapter/ai"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// Stage enriches jobs one at a time with a dedicated LLM client. The client's
// history belongs to this stage; it is cleared before every job so prompts do
// not leak context between jobs.
type Stage struct {
	client ai.Client
}

// NewStage wraps one per-run client.
func NewStage(client ai.Client) *Stage {
	return &Stage{client: client}
}

// EnrichJob produces the EnrichedJob for one RawJob. A failure leaves the
// job undelivered; the pipeline counts it and moves on.
func (s *Stage) EnrichJob(ctx context.Context, profile domain.CandidateProfile, job domain.RawJob) (domain.EnrichedJob, error) {
	s.client.ClearHistory()
	s.client.SetSystemPrompt(systemPrompt(profile, job))

	summaryRaw, err := s.client.Agent(ctx, jobSummaryPrompt, ai.JobSummaryFormat())
	if err != nil {
		return domain.EnrichedJob{}, fmt.Errorf("job %s: summary: %w", job.JobID, err)
	}
	var summary domain.JobSummary
	if err := json.Unmarshal(summaryRaw, &summary); err != nil {
		return domain.EnrichedJob{}, fmt.Errorf("%w: job %s: decode summary: %v", domain.ErrInternal, job.JobID, err)
	}

	letterRaw, err := s.client.Generate(ctx, coverLetterPrompt, ai.CoverLetterFormat())
	if err != nil {
		return domain.EnrichedJob{}, fmt.Errorf("job %s: cover letter: %w", job.JobID, err)
	}
	var letter domain.CoverLetter
	if err := json.Unmarshal(letterRaw, &letter); err != nil {
		return domain.EnrichedJob{}, fmt.Errorf("%w: job %s: decode cover letter: %v", domain.ErrInternal, job.JobID, err)
	}

	slog.Info("job enriched",
		slog.String("job_id", job.JobID),
		slog.String("job_title", job.JobTitle),
		slog.Int("alignment_total", summary.BackgroundAligns.Total))

	return domain.EnrichedJob{
		RawJob:      job,
		JobSummary:  summary,
		CoverLetter: letter,
	}, nil
}
