// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/findajob/internal/domain"
)

// SearchService accepts search submissions, answers status queries and flags
// cancellations. The heavy lifting happens in PipelineService on a worker.
type SearchService struct {
	Queue          domain.Queue
	Runs           domain.RunStore
	DefaultWebhook string

	validate *validator.Validate
}

// NewSearchService constructs a SearchService with its dependencies.
func NewSearchService(q domain.Queue, runs domain.RunStore, defaultWebhook string) SearchService {
	return SearchService{
		Queue:          q,
		Runs:           runs,
		DefaultWebhook: defaultWebhook,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

var runEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for ULID entropy.

// Submit validates and normalizes the request, creates the run record and
// queues the pipeline task. It returns the run id immediately.
func (s SearchService) Submit(ctx domain.Context, req domain.SearchRequest) (string, error) {
	normalize(&req)
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := checkLanguages(req.UserCV.Languages); err != nil {
		return "", err
	}
	if req.Webhook == "" {
		req.Webhook = s.DefaultWebhook
	}

	id, err := ulid.New(ulid.Timestamp(time.Now()), runEntropy)
	if err != nil {
		return "", fmt.Errorf("%w: run id: %v", domain.ErrInternal, err)
	}
	runID := id.String()

	if err := s.Runs.Create(ctx, runID); err != nil {
		return "", err
	}
	if _, err := s.Queue.EnqueuePipeline(ctx, domain.PipelineTaskPayload{RunID: runID, Request: req}); err != nil {
		_ = s.Runs.Fail(ctx, runID, "enqueue failed")
		return "", err
	}
	return runID, nil
}

// Status returns the current run record.
func (s SearchService) Status(ctx domain.Context, runID string) (domain.Run, error) {
	return s.Runs.Get(ctx, runID)
}

// Cancel flags the run. Jobs already dispatched may complete; no new jobs are
// scheduled once the worker sees the flag.
func (s SearchService) Cancel(ctx domain.Context, runID string) error {
	return s.Runs.Cancel(ctx, runID)
}

// normalize lowercases the set-valued profile fields so the scoring kernel's
// case-insensitive matching is exercised on canonical input.
func normalize(req *domain.SearchRequest) {
	cv := &req.UserCV
	cv.Skills = lowerAll(cv.Skills)
	cv.Industries = lowerAll(cv.Industries)
	cv.Location.LocationType = strings.ToLower(strings.TrimSpace(cv.Location.LocationType))
	if len(cv.Languages) > 0 {
		langs := make(map[string]string, len(cv.Languages))
		for lang, level := range cv.Languages {
			langs[strings.ToLower(strings.TrimSpace(lang))] = strings.ToLower(strings.TrimSpace(level))
		}
		cv.Languages = langs
	}
	req.AIProvider = strings.ToLower(strings.TrimSpace(req.AIProvider))
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := strings.ToLower(strings.TrimSpace(s)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func checkLanguages(langs map[string]string) error {
	for lang, level := range langs {
		if _, ok := domain.ProficiencyWeights[level]; !ok {
			return fmt.Errorf("%w: language %q has unknown proficiency %q", domain.ErrInvalidArgument, lang, level)
		}
	}
	return nil
}
