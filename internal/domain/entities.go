package domain

import (
	"context"
	"errors"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConfig          = errors.New("config error")
	ErrCrawler         = errors.New("crawler error")
	ErrLLMTransport    = errors.New("llm transport error")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrToolCall        = errors.New("tool call error")
	ErrWebhook         = errors.New("webhook error")
	ErrRunCancelled    = errors.New("cancelled")
	ErrInternal        = errors.New("internal error")
)

// Providers supported by the LLM client.
const (
	ProviderGoogle = "google"
	ProviderOllama = "ollama"
)

// ProficiencyWeights maps CEFR ordinals to the fixed integer weights used
// when comparing candidate and job language requirements.
var ProficiencyWeights = map[string]int{
	"a1":     15,
	"a2":     30,
	"b1":     45,
	"b2":     60,
	"c1":     75,
	"c2":     90,
	"native": 100,
}

// EducationEntry is a single education record on the candidate profile.
type EducationEntry struct {
	Title       string `json:"title" validate:"required"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExperienceEntry is a single employment record on the candidate profile.
type ExperienceEntry struct {
	Company     string `json:"company" validate:"required"`
	Position    string `json:"position" validate:"required"`
	TotalMonths int    `json:"total_months" validate:"gte=0"`
	Description string `json:"description,omitempty"`
}

// Location describes where the candidate is and which work modes they accept.
type Location struct {
	Country      string `json:"country"`
	City         string `json:"city"`
	LocationType string `json:"location_type" validate:"omitempty,oneof=remote onsite hybrid any"`
}

// CandidateProfile is the normalized CV supplied at submit time. It is
// immutable for the lifetime of a run. Skills and industries are lowercased
// at ingress; languages map language name to a CEFR ordinal key of
// ProficiencyWeights.
type CandidateProfile struct {
	Name                  string            `json:"name" validate:"required"`
	TotalExperienceMonths int               `json:"total_experience_months" validate:"gte=0"`
	Skills                []string          `json:"skills"`
	Education             []EducationEntry  `json:"education" validate:"dive"`
	Location              Location          `json:"location"`
	Experience            []ExperienceEntry `json:"experience" validate:"dive"`
	Industries            []string          `json:"industries"`
	Languages             map[string]string `json:"languages"`
}

// SpiderConfig parameterizes one crawl.
type SpiderConfig struct {
	Keywords  string `json:"keywords" validate:"required"`
	Location  string `json:"location" validate:"required"`
	MaxJobs   int    `json:"max_jobs" validate:"gte=0"`
	Seniority int    `json:"seniority" validate:"gte=1,lte=6"`
}

// AIProviderConfig carries the provider connection settings from the submit
// payload through to the worker.
type AIProviderConfig struct {
	Model   string `json:"model" validate:"required"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

// SearchRequest is the submit payload.
type SearchRequest struct {
	SpiderConfig     SpiderConfig     `json:"spider_config" validate:"required"`
	AIProviderConfig AIProviderConfig `json:"ai_provider_config" validate:"required"`
	AIProvider       string           `json:"ai_provider" validate:"required,oneof=google ollama"`
	UserCV           CandidateProfile `json:"user_cv" validate:"required"`
	Webhook          string           `json:"webhook" validate:"omitempty,url"`
}

// RawJob is one job record as produced by the Crawler. Strings are trimmed
// and whitespace-normalized; non-critical fields default to "N/A".
type RawJob struct {
	JobID          string `json:"job_id"`
	JobTitle       string `json:"job_title"`
	JobURL         string `json:"job_url"`
	JobLocation    string `json:"job_location"`
	Employer       string `json:"employer"`
	EmployerURL    string `json:"employer_url"`
	JobDescription string `json:"job_description"`
	SeniorityLevel string `json:"seniority_level"`
	EmploymentType string `json:"employment_type"`
	JobFunction    string `json:"job_function"`
	Industries     string `json:"industries"`
	Source         string `json:"source"`
}

// AlignmentScore is the tool-grounded candidate/job alignment breakdown.
// Every component is an integer in [0,100]; Total is the weighted sum of the
// others (weights in the scoring package) and must be recomputable within a
// ±1 rounding tolerance.
type AlignmentScore struct {
	Total      int `json:"total" validate:"gte=0,lte=100"`
	Skills     int `json:"skills" validate:"gte=0,lte=100"`
	Education  int `json:"education" validate:"gte=0,lte=100"`
	Experience int `json:"experience" validate:"gte=0,lte=100"`
	Location   int `json:"location" validate:"gte=0,lte=100"`
	Industries int `json:"industries" validate:"gte=0,lte=100"`
	Languages  int `json:"languages" validate:"gte=0,lte=100"`
}

// JobSummary is the structured record the model produces in agent mode.
type JobSummary struct {
	Responsibilities    []string       `json:"responsibilities" validate:"min=1,max=8"`
	Requirements        []string       `json:"requirements" validate:"min=1,max=8"`
	OpportunityInterest string         `json:"opportunity_interest" validate:"required"`
	BackgroundAligns    AlignmentScore `json:"background_aligns"`
	Summary             string         `json:"summary" validate:"required"`
}

// CoverLetter is the generate-mode output for one job.
type CoverLetter struct {
	Subject       string `json:"subject" validate:"required"`
	LetterContent string `json:"letter_content" validate:"required"`
}

// EnrichedJob is a RawJob plus the two AI-produced records.
type EnrichedJob struct {
	RawJob
	JobSummary  JobSummary  `json:"job_summary"`
	CoverLetter CoverLetter `json:"cover_letter"`
}

// RunState enumerates the pipeline run state machine.
type RunState string

const (
	RunPending    RunState = "pending"
	RunCrawling   RunState = "crawling"
	RunEnriching  RunState = "enriching"
	RunDelivering RunState = "delivering"
	RunSucceeded  RunState = "succeeded"
	RunFailed     RunState = "failed"
)

// Counters tracks per-run progress. Invariants:
// Enriched + EnrichmentFailures <= TotalJobs and Delivered <= Enriched.
type Counters struct {
	TotalJobs          int `json:"total_jobs"`
	Enriched           int `json:"enriched"`
	Delivered          int `json:"delivered"`
	EnrichmentFailures int `json:"enrichment_failures"`
	DeliveryFailures   int `json:"delivery_failures"`
}

// Run is the runtime-only record for one pipeline invocation. Terminal on
// succeeded/failed; retained for the configured retention window.
type Run struct {
	RunID    string   `json:"run_id"`
	State    RunState `json:"state"`
	Counters Counters `json:"counters"`
	Error    string   `json:"error,omitempty"`
}

// Terminal reports whether the run has reached a final state.
func (r Run) Terminal() bool { return r.State == RunSucceeded || r.State == RunFailed }

// PipelineTaskPayload is the queue payload for one run.
type PipelineTaskPayload struct {
	RunID   string        `json:"run_id"`
	Request SearchRequest `json:"request"`
}

// Crawler (port). Crawl queries the job board and calls emit for every
// discovered job, in discovery order, until max_jobs records have been
// emitted or results are exhausted. Emitted job_ids are unique within the
// call. A non-nil return from emit aborts the crawl and is returned as-is;
// fatal crawl failures wrap ErrCrawler.
type Crawler interface {
	Crawl(ctx Context, cfg SpiderConfig, emit func(RawJob) error) error
}

// Queue (port)
type Queue interface {
	EnqueuePipeline(ctx Context, payload PipelineTaskPayload) (string, error)
}

// RunStore (port). Tracks run state, counters and cancellation flags with a
// bounded retention window.
type RunStore interface {
	Create(ctx Context, runID string) error
	Get(ctx Context, runID string) (Run, error)
	SetState(ctx Context, runID string, state RunState) error
	Fail(ctx Context, runID string, reason string) error
	Succeed(ctx Context, runID string) error
	SetCounters(ctx Context, runID string, c Counters) error
	Cancel(ctx Context, runID string) error
	Cancelled(ctx Context, runID string) (bool, error)
}

// Emitter (port). Deliver posts one enriched record to the webhook URL,
// retrying transient failures; a final failure wraps ErrWebhook.
type Emitter interface {
	Deliver(ctx Context, webhookURL string, job EnrichedJob) error
}

// JobRepository (port) backs the webhook receiver's relational store.
type JobRepository interface {
	Create(ctx Context, j EnrichedJob) (int64, error)
	Get(ctx Context, id int64) (EnrichedJob, error)
	List(ctx Context) ([]EnrichedJob, error)
	Delete(ctx Context, id int64) error
}

// Context aliases context.Context so adapters and usecases share the domain
// signature style without re-importing the package everywhere.
type Context = context.Context
