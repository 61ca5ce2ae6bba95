package asynqadp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/findajob/internal/adapter/ai"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// memRunStore is an in-memory RunStore recording every state transition.
type memRunStore struct {
	runs        map[string]*domain.Run
	cancelFlags map[string]bool
	transitions []domain.RunState
	// cancelAfter* flip the cancel flag once the counter reaches the given
	// count, simulating a user cancelling mid-run.
	cancelAfterEnriched  int
	cancelAfterDelivered int
}

func newMemRunStore() *memRunStore {
	return &memRunStore{
		runs:                 map[string]*domain.Run{},
		cancelFlags:          map[string]bool{},
		cancelAfterEnriched:  -1,
		cancelAfterDelivered: -1,
	}
}

func (m *memRunStore) Create(_ domain.Context, runID string) error {
	m.runs[runID] = &domain.Run{RunID: runID, State: domain.RunPending}
	return nil
}

func (m *memRunStore) Get(_ domain.Context, runID string) (domain.Run, error) {
	r, ok := m.runs[runID]
	if !ok {
		return domain.Run{}, domain.ErrNotFound
	}
	return *r, nil
}

func (m *memRunStore) SetState(_ domain.Context, runID string, state domain.RunState) error {
	m.runs[runID].State = state
	m.transitions = append(m.transitions, state)
	return nil
}

func (m *memRunStore) Fail(_ domain.Context, runID, reason string) error {
	m.runs[runID].State = domain.RunFailed
	m.runs[runID].Error = reason
	m.transitions = append(m.transitions, domain.RunFailed)
	return nil
}

func (m *memRunStore) Succeed(_ domain.Context, runID string) error {
	m.runs[runID].State = domain.RunSucceeded
	m.transitions = append(m.transitions, domain.RunSucceeded)
	return nil
}

func (m *memRunStore) SetCounters(_ domain.Context, runID string, c domain.Counters) error {
	m.runs[runID].Counters = c
	if m.cancelAfterEnriched >= 0 && c.Enriched >= m.cancelAfterEnriched {
		m.cancelFlags[runID] = true
	}
	if m.cancelAfterDelivered >= 0 && c.Delivered >= m.cancelAfterDelivered {
		m.cancelFlags[runID] = true
	}
	return nil
}

func (m *memRunStore) Cancel(_ domain.Context, runID string) error {
	m.cancelFlags[runID] = true
	return nil
}

func (m *memRunStore) Cancelled(_ domain.Context, runID string) (bool, error) {
	return m.cancelFlags[runID], nil
}

// listCrawler emits a fixed job list.
type listCrawler struct {
	jobs []domain.RawJob
	err  error
}

func (c *listCrawler) Crawl(_ domain.Context, _ domain.SpiderConfig, emit func(domain.RawJob) error) error {
	if c.err != nil {
		return c.err
	}
	for _, j := range c.jobs {
		if err := emit(j); err != nil {
			return err
		}
	}
	return nil
}

// recordingEmitter collects deliveries and fails the listed job ids.
type recordingEmitter struct {
	delivered []string
	failIDs   map[string]bool
}

func (e *recordingEmitter) Deliver(_ domain.Context, _ string, job domain.EnrichedJob) error {
	if e.failIDs[job.JobID] {
		return fmt.Errorf("%w: status 500", domain.ErrWebhook)
	}
	e.delivered = append(e.delivered, job.JobID)
	return nil
}

// stubClient answers every agent/generate call with fixed valid documents,
// failing for the listed job ids (matched against the system prompt).
type stubClient struct {
	system   string
	failJobs map[string]bool
}

func (c *stubClient) ClearHistory() {}

func (c *stubClient) SetSystemPrompt(prompt string) { c.system = prompt }

func (c *stubClient) Agent(_ context.Context, _ string, _ ai.Format) (json.RawMessage, error) {
	for id := range c.failJobs {
		if strings.Contains(c.system, "job-"+id) {
			return nil, domain.ErrSchemaInvalid
		}
	}
	return json.RawMessage(`{
		"responsibilities":["build services"],
		"requirements":["go"],
		"opportunity_interest":"Your backend focus fits this role.",
		"background_aligns":{"total":76,"skills":80,"education":50,"experience":100,"location":0,"industries":100,"languages":60},
		"summary":"A solid match."
	}`), nil
}

func (c *stubClient) Generate(_ context.Context, _ string, _ ai.Format) (json.RawMessage, error) {
	return json.RawMessage(`{"subject":"Application","letter_content":"Dear team, ..."}`), nil
}

func rawJobs(ids ...string) []domain.RawJob {
	out := make([]domain.RawJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RawJob{JobID: id, JobTitle: "job-" + id, Source: "linkedin"})
	}
	return out
}

func testRequest() domain.SearchRequest {
	return domain.SearchRequest{
		SpiderConfig:     domain.SpiderConfig{Keywords: "go", Location: "Berlin", MaxJobs: 10, Seniority: 3},
		AIProviderConfig: domain.AIProviderConfig{Model: "llama3.2"},
		AIProvider:       domain.ProviderOllama,
		UserCV:           domain.CandidateProfile{Name: "Jordan Smith"},
		Webhook:          "http://receiver.local/api/jobs",
	}
}

func newTestPipeline(runs *memRunStore, crawler domain.Crawler, emitter domain.Emitter, client ai.Client, clientErr error) *Pipeline {
	factory := func(_ context.Context, _ ai.Config) (ai.Client, error) {
		return client, clientErr
	}
	return NewPipeline(runs, crawler, emitter, factory, 0)
}

func TestExecuteHappyPath(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	emitter := &recordingEmitter{}
	p := newTestPipeline(runs, &listCrawler{jobs: rawJobs("1", "2")}, emitter, &stubClient{}, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.NoError(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunSucceeded, run.State)
	assert.Equal(t, domain.Counters{TotalJobs: 2, Enriched: 2, Delivered: 2}, run.Counters)
	assert.Equal(t, []string{"1", "2"}, emitter.delivered)
	assert.Equal(t, []domain.RunState{
		domain.RunCrawling, domain.RunEnriching, domain.RunDelivering, domain.RunSucceeded,
	}, runs.transitions)
}

func TestExecuteCrawlerFatalFailsRun(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	crawler := &listCrawler{err: fmt.Errorf("%w: status 403", domain.ErrCrawler)}
	p := newTestPipeline(runs, crawler, &recordingEmitter{}, &stubClient{}, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.Error(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunFailed, run.State)
	assert.Contains(t, run.Error, "403")
}

func TestExecuteClientConfigErrorFailsRun(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	p := newTestPipeline(runs, &listCrawler{jobs: rawJobs("1")}, &recordingEmitter{}, nil,
		fmt.Errorf("%w: model not installed", domain.ErrConfig))

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunFailed, run.State)
}

func TestExecuteEnrichmentFailureSkipsDelivery(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	emitter := &recordingEmitter{}
	client := &stubClient{failJobs: map[string]bool{"2": true}}
	p := newTestPipeline(runs, &listCrawler{jobs: rawJobs("1", "2", "3")}, emitter, client, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.NoError(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunSucceeded, run.State)
	assert.Equal(t, domain.Counters{TotalJobs: 3, Enriched: 2, Delivered: 2, EnrichmentFailures: 1}, run.Counters)
	assert.Equal(t, []string{"1", "3"}, emitter.delivered)
}

func TestExecuteDeliveryFailureDoesNotPoisonRun(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	emitter := &recordingEmitter{failIDs: map[string]bool{"2": true}}
	p := newTestPipeline(runs, &listCrawler{jobs: rawJobs("1", "2", "3")}, emitter, &stubClient{}, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.NoError(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunSucceeded, run.State)
	assert.Equal(t, domain.Counters{TotalJobs: 3, Enriched: 3, Delivered: 2, DeliveryFailures: 1}, run.Counters)
	assert.Equal(t, []string{"1", "3"}, emitter.delivered)
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	require.NoError(t, runs.Cancel(context.Background(), "run-1"))
	p := newTestPipeline(runs, &listCrawler{jobs: rawJobs("1")}, &recordingEmitter{}, &stubClient{}, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.NoError(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunFailed, run.State)
	assert.Equal(t, cancelledReason, run.Error)
}

func TestExecuteCancelledMidDelivery(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	runs.cancelAfterDelivered = 1
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	emitter := &recordingEmitter{}
	p := newTestPipeline(runs, &listCrawler{jobs: rawJobs("1", "2", "3")}, emitter, &stubClient{}, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.NoError(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunFailed, run.State)
	assert.Equal(t, cancelledReason, run.Error)
	// The already-dispatched delivery stands.
	assert.GreaterOrEqual(t, run.Counters.Delivered, 1)
	assert.Less(t, run.Counters.Delivered, 3)
}

func TestExecuteEmptyCrawlSucceeds(t *testing.T) {
	t.Parallel()

	runs := newMemRunStore()
	require.NoError(t, runs.Create(context.Background(), "run-1"))
	p := newTestPipeline(runs, &listCrawler{}, &recordingEmitter{}, &stubClient{}, nil)

	err := p.Execute(context.Background(), domain.PipelineTaskPayload{RunID: "run-1", Request: testRequest()})
	require.NoError(t, err)

	run, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, domain.RunSucceeded, run.State)
	assert.Equal(t, domain.Counters{}, run.Counters)
}

func TestExecuteWebhookErrorType(t *testing.T) {
	t.Parallel()

	e := &recordingEmitter{failIDs: map[string]bool{"1": true}}
	err := e.Deliver(context.Background(), "", domain.EnrichedJob{RawJob: domain.RawJob{JobID: "1"}})
	assert.True(t, errors.Is(err, domain.ErrWebhook))
}
