package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/findajob/internal/domain"
)

type fakeQueue struct {
	payloads []domain.PipelineTaskPayload
	err      error
}

func (q *fakeQueue) EnqueuePipeline(_ domain.Context, p domain.PipelineTaskPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return "task-1", nil
}

type fakeRunStore struct {
	created    []string
	failed     map[string]string
	cancelFlag map[string]bool
	runs       map[string]domain.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		failed:     map[string]string{},
		cancelFlag: map[string]bool{},
		runs:       map[string]domain.Run{},
	}
}

func (f *fakeRunStore) Create(_ domain.Context, runID string) error {
	f.created = append(f.created, runID)
	f.runs[runID] = domain.Run{RunID: runID, State: domain.RunPending}
	return nil
}

func (f *fakeRunStore) Get(_ domain.Context, runID string) (domain.Run, error) {
	r, ok := f.runs[runID]
	if !ok {
		return domain.Run{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRunStore) SetState(_ domain.Context, _ string, _ domain.RunState) error { return nil }

func (f *fakeRunStore) Fail(_ domain.Context, runID, reason string) error {
	f.failed[runID] = reason
	return nil
}

func (f *fakeRunStore) Succeed(_ domain.Context, _ string) error { return nil }

func (f *fakeRunStore) SetCounters(_ domain.Context, _ string, _ domain.Counters) error { return nil }

func (f *fakeRunStore) Cancel(_ domain.Context, runID string) error {
	if _, ok := f.runs[runID]; !ok {
		return domain.ErrNotFound
	}
	f.cancelFlag[runID] = true
	return nil
}

func (f *fakeRunStore) Cancelled(_ domain.Context, runID string) (bool, error) {
	return f.cancelFlag[runID], nil
}

func validRequest() domain.SearchRequest {
	return domain.SearchRequest{
		SpiderConfig: domain.SpiderConfig{
			Keywords:  "golang developer",
			Location:  "Berlin",
			MaxJobs:   5,
			Seniority: 3,
		},
		AIProviderConfig: domain.AIProviderConfig{Model: "llama3.2"},
		AIProvider:       domain.ProviderOllama,
		UserCV: domain.CandidateProfile{
			Name:                  "Jordan Smith",
			TotalExperienceMonths: 72,
			Skills:                []string{" Go ", "PostgreSQL", ""},
			Industries:            []string{"FinTech"},
			Languages:             map[string]string{"English": "C1", " German ": "B2"},
		},
	}
}

func TestSubmitNormalizesAndEnqueues(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	runs := newFakeRunStore()
	svc := NewSearchService(q, runs, "http://localhost:8080/api/jobs")

	req := validRequest()
	req.AIProvider = " Ollama "

	runID, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, []string{runID}, runs.created)

	require.Len(t, q.payloads, 1)
	got := q.payloads[0].Request
	assert.Equal(t, []string{"go", "postgresql"}, got.UserCV.Skills)
	assert.Equal(t, []string{"fintech"}, got.UserCV.Industries)
	assert.Equal(t, map[string]string{"english": "c1", "german": "b2"}, got.UserCV.Languages)
	assert.Equal(t, domain.ProviderOllama, got.AIProvider)
	assert.Equal(t, "http://localhost:8080/api/jobs", got.Webhook)
}

func TestSubmitKeepsExplicitWebhook(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	svc := NewSearchService(q, newFakeRunStore(), "http://localhost:8080/api/jobs")

	req := validRequest()
	req.Webhook = "http://receiver.example/hook"

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, "http://receiver.example/hook", q.payloads[0].Request.Webhook)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*domain.SearchRequest)
	}{
		{"missing keywords", func(r *domain.SearchRequest) { r.SpiderConfig.Keywords = "" }},
		{"missing location", func(r *domain.SearchRequest) { r.SpiderConfig.Location = "" }},
		{"seniority out of range", func(r *domain.SearchRequest) { r.SpiderConfig.Seniority = 7 }},
		{"missing model", func(r *domain.SearchRequest) { r.AIProviderConfig.Model = "" }},
		{"unknown provider", func(r *domain.SearchRequest) { r.AIProvider = "openai" }},
		{"missing name", func(r *domain.SearchRequest) { r.UserCV.Name = "" }},
		{"negative experience", func(r *domain.SearchRequest) { r.UserCV.TotalExperienceMonths = -1 }},
		{"unknown location type", func(r *domain.SearchRequest) { r.UserCV.Location.LocationType = "office" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewSearchService(&fakeQueue{}, newFakeRunStore(), "")
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestSubmitAcceptsOmittedLocation(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	svc := NewSearchService(q, newFakeRunStore(), "http://localhost:8080/api/jobs")

	// A minimal profile carries no location block at all.
	req := validRequest()
	req.UserCV.Location = domain.Location{}

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, q.payloads, 1)
	assert.Empty(t, q.payloads[0].Request.UserCV.Location.LocationType)
}

func TestSubmitNormalizesLocationType(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	svc := NewSearchService(q, newFakeRunStore(), "http://localhost:8080/api/jobs")

	req := validRequest()
	req.UserCV.Location = domain.Location{Country: "Germany", City: "Berlin", LocationType: " Remote "}

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, "remote", q.payloads[0].Request.UserCV.Location.LocationType)
}

func TestSubmitRejectsUnknownProficiency(t *testing.T) {
	t.Parallel()

	svc := NewSearchService(&fakeQueue{}, newFakeRunStore(), "")
	req := validRequest()
	req.UserCV.Languages = map[string]string{"english": "fluent"}

	_, err := svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "fluent")
}

func TestSubmitEnqueueFailureFailsRun(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{err: errors.New("broker down")}
	runs := newFakeRunStore()
	svc := NewSearchService(q, runs, "")

	req := validRequest()
	req.Webhook = "http://receiver.example/hook"

	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	require.Len(t, runs.created, 1)
	assert.Equal(t, "enqueue failed", runs.failed[runs.created[0]])
}

func TestSubmitRunIDsAreUnique(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	svc := NewSearchService(q, newFakeRunStore(), "")
	req := validRequest()
	req.Webhook = "http://receiver.example/hook"

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		id, err := svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestStatusAndCancel(t *testing.T) {
	t.Parallel()

	runs := newFakeRunStore()
	svc := NewSearchService(&fakeQueue{}, runs, "")
	require.NoError(t, runs.Create(context.Background(), "run-1"))

	run, err := svc.Status(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPending, run.State)

	_, err = svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.Cancel(context.Background(), "run-1"))
	assert.True(t, runs.cancelFlag["run-1"])
	assert.ErrorIs(t, svc.Cancel(context.Background(), "missing"), domain.ErrNotFound)
}
