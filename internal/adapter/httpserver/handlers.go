package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/findajob/internal/config"
	"github.com/fairyhunter13/findajob/internal/domain"
	"github.com/fairyhunter13/findajob/internal/usecase"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg        config.Config
	Search     usecase.SearchService
	Jobs       domain.JobRepository
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, search usecase.SearchService, jobs domain.JobRepository, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Search: search, Jobs: jobs, DBCheck: dbCheck, RedisCheck: redisCheck}
}

// acceptsJSON rejects clients that explicitly refuse JSON responses.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
		Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a},
	}})
	return false
}

// SearchHandler accepts a search submission and enqueues the pipeline run.
func (s *Server) SearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req domain.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		runID, err := s.Search.Submit(r.Context(), req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": runID, "run_id": runID, "status": string(domain.RunPending)})
	}
}

// StatusHandler returns the run record with state and counters.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		runID := chi.URLParam(r, "run_id")
		if runID == "" {
			writeError(w, r, fmt.Errorf("%w: run_id missing", domain.ErrInvalidArgument), nil)
			return
		}
		run, err := s.Search.Status(r.Context(), runID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// CancelHandler flags the run for cancellation. The worker stops scheduling
// new jobs once it sees the flag; a job already dispatched may complete.
func (s *Server) CancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		runID := chi.URLParam(r, "run_id")
		if runID == "" {
			writeError(w, r, fmt.Errorf("%w: run_id missing", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Search.Cancel(r.Context(), runID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "cancelling"})
	}
}

// JobWebhookHandler is the bundled webhook receiver. It persists delivered
// jobs so a run's output survives the run record's retention window.
func (s *Server) JobWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var job domain.EnrichedJob
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if job.JobID == "" || job.JobTitle == "" {
			writeError(w, r, fmt.Errorf("%w: job_id and job_title required", domain.ErrInvalidArgument), nil)
			return
		}
		id, err := s.Jobs.Create(r.Context(), job)
		if err != nil {
			writeError(w, r, fmt.Errorf("job store: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

// JobGetHandler returns one stored job.
func (s *Server) JobGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: id must be an integer", domain.ErrInvalidArgument), nil)
			return
		}
		job, err := s.Jobs.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// JobListHandler returns all stored jobs, newest first.
func (s *Server) JobListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		jobs, err := s.Jobs.List(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if jobs == nil {
			jobs = []domain.EnrichedJob{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	}
}

// JobDeleteHandler removes a stored job.
func (s *Server) JobDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: id must be an integer", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Jobs.Delete(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReadyzHandler returns a readiness handler that probes the database and
// the Redis broker.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
