package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/findajob/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// JobRepo persists and loads enriched jobs using a minimal pgx pool. The
// summary and cover letter documents are stored as JSONB alongside the flat
// posting columns.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, job_id, job_title, job_url, job_location, employer, employer_url,
	job_description, seniority_level, employment_type, job_function, industries, source,
	job_summary, cover_letter`

// Create inserts an enriched job and returns its database id.
func (r *JobRepo) Create(ctx domain.Context, j domain.EnrichedJob) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "jobs"),
	)
	summary, err := json.Marshal(j.JobSummary)
	if err != nil {
		return 0, fmt.Errorf("op=job.create: %w", err)
	}
	letter, err := json.Marshal(j.CoverLetter)
	if err != nil {
		return 0, fmt.Errorf("op=job.create: %w", err)
	}
	q := `INSERT INTO jobs (job_id, job_title, job_url, job_location, employer, employer_url,
		job_description, seniority_level, employment_type, job_function, industries, source,
		job_summary, cover_letter, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id`
	var id int64
	err = r.Pool.QueryRow(ctx, q,
		j.JobID, j.JobTitle, j.JobURL, j.JobLocation, j.Employer, j.EmployerURL,
		j.JobDescription, j.SeniorityLevel, j.EmploymentType, j.JobFunction, j.Industries, j.Source,
		summary, letter, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// Get loads an enriched job by database id.
func (r *JobRepo) Get(ctx domain.Context, id int64) (domain.EnrichedJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "jobs"),
	)
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
	j, _, err := scanJob(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EnrichedJob{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.EnrichedJob{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// List returns all stored jobs, newest first.
func (r *JobRepo) List(ctx domain.Context) ([]domain.EnrichedJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.List")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "jobs"),
	)
	q := `SELECT ` + jobColumns + ` FROM jobs ORDER BY id DESC`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	defer rows.Close()

	var out []domain.EnrichedJob
	for rows.Next() {
		j, _, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	return out, nil
}

// Delete removes a job by database id.
func (r *JobRepo) Delete(ctx domain.Context, id int64) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "jobs"),
	)
	tag, err := r.Pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=job.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// scanJob reads one row into an EnrichedJob and returns the database id.
func scanJob(row pgx.Row) (domain.EnrichedJob, int64, error) {
	var (
		j       domain.EnrichedJob
		id      int64
		summary []byte
		letter  []byte
	)
	err := row.Scan(&id, &j.JobID, &j.JobTitle, &j.JobURL, &j.JobLocation, &j.Employer, &j.EmployerURL,
		&j.JobDescription, &j.SeniorityLevel, &j.EmploymentType, &j.JobFunction, &j.Industries, &j.Source,
		&summary, &letter)
	if err != nil {
		return domain.EnrichedJob{}, 0, err
	}
	if err := json.Unmarshal(summary, &j.JobSummary); err != nil {
		return domain.EnrichedJob{}, 0, fmt.Errorf("job_summary: %w", err)
	}
	if err := json.Unmarshal(letter, &j.CoverLetter); err != nil {
		return domain.EnrichedJob{}, 0, fmt.Errorf("cover_letter: %w", err)
	}
	return j, id, nil
}

var _ domain.JobRepository = (*JobRepo)(nil)
