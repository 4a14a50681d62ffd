// internal/adapters/db/job_repository.go
package db

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// jobRepository stores async job records in async_jobs
type jobRepository struct {
	db     querier
	logger *slog.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *Database, logger *slog.Logger) ports.JobRepository {
	return &jobRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "job")),
	}
}

func (r *jobRepository) Create(ctx context.Context, job *domain.Job) error {
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}

	query := `
		INSERT INTO async_jobs (id, type, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`

	if err := r.db.QueryRow(ctx, query, job.ID, job.Type, job.Status, job.Payload).
		Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return storageError("failed to create job", err)
	}
	return nil
}

func (r *jobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	query := `
		UPDATE async_jobs
		SET status = $2, error = NULLIF($3, ''), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, status, errMsg); err != nil {
		return storageError("failed to update job status", err)
	}
	return nil
}

func (r *jobRepository) Complete(ctx context.Context, id string, status domain.JobStatus, result json.RawMessage) error {
	query := `
		UPDATE async_jobs
		SET status = $2, result = $3, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, status, result); err != nil {
		return storageError("failed to complete job", err)
	}
	return nil
}

func (r *jobRepository) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
		SELECT id, type, status, payload, result, COALESCE(error, ''), created_at, updated_at, completed_at
		FROM async_jobs
		WHERE id = $1`

	job := &domain.Job{}
	var payload, result []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Type, &job.Status, &payload, &result, &job.Error,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to find job", err)
	}
	job.Payload = payload
	job.Result = result

	return job, nil
}

func (r *jobRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM async_jobs
		WHERE status IN ('completed', 'completed_with_errors', 'failed') AND updated_at < $1`, before)
	if err != nil {
		return 0, storageError("failed to delete finished jobs", err)
	}
	return tag.RowsAffected(), nil
}
