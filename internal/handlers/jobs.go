// internal/handlers/jobs.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// TaskEnqueuer is the part of *asynq.Client handlers use
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobQueueConfig controls how background jobs are enqueued
type JobQueueConfig struct {
	Queue     string
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// jobQueue records a job row and enqueues the task that processes it
type jobQueue struct {
	jobs     ports.JobRepository
	enqueuer TaskEnqueuer
	config   JobQueueConfig
	logger   *slog.Logger
}

func newJobQueue(jobs ports.JobRepository, enqueuer TaskEnqueuer, config JobQueueConfig, logger *slog.Logger) jobQueue {
	if config.Queue == "" {
		config.Queue = "default"
	}
	if config.MaxRetry <= 0 {
		config.MaxRetry = 3
	}
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}
	return jobQueue{jobs: jobs, enqueuer: enqueuer, config: config, logger: logger}
}

// submit creates the job record and enqueues taskType with payload. The
// job is marked failed when the enqueue fails.
func (q jobQueue) submit(ctx context.Context, jobID, jobType, taskType string, payload any) (*domain.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &domain.Job{ID: jobID, Type: jobType, Status: domain.JobStatusQueued, Payload: raw}
	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(q.config.Queue),
		asynq.MaxRetry(q.config.MaxRetry),
		asynq.Retention(q.config.Retention),
		asynq.TaskID(jobID),
	}
	if q.config.Timeout > 0 {
		opts = append(opts, asynq.Timeout(q.config.Timeout))
	}

	info, err := q.enqueuer.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...)
	if err != nil {
		if uerr := q.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, "enqueue failed"); uerr != nil {
			q.logger.WarnContext(ctx, "failed to mark job failed",
				slog.String("job_id", jobID),
				slog.String("error", uerr.Error()))
		}
		return nil, fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}

	q.logger.InfoContext(ctx, "job queued",
		slog.String("job_id", jobID),
		slog.String("task_id", info.ID),
		slog.String("type", taskType),
		slog.String("queue", info.Queue))
	return job, nil
}

// JobAccepted is the 202 body for queued jobs
type JobAccepted struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
