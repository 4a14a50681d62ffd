// internal/workers/runtime.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/pkg/logger"
)

const (
	retryBase = time.Second
	retryCap  = 10 * time.Minute
)

// RetryDelay doubles from one second per attempt, capped at ten minutes
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= 20 {
		return retryCap
	}
	return min(retryBase<<n, retryCap)
}

// Periodic is a cron registration for the scheduler
type Periodic struct {
	Cron     string
	TaskType string
}

// Housekeeping lists the maintenance tasks the worker schedules
var Housekeeping = []Periodic{
	{Cron: "0 3 * * *", TaskType: TypeCleanupOldData},
	{Cron: "@every 1h", TaskType: TypeCleanupTempFiles},
}

// NewScheduler registers periodic on the low queue with a single retry
func NewScheduler(redisOpt asynq.RedisConnOpt, periodic []Periodic, log *slog.Logger) (*asynq.Scheduler, error) {
	s := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   NewTaskLogger(log),
	})
	for _, p := range periodic {
		if _, err := s.Register(p.Cron, asynq.NewTask(p.TaskType, nil), asynq.Queue("low"), asynq.MaxRetry(1)); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", p.TaskType, err)
		}
	}
	return s, nil
}

// WithTaskContext tags the context with the task id and type so handler
// logs carry them, and logs each task's outcome at debug
func WithTaskContext(log *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if id, ok := asynq.GetTaskID(ctx); ok {
				ctx = context.WithValue(ctx, logger.ContextKeyJobID, id)
			}
			ctx = context.WithValue(ctx, logger.ContextKeyTaskType, t.Type())

			start := time.Now()
			err := next.ProcessTask(ctx, t)
			log.DebugContext(ctx, "task processed",
				slog.Duration("duration", time.Since(start)),
				slog.Bool("ok", err == nil))
			return err
		})
	}
}

// TaskErrorHandler logs every failed attempt with its retry count
func TaskErrorHandler(log *slog.Logger) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, t *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		log.ErrorContext(ctx, "task processing failed",
			slog.String("type", t.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.String("error", err.Error()))
	}
}

// TaskLogger routes asynq's own logging through slog
type TaskLogger struct {
	log  *slog.Logger
	exit func(int)
}

func NewTaskLogger(log *slog.Logger) *TaskLogger {
	return &TaskLogger{log: log.With(slog.String("component", "asynq")), exit: os.Exit}
}

func (l *TaskLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *TaskLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *TaskLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *TaskLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }

func (l *TaskLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...), slog.Bool("fatal", true))
	l.exit(1)
}
