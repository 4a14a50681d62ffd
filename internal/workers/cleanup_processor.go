// internal/workers/cleanup_processor.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/adapters/storage"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// CleanupConfig holds retention settings
type CleanupConfig struct {
	JobRetention      time.Duration
	ResolvedRetention time.Duration
	ExportRetention   time.Duration
	TempDir           string
	TempFileMaxAge    time.Duration
}

// CleanupProcessor handles cleanup tasks
type CleanupProcessor struct {
	jobs    ports.JobRepository
	alerts  ports.AlertRepository
	exports storage.Pruner
	config  CleanupConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewCleanupProcessor creates a new cleanup processor. exports may be nil
// when object storage is not configured.
func NewCleanupProcessor(
	jobs ports.JobRepository,
	alerts ports.AlertRepository,
	exports storage.Pruner,
	config CleanupConfig,
	logger *slog.Logger,
) *CleanupProcessor {
	return &CleanupProcessor{
		jobs:    jobs,
		alerts:  alerts,
		exports: exports,
		config:  config,
		now:     time.Now,
		logger:  logger.With(slog.String("processor", "cleanup")),
	}
}

// CleanupOldData removes finished jobs, resolved alerts and expired exports
func (p *CleanupProcessor) CleanupOldData(ctx context.Context, t *asynq.Task) error {
	p.logger.InfoContext(ctx, "cleaning up old data")
	now := p.now()

	var errs []error

	if p.config.JobRetention > 0 {
		n, err := p.jobs.DeleteFinishedBefore(ctx, now.Add(-p.config.JobRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to cleanup jobs: %w", err))
		} else {
			p.logger.InfoContext(ctx, "finished jobs deleted", slog.Int64("rows_deleted", n))
		}
	}

	if p.config.ResolvedRetention > 0 {
		n, err := p.alerts.DeleteResolvedBefore(ctx, now.Add(-p.config.ResolvedRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to cleanup alerts: %w", err))
		} else {
			p.logger.InfoContext(ctx, "resolved alerts deleted", slog.Int64("rows_deleted", n))
		}
	}

	if p.exports != nil && p.config.ExportRetention > 0 {
		n, err := p.exports.DeleteOlderThan(ctx, "exports/", now.Add(-p.config.ExportRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to cleanup exports: %w", err))
		} else {
			p.logger.InfoContext(ctx, "expired exports deleted", slog.Int("objects_deleted", n))
		}
	}

	return errors.Join(errs...)
}

// CleanupTempFiles removes upload files older than the configured age
func (p *CleanupProcessor) CleanupTempFiles(ctx context.Context, t *asynq.Task) error {
	p.logger.InfoContext(ctx, "cleaning up temp files")

	maxAge := p.config.TempFileMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := p.now().Add(-maxAge)

	var deletedCount int
	err := filepath.WalkDir(p.config.TempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				p.logger.WarnContext(ctx, "failed to delete temp file",
					slog.String("file", path),
					slog.String("error", err.Error()))
			} else {
				deletedCount++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk temp directory: %w", err)
	}

	p.logger.InfoContext(ctx, "temp files cleaned up",
		slog.Int("files_deleted", deletedCount))
	return nil
}
