// internal/adapters/storage/local.go
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ammerola/stockflow/internal/core/ports"
)

var (
	_ ports.ObjectStorage = (*LocalStorage)(nil)
	_ Pruner              = (*LocalStorage)(nil)
)

// LocalStorage keeps objects on the local filesystem, for development and tests
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// NewLocalStorage creates a new local storage client
func NewLocalStorage(basePath string, logger *slog.Logger) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
		logger:   logger.With(slog.String("storage", "local")),
	}
}

// path roots key under basePath; cleaning against "/" drops any leading ".."
func (l *LocalStorage) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	return filepath.Join(l.basePath, filepath.Clean("/"+key)), nil
}

// Upload writes data to basePath/key
func (l *LocalStorage) Upload(ctx context.Context, key string, data io.Reader, _ string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, data)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	l.logger.DebugContext(ctx, "file stored",
		slog.String("path", path),
		slog.Int64("bytes", n))
	return nil
}

// GetPresignedURL returns a file URL; local files do not expire
func (l *LocalStorage) GetPresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	return "file://" + path, nil
}

// DeleteOlderThan removes files under prefix modified before the cutoff
func (l *LocalStorage) DeleteOlderThan(ctx context.Context, prefix string, before time.Time) (int, error) {
	root, err := l.path(prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
			return err
		}
		if info.ModTime().Before(before) {
			if err := os.Remove(path); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("failed to prune %s: %w", prefix, err)
	}

	l.logger.DebugContext(ctx, "local files pruned", slog.Int("count", deleted))
	return deleted, nil
}
