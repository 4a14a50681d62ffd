// internal/core/services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

const idempotencyPrefix = "idem:"

// LedgerService handles stock ledger business logic
type LedgerService struct {
	repo      ports.StockRepository
	publisher ports.StockEventPublisher
	cache     ports.CacheRepository
	idemTTL   time.Duration
	logger    *slog.Logger
}

var _ ports.StockLedgerService = (*LedgerService)(nil)

// NewLedgerService creates a new ledger service. cache may be nil, in
// which case idempotency keys are ignored.
func NewLedgerService(
	repo ports.StockRepository,
	publisher ports.StockEventPublisher,
	cache ports.CacheRepository,
	idemTTL time.Duration,
	logger *slog.Logger,
) *LedgerService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &LedgerService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		idemTTL:   idemTTL,
		logger:    logger.With(slog.String("service", "ledger")),
	}
}

// Adjust applies a signed delta to one key
func (s *LedgerService) Adjust(ctx context.Context, adj domain.StockAdjustment) (*domain.StockEntry, error) {
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	entry, err := s.repo.Adjust(ctx, adj)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.logger.InfoContext(ctx, "adjustment rejected",
				slog.String("key", adj.Key().String()),
				slog.Int64("delta", adj.Delta))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "stock adjusted",
		slog.String("key", adj.Key().String()),
		slog.Int64("delta", adj.Delta),
		slog.Int64("quantity", entry.Quantity))

	publishAfterCommit(ctx, s.publisher, s.logger,
		domain.NewStockChangedEvent(entry, adj.Delta, domain.CauseAdjustment, ""))

	return entry, nil
}

type idempotentResult struct {
	Request domain.StockAdjustment `json:"request"`
	Entry   *domain.StockEntry     `json:"entry"`
}

// AdjustIdempotent applies adj once per key. A repeated key replays the
// stored entry; a key still being processed is rejected.
func (s *LedgerService) AdjustIdempotent(ctx context.Context, key string, adj domain.StockAdjustment) (*domain.StockEntry, error) {
	if key == "" || s.cache == nil {
		return s.Adjust(ctx, adj)
	}
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	resultKey := idempotencyPrefix + key
	lockKey := resultKey + ":lock"

	stored, found, err := s.storedResult(ctx, resultKey)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "idempotency lookup failed, applying without replay protection",
			slog.String("idempotency_key", key),
			slog.String("error", err.Error()))
		return s.Adjust(ctx, adj)
	case found:
		return s.replay(ctx, key, stored, adj)
	}

	acquired, err := s.cache.SetNX(ctx, lockKey, adj, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to lock idempotency key: %w", err)
	}
	if !acquired {
		return nil, domain.NewInvalidStateError("request with idempotency key %q is in progress", key)
	}
	defer func() {
		if err := s.cache.Delete(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.WarnContext(ctx, "failed to release idempotency lock",
				slog.String("idempotency_key", key),
				slog.String("error", err.Error()))
		}
	}()

	// another request may have finished between the lookup and the lock
	stored, found, err = s.storedResult(ctx, resultKey)
	if err != nil {
		return nil, fmt.Errorf("failed to recheck idempotency key: %w", err)
	}
	if found {
		return s.replay(ctx, key, stored, adj)
	}

	entry, err := s.Adjust(ctx, adj)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetWithTTL(ctx, resultKey, idempotentResult{Request: adj, Entry: entry}, s.idemTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to store idempotent result",
			slog.String("idempotency_key", key),
			slog.String("error", err.Error()))
	}

	return entry, nil
}

// storedResult loads the result recorded under resultKey; a miss is not an error
func (s *LedgerService) storedResult(ctx context.Context, resultKey string) (idempotentResult, bool, error) {
	var stored idempotentResult
	err := s.cache.Get(ctx, resultKey, &stored)
	switch {
	case err == nil:
		return stored, true, nil
	case errors.Is(err, ports.ErrCacheMiss):
		return stored, false, nil
	default:
		return stored, false, err
	}
}

func (s *LedgerService) replay(ctx context.Context, key string, stored idempotentResult, adj domain.StockAdjustment) (*domain.StockEntry, error) {
	if stored.Request != adj {
		return nil, domain.NewValidationError("idempotency key %q was used for a different request", key)
	}
	s.logger.DebugContext(ctx, "replaying idempotent adjustment", slog.String("idempotency_key", key))
	return stored.Entry, nil
}

// Get returns the entry for a key
func (s *LedgerService) Get(ctx context.Context, key domain.StockKey) (*domain.StockEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	entry, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, domain.NewNotFoundError("stock entry", key)
	}
	return entry, nil
}

// List returns entries matching filter
func (s *LedgerService) List(ctx context.Context, filter domain.StockFilter) ([]*domain.StockEntry, error) {
	return s.repo.List(ctx, filter)
}

// publishAfterCommit hands events to the publisher. Stock is the source of
// truth, so a failed publish is logged and never fails the caller.
func publishAfterCommit(ctx context.Context, publisher ports.StockEventPublisher, logger *slog.Logger, events ...domain.StockChangedEvent) {
	if publisher == nil || len(events) == 0 {
		return
	}
	if err := publisher.PublishStockChanged(ctx, events...); err != nil {
		logger.WarnContext(ctx, "failed to publish stock events",
			slog.Int("count", len(events)),
			slog.String("error", err.Error()))
	}
}
