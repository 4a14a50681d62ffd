// internal/adapters/db/tx_runner.go
package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/ports"
)

// TxRunner binds stock and purchase order repositories to one transaction
type TxRunner struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.TxRunner = (*TxRunner)(nil)

// NewTxRunner creates a transaction runner
func NewTxRunner(db *Database, logger *slog.Logger) *TxRunner {
	return &TxRunner{db: db, logger: logger}
}

// WithinTx runs fn with repositories bound to a new transaction
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ports.TxRepositories) error) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(ctx, ports.TxRepositories{
			Stock:          newStockRepository(tx, r.logger),
			PurchaseOrders: newPurchaseOrderRepository(tx, r.logger),
		})
	})
	if err != nil {
		return storageError("failed to run transaction", err)
	}
	return nil
}
