// internal/core/ports/collaborators.go
package ports

import (
	"context"
	"io"
	"time"

	"github.com/ammerola/stockflow/internal/core/domain"
)

// ProductCatalog is the read-only contract of the product service.
// GetProduct returns a domain not-found error for unknown ids.
type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// StockEventPublisher delivers stock change events after commit
type StockEventPublisher interface {
	PublishStockChanged(ctx context.Context, events ...domain.StockChangedEvent) error
	Close() error
}

// ObjectStorage stores generated files
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// AlertNotifier is told about newly raised alerts
type AlertNotifier interface {
	AlertRaised(ctx context.Context, alert *domain.Alert) error
}
