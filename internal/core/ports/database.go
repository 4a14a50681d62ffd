// internal/core/ports/database.go
package ports

import (
	"context"
)

// Database defines the port for basic database access used by health checks
type Database interface {
	Close()
	Ping(ctx context.Context) error
	Health(ctx context.Context) map[string]interface{}
}
