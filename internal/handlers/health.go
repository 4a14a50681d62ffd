// internal/handlers/health.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/pkg/config"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"

	probeTimeout = 2 * time.Second
)

// Check probes one dependency
type Check struct {
	Name string
	// Critical checks gate readiness and make /health unhealthy; the rest
	// only degrade it.
	Critical bool
	Probe    func(ctx context.Context) (map[string]any, error)
}

// HealthHandler reports the state of the API's backing services
type HealthHandler struct {
	checks  []Check
	config  *config.Config
	logger  *slog.Logger
	started time.Time
}

func NewHealthHandler(cfg *config.Config, logger *slog.Logger, checks ...Check) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		config:  cfg,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
	}
}

// HealthStatus is the /health response
type HealthStatus struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Uptime      string                 `json:"uptime"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]ServiceInfo `json:"services"`
	Runtime     RuntimeInfo            `json:"runtime"`
}

// ServiceInfo is the outcome of one check
type ServiceInfo struct {
	Status   string         `json:"status"`
	Critical bool           `json:"critical"`
	Message  string         `json:"message,omitempty"`
	Took     string         `json:"took"`
	Details  map[string]any `json:"details,omitempty"`
}

type RuntimeInfo struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
	NumGC      uint32 `json:"num_gc"`
}

// Health handles GET /health. Any failing critical check answers 503;
// failing optional checks report degraded with 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := h.probe(r.Context(), h.checks)

	status, code := statusHealthy, http.StatusOK
	for _, info := range services {
		if info.Status == statusHealthy {
			continue
		}
		if info.Critical {
			status, code = statusUnhealthy, http.StatusServiceUnavailable
			break
		}
		status = statusDegraded
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, code, HealthStatus{
		Status:      status,
		Version:     h.config.App.Version,
		Environment: h.config.App.Environment,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Timestamp:   time.Now().UTC(),
		Services:    services,
		Runtime:     runtimeInfo(),
	})
}

// Readiness handles GET /ready over the critical checks only
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	var critical []Check
	for _, c := range h.checks {
		if c.Critical {
			critical = append(critical, c)
		}
	}

	ready := true
	details := make(map[string]string, len(critical))
	for name, info := range h.probe(r.Context(), critical) {
		details[name] = "ready"
		if info.Status != statusHealthy {
			ready = false
			details[name] = "not ready"
		}
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, code, map[string]any{"ready": ready, "details": details})
}

// probe runs checks concurrently, each under its own timeout
func (h *HealthHandler) probe(ctx context.Context, checks []Check) map[string]ServiceInfo {
	infos := make([]ServiceInfo, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			details, err := c.Probe(cctx)
			info := ServiceInfo{Status: statusHealthy, Critical: c.Critical, Details: details}
			if err != nil {
				info = ServiceInfo{Status: statusUnhealthy, Critical: c.Critical, Message: err.Error()}
				h.logger.WarnContext(ctx, "health check failed",
					slog.String("check", c.Name),
					slog.String("error", err.Error()))
			}
			info.Took = time.Since(start).Round(time.Microsecond).String()
			infos[i] = info
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]ServiceInfo, len(checks))
	for i, c := range checks {
		out[c.Name] = infos[i]
	}
	return out
}

// DatabaseCheck pings postgres and reports pool statistics
func DatabaseCheck(db ports.Database) Check {
	return Check{
		Name:     "database",
		Critical: true,
		Probe: func(ctx context.Context) (map[string]any, error) {
			if err := db.Ping(ctx); err != nil {
				return nil, err
			}
			return db.Health(ctx), nil
		},
	}
}

// RedisCheck pings redis and reports pool statistics
func RedisCheck(client *redis.Client) Check {
	return Check{
		Name:     "redis",
		Critical: true,
		Probe: func(ctx context.Context) (map[string]any, error) {
			if err := client.Ping(ctx).Err(); err != nil {
				return nil, err
			}
			s := client.PoolStats()
			return map[string]any{"total_conns": s.TotalConns, "idle_conns": s.IdleConns, "stale_conns": s.StaleConns}, nil
		},
	}
}

// AsynqCheck reports pending, active and failed task counts per queue
func AsynqCheck(inspector *asynq.Inspector) Check {
	return Check{
		Name: "asynq",
		Probe: func(context.Context) (map[string]any, error) {
			queues, err := inspector.Queues()
			if err != nil {
				return nil, err
			}
			stats := make(map[string]any, len(queues))
			for _, q := range queues {
				info, err := inspector.GetQueueInfo(q)
				if err != nil {
					stats[q] = err.Error()
					continue
				}
				stats[q] = map[string]int{
					"pending":  info.Pending,
					"active":   info.Active,
					"retry":    info.Retry,
					"archived": info.Archived,
				}
			}
			return map[string]any{"queues": stats}, nil
		},
	}
}

// CatalogCheck lists products from the catalog. Reports degrade without it,
// so it is optional.
func CatalogCheck(catalog ports.ProductCatalog) Check {
	return Check{
		Name: "catalog",
		Probe: func(ctx context.Context) (map[string]any, error) {
			products, err := catalog.ListProducts(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"products": len(products)}, nil
		},
	}
}

func runtimeInfo() RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeInfo{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     m.HeapAlloc >> 20,
		NumGC:      m.NumGC,
	}
}
