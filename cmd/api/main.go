// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/stockflow/internal/adapters/db"
	"github.com/ammerola/stockflow/internal/adapters/events"
	redis_a "github.com/ammerola/stockflow/internal/adapters/redis_adapter"
	"github.com/ammerola/stockflow/internal/bootstrap"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/internal/handlers"
	"github.com/ammerola/stockflow/internal/handlers/middleware"
	"github.com/ammerola/stockflow/internal/pkg/config"
	"github.com/ammerola/stockflow/internal/pkg/logger"
	"github.com/ammerola/stockflow/internal/workers"
)

// Build information injected at compile time
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

const service = "stockflow-api"

func main() {
	boot := logger.SetupLogger(logger.Options{Level: "info", Format: "json", Service: service})
	boot.Info("starting stockflow api",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("go_version", GoVersion))

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = Version
	}

	log := bootstrap.Logger(cfg, service)
	err = run(cfg, log)
	logger.Shutdown()
	if err != nil {
		log.Error("api stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	log.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.String("log_level", cfg.App.LogLevel),
		slog.String("events_backend", cfg.Events.Backend))

	// production schemas are migrated by cmd/migrate
	if !cfg.IsProduction() {
		err := db.RunMigrationsWithRetry(ctx, &db.MigrationConfig{
			DatabaseURL: cfg.GetDatabaseURL(),
			UseEmbedded: true,
			TableName:   "schema_migrations",
			SchemaName:  "public",
		}, log, cfg.Database.MigrationRetries)
		if err != nil {
			log.Warn("migrations failed, continuing", slog.String("error", err.Error()))
		}
	}

	var closers bootstrap.Closers
	defer closers.Close(log)

	h, err := wire(ctx, cfg, &closers, log)
	if err != nil {
		return err
	}

	server := newServer(ctx, cfg, h, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening",
			slog.String("address", server.Addr),
			slog.Bool("tls", cfg.Server.TLSEnabled))

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

// wire builds every handler and registers what must be released with closers
func wire(ctx context.Context, cfg *config.Config, closers *bootstrap.Closers, log *slog.Logger) (handlers.Handlers, error) {
	database, err := bootstrap.Database(ctx, cfg, bootstrap.Pool{}, log)
	if err != nil {
		return handlers.Handlers{}, err
	}
	closers.AddFunc("database", database.Close)

	rdb, err := bootstrap.Redis(ctx, cfg, log)
	if err != nil {
		return handlers.Handlers{}, err
	}
	closers.Add("redis", rdb.Close)
	cache := redis_a.NewCache(rdb, cfg.Redis.TTL, log)

	queue := bootstrap.QueueRedis(cfg.Asynq)
	client := asynq.NewClient(queue)
	closers.Add("asynq client", client.Close)
	inspector := asynq.NewInspector(queue)
	closers.Add("asynq inspector", inspector.Close)

	repos := bootstrap.NewRepositories(database, log)
	products := bootstrap.Catalog(cfg, log)

	alerts := services.NewAlertService(repos.Alerts, repos.Thresholds,
		events.NewAsynqAlertNotifier(client, log), cfg.Alerts.DefaultThreshold, log)

	publisher := bootstrap.Publisher(cfg, workers.NewStockEventProcessor(alerts, repos.Stock, log).Handle, log)
	closers.Add("event publisher", publisher.Close)

	ledger := services.NewLedgerService(repos.Stock, publisher, cache, cfg.Reports.IdempotencyTTL, log)
	orders := services.NewPurchaseOrderService(repos.Orders, repos.Suppliers, repos.Tx, publisher, log)
	reports := services.NewReportService(products, ledger, orders, cache, cfg.Reports.SourceTimeout, log)

	jobs := handlers.JobQueueConfig{
		Queue:     "default",
		MaxRetry:  cfg.Asynq.RetryMax,
		Timeout:   cfg.FileProcessing.ProcessingTimeout,
		Retention: cfg.FileProcessing.JobRetention,
	}

	log.Info("dependencies ready")
	return handlers.Handlers{
		Health: handlers.NewHealthHandler(cfg, log,
			handlers.DatabaseCheck(database),
			handlers.RedisCheck(rdb),
			handlers.AsynqCheck(inspector),
			handlers.CatalogCheck(products),
		),
		Stock: handlers.NewStockHandler(ledger, log),
		Directory: handlers.NewDirectoryHandler(
			services.NewWarehouseDirectory(repos.Warehouses, log),
			services.NewSupplierDirectory(repos.Suppliers, log), log),
		PurchaseOrders: handlers.NewPurchaseOrderHandler(orders, log),
		Alerts:         handlers.NewAlertHandler(alerts, log),
		Reports: handlers.NewReportHandler(reports, repos.Jobs, client, jobs,
			cfg.Reports.TurnoverReceivedOnly, log),
		Imports: handlers.NewImportHandler(repos.Jobs, client, handlers.ImportConfig{
			UploadDir:     cfg.UploadDir(),
			PDFMaxBytes:   int64(cfg.FileProcessing.PDFMaxSizeMB) << 20,
			ExcelMaxBytes: int64(cfg.FileProcessing.ExcelMaxSizeMB) << 20,
			JobQueue:      jobs,
		}, log),
	}, nil
}

func newServer(ctx context.Context, cfg *config.Config, h handlers.Handlers, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, h)

	sec := cfg.Security
	chain := []middleware.Middleware{
		middleware.RequestID(sec.RequestIDHeader),
		middleware.Logger(log),
		middleware.Recovery(log),
	}
	if sec.RateLimitRequests > 0 {
		chain = append(chain, middleware.NewRateLimiter(ctx, sec.RateLimitRequests, sec.RateLimitDuration).Middleware)
	}
	if len(sec.AllowedOrigins) > 0 {
		chain = append(chain, middleware.CORS(sec.AllowedOrigins))
	}
	if sec.SecureHeaders {
		chain = append(chain, middleware.SecureHeaders)
	}
	chain = append(chain, middleware.Compression)
	if sec.AuthEnabled {
		chain = append(chain, middleware.Authenticate(middleware.AuthConfig{
			Secret: []byte(sec.JWTSecret),
			Issuer: sec.JWTIssuer,
			Public: []string{"/health", "/ready"},
		}, log))
	}

	return &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        middleware.Chain(mux, chain...),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(log.Handler(), slog.LevelError),
	}
}
