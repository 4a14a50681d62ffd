// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/stockflow/internal/adapters/events"
	redis_a "github.com/ammerola/stockflow/internal/adapters/redis_adapter"
	"github.com/ammerola/stockflow/internal/adapters/storage"
	"github.com/ammerola/stockflow/internal/bootstrap"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/internal/pkg/config"
	"github.com/ammerola/stockflow/internal/pkg/logger"
	"github.com/ammerola/stockflow/internal/workers"
)

const service = "stockflow-worker"

// exportStore is where report exports are uploaded and later pruned
type exportStore interface {
	ports.ObjectStorage
	storage.Pruner
}

func main() {
	boot := logger.SetupLogger(logger.Options{Level: "info", Format: "json", Service: service})

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := bootstrap.Logger(cfg, service)
	err = run(cfg, log)
	logger.Shutdown()
	if err != nil {
		log.Error("worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting worker",
		slog.String("environment", cfg.App.Environment),
		slog.String("redis_addr", cfg.Asynq.RedisAddr),
		slog.String("events_backend", cfg.Events.Backend))

	var closers bootstrap.Closers
	defer closers.Close(log)

	database, err := bootstrap.Database(ctx, cfg, bootstrap.Pool{Max: 10, Min: 2}, log)
	if err != nil {
		return err
	}
	closers.AddFunc("database", database.Close)

	rdb, err := bootstrap.Redis(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers.Add("redis", rdb.Close)

	exports, err := exportStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize export storage: %w", err)
	}

	queue := bootstrap.QueueRedis(cfg.Asynq)
	client := asynq.NewClient(queue)
	closers.Add("asynq client", client.Close)

	repos := bootstrap.NewRepositories(database, log)
	cache := redis_a.NewCache(rdb, cfg.Redis.TTL, log)

	alerts := services.NewAlertService(repos.Alerts, repos.Thresholds,
		events.NewAsynqAlertNotifier(client, log), cfg.Alerts.DefaultThreshold, log)
	stockEvents := workers.NewStockEventProcessor(alerts, repos.Stock, log)

	publisher := bootstrap.Publisher(cfg, stockEvents.Handle, log)
	closers.Add("event publisher", publisher.Close)

	ledger := services.NewLedgerService(repos.Stock, publisher, cache, cfg.Reports.IdempotencyTTL, log)
	orders := services.NewPurchaseOrderService(repos.Orders, repos.Suppliers, repos.Tx, publisher, log)
	reports := services.NewReportService(bootstrap.Catalog(cfg, log), ledger, orders, cache, cfg.Reports.SourceTimeout, log)

	cleanup := workers.NewCleanupProcessor(repos.Jobs, repos.Alerts, exports, workers.CleanupConfig{
		JobRetention:      cfg.FileProcessing.JobRetention,
		ResolvedRetention: cfg.Alerts.ResolvedRetention,
		ExportRetention:   cfg.Reports.ExportRetention,
		TempDir:           cfg.UploadDir(),
		TempFileMaxAge:    cfg.FileProcessing.TempFileMaxAge,
	}, log)
	notifications := workers.NewAlertNotificationProcessor(workers.NotificationConfig{
		Environment: cfg.App.Environment,
		SMTPAddr:    cfg.Alerts.SMTPAddr,
		From:        cfg.Alerts.SMTPFrom,
		Recipients:  cfg.Alerts.NotifyEmails,
	}, log)

	mux := asynq.NewServeMux()
	mux.Use(workers.WithTaskContext(log))
	for taskType, handle := range map[string]asynq.HandlerFunc{
		events.TypeStockChanged:      stockEvents.ProcessStockChanged,
		events.TypeAlertRaised:       notifications.ProcessAlertRaised,
		workers.TypePOImport:         workers.NewPDFProcessor(orders, repos.Suppliers, repos.Jobs, log).ProcessPOImport,
		workers.TypeStockImport:      workers.NewExcelProcessor(ledger, repos.Jobs, log).ProcessStockImport,
		workers.TypeReportExport:     workers.NewReportExportProcessor(reports, exports, repos.Jobs, cfg.Reports.ExportURLExpiry, log).ProcessReportExport,
		workers.TypeCleanupOldData:   cleanup.CleanupOldData,
		workers.TypeCleanupTempFiles: cleanup.CleanupTempFiles,
	} {
		mux.Handle(taskType, handle)
	}

	srv := asynq.NewServer(queue, asynq.Config{
		Concurrency:              cfg.Asynq.Concurrency,
		Queues:                   cfg.Asynq.Queues,
		StrictPriority:           cfg.Asynq.StrictPriority,
		ErrorHandler:             workers.TaskErrorHandler(log),
		RetryDelayFunc:           workers.RetryDelay,
		ShutdownTimeout:          cfg.Asynq.ShutdownTimeout,
		HealthCheckInterval:      cfg.Asynq.HealthCheckInterval,
		DelayedTaskCheckInterval: cfg.Asynq.DelayedTaskCheckTime,
		Logger:                   workers.NewTaskLogger(log),
		HealthCheckFunc: func(err error) {
			if err != nil {
				log.Error("worker health check failed", slog.String("error", err.Error()))
			}
		},
	})

	scheduler, err := workers.NewScheduler(queue, workers.Housekeeping, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Events.Backend == "kafka" {
		consumer := bootstrap.KafkaConsumer(cfg, stockEvents.Handle, log)
		closers.Add("kafka consumer", consumer.Close)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("stock event consumer: %w", err)
			}
			return nil
		})
	}

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := srv.Start(mux); err != nil {
		scheduler.Shutdown()
		return fmt.Errorf("failed to start task server: %w", err)
	}
	log.Info("worker started",
		slog.Int("concurrency", cfg.Asynq.Concurrency),
		slog.Any("queues", cfg.Asynq.Queues))

	<-gctx.Done()
	log.Info("shutting down worker")
	scheduler.Shutdown()
	srv.Shutdown()

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("worker shutdown complete")
	return nil
}

// exportStorage uses S3 in production or when an endpoint such as MinIO is
// configured, and the local filesystem otherwise
func exportStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (exportStore, error) {
	if !cfg.IsProduction() && cfg.AWS.S3Endpoint == "" {
		base := filepath.Join(cfg.FileProcessing.TempDir, "stockflow-exports")
		log.Info("using local export storage", slog.String("path", base))
		return storage.NewLocalStorage(base, log), nil
	}
	s3, err := storage.NewS3Storage(ctx, &storage.S3Config{
		Region:          cfg.AWS.Region,
		Bucket:          cfg.AWS.S3Bucket,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.S3Endpoint,
		UsePathStyle:    cfg.AWS.UsePathStyle,
	}, log)
	if err != nil {
		return nil, err
	}
	return s3, nil
}
