// internal/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/stockflow/internal/adapters/catalog"
	"github.com/ammerola/stockflow/internal/adapters/db"
	"github.com/ammerola/stockflow/internal/adapters/events"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/pkg/config"
	"github.com/ammerola/stockflow/internal/pkg/logger"
)

// Logger builds the process logger from loaded settings
func Logger(cfg *config.Config, service string) *slog.Logger {
	return logger.SetupLogger(logger.Options{
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		Service:     service,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		ELKURL:      cfg.App.ELKURL,
	})
}

// Pool caps the connections a process opens. Zero fields fall back to the
// configured values.
type Pool struct {
	Max, Min int32
}

// DatabaseConfig maps application settings onto the postgres adapter
func DatabaseConfig(c config.DatabaseConfig, pool Pool) *db.Config {
	out := &db.Config{
		Host:               c.Host,
		Port:               c.Port,
		User:               c.User,
		Password:           c.Password,
		Database:           c.Name,
		SSLMode:            c.SSLMode,
		MaxConnections:     c.MaxConnections,
		MinConnections:     c.MinConnections,
		MaxConnLifetime:    c.MaxConnLifetime,
		MaxConnIdleTime:    c.MaxConnIdleTime,
		HealthCheckPeriod:  c.HealthCheckPeriod,
		ConnectTimeout:     c.ConnectTimeout,
		StatementCacheMode: c.StatementCacheMode,
		EnableQueryLogging: c.EnableQueryLogging,
	}
	if pool.Max > 0 {
		out.MaxConnections = pool.Max
	}
	if pool.Min > 0 {
		out.MinConnections = pool.Min
	}
	return out
}

// Database connects the pool
func Database(ctx context.Context, cfg *config.Config, pool Pool, logger *slog.Logger) (*db.Database, error) {
	logger.Info("connecting to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Name))

	database, err := db.NewDatabase(ctx, DatabaseConfig(cfg.Database, pool), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, nil
}

// RedisOptions maps application settings onto the cache client
func RedisOptions(c config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:            c.Host + ":" + c.Port,
		Password:        c.Password,
		DB:              c.DB,
		MaxRetries:      c.MaxRetries,
		MinRetryBackoff: c.MinRetryBackoff,
		MaxRetryBackoff: c.MaxRetryBackoff,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		PoolTimeout:     c.PoolTimeout,
	}
}

// Redis opens the cache client and checks it answers
func Redis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	opts := RedisOptions(cfg.Redis)
	logger.Info("connecting to redis", slog.String("addr", opts.Addr))

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// QueueRedis is the connection asynq clients, servers and schedulers share
func QueueRedis(c config.AsynqConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

func Catalog(cfg *config.Config, logger *slog.Logger) *catalog.Client {
	return catalog.NewClient(catalog.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		RequestTimeout: cfg.Catalog.RequestTimeout,
		MaxRetries:     cfg.Catalog.MaxRetries,
	}, logger)
}

// Publisher picks where stock change events go. inline hands them to
// handle in process; the asynq default owns its client and closes it on Close.
func Publisher(cfg *config.Config, handle events.Handler, logger *slog.Logger) ports.StockEventPublisher {
	switch cfg.Events.Backend {
	case "kafka":
		return events.NewKafkaPublisher(events.NewKafkaWriter(kafkaConfig(cfg)), logger)
	case "inline":
		return events.NewInlinePublisher(handle, logger)
	case "none":
		return events.NopPublisher{}
	default:
		return events.NewAsynqPublisher(asynq.NewClient(QueueRedis(cfg.Asynq)), "critical", logger)
	}
}

// KafkaConsumer reads the stock event topic with the configured group
func KafkaConsumer(cfg *config.Config, handle events.Handler, logger *slog.Logger) *events.KafkaConsumer {
	return events.NewKafkaConsumer(events.NewKafkaReader(kafkaConfig(cfg)), handle, logger)
}

func kafkaConfig(cfg *config.Config) events.KafkaConfig {
	return events.KafkaConfig{
		Brokers: cfg.Events.KafkaBrokers,
		Topic:   cfg.Events.KafkaTopic,
		GroupID: cfg.Events.KafkaGroupID,
	}
}

// Repositories are the postgres adapters over one pool
type Repositories struct {
	Stock      ports.StockRepository
	Orders     ports.PurchaseOrderRepository
	Alerts     ports.AlertRepository
	Thresholds ports.ThresholdRepository
	Warehouses ports.WarehouseRepository
	Suppliers  ports.SupplierRepository
	Jobs       ports.JobRepository
	Tx         *db.TxRunner
}

func NewRepositories(database *db.Database, logger *slog.Logger) Repositories {
	return Repositories{
		Stock:      db.NewStockRepository(database, logger),
		Orders:     db.NewPurchaseOrderRepository(database, logger),
		Alerts:     db.NewAlertRepository(database, logger),
		Thresholds: db.NewThresholdRepository(database, logger),
		Warehouses: db.NewWarehouseRepository(database, logger),
		Suppliers:  db.NewSupplierRepository(database, logger),
		Jobs:       db.NewJobRepository(database, logger),
		Tx:         db.NewTxRunner(database, logger),
	}
}

// Closers releases resources in reverse order of registration
type Closers struct {
	fns []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Add registers fn to run on Close
func (c *Closers) Add(name string, fn func() error) {
	c.fns = append(c.fns, namedCloser{name, fn})
}

// AddFunc registers a closer that cannot fail
func (c *Closers) AddFunc(name string, fn func()) {
	c.Add(name, func() error { fn(); return nil })
}

// Close runs every closer, last registered first, logs each failure and
// returns them joined
func (c *Closers) Close(logger *slog.Logger) error {
	var errs []error
	for i := len(c.fns) - 1; i >= 0; i-- {
		nc := c.fns[i]
		if err := nc.fn(); err != nil {
			logger.Error("failed to close", slog.String("resource", nc.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", nc.name, err))
		}
	}
	c.fns = nil
	return errors.Join(errs...)
}
