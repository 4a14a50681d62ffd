// internal/adapters/db/postgres.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/ammerola/stockflow/internal/core/domain"
)

// Config holds database configuration. Zero values fall back to the
// development defaults.
type Config struct {
	Host               string
	Port               string
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int32
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	StatementCacheMode string
	EnableQueryLogging bool
}

func (c Config) withDefaults() Config {
	def := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}
	def(&c.Host, "localhost")
	def(&c.Port, "5432")
	def(&c.User, "stockflow")
	def(&c.Database, "stockflow")
	def(&c.SSLMode, "disable")
	def(&c.StatementCacheMode, "describe")

	if c.MaxConnections <= 0 {
		c.MaxConnections = 25
	}
	if c.MinConnections < 0 || c.MinConnections > c.MaxConnections {
		c.MinConnections = c.MaxConnections / 5
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// URL renders the config as a postgres connection URL
func (c Config) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", fmt.Sprint(int(c.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// Database is the shared pgx pool
type Database struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDatabase opens the pool and verifies it with a ping
func NewDatabase(ctx context.Context, config *Config, logger *slog.Logger) (*Database, error) {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	cfg = cfg.withDefaults()

	poolConfig, err := poolConfigFor(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to postgres",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database),
		slog.Int("max_conns", int(cfg.MaxConnections)))

	return &Database{pool: pool, logger: logger}, nil
}

func poolConfigFor(cfg Config, logger *slog.Logger) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pc.MaxConns = cfg.MaxConnections
	pc.MinConns = cfg.MinConnections
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	pc.ConnConfig.DefaultQueryExecMode = queryExecMode(cfg.StatementCacheMode)

	if cfg.EnableQueryLogging {
		pc.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   queryLogger(logger.With(slog.String("component", "pgx"))),
			LogLevel: tracelog.LogLevelDebug,
		}
	}
	return pc, nil
}

func queryExecMode(mode string) pgx.QueryExecMode {
	switch mode {
	case "prepare":
		return pgx.QueryExecModeCacheStatement
	case "exec":
		return pgx.QueryExecModeExec
	case "simple":
		return pgx.QueryExecModeSimpleProtocol
	default:
		return pgx.QueryExecModeCacheDescribe
	}
}

var traceLevels = map[tracelog.LogLevel]slog.Level{
	tracelog.LogLevelError: slog.LevelError,
	tracelog.LogLevelWarn:  slog.LevelWarn,
	tracelog.LogLevelInfo:  slog.LevelInfo,
}

// queryLogger forwards pgx trace output to slog; unmapped levels log at debug
func queryLogger(l *slog.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		lvl, ok := traceLevels[level]
		if !ok {
			lvl = slog.LevelDebug
		}
		attrs := make([]slog.Attr, 0, len(data))
		for k, v := range data {
			attrs = append(attrs, slog.Any(k, v))
		}
		l.LogAttrs(ctx, lvl, msg, attrs...)
	})
}

// Pool returns the underlying pgxpool.Pool
func (db *Database) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the pool
func (db *Database) Close() {
	db.pool.Close()
	db.logger.Info("postgres pool closed")
}

// Ping verifies connectivity
func (db *Database) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Health reports pool statistics for the health endpoint
func (db *Database) Health(_ context.Context) map[string]interface{} {
	s := db.pool.Stat()
	return map[string]interface{}{
		"total_conns":       s.TotalConns(),
		"idle_conns":        s.IdleConns(),
		"acquired_conns":    s.AcquiredConns(),
		"max_conns":         s.MaxConns(),
		"acquire_count":     s.AcquireCount(),
		"empty_acquires":    s.EmptyAcquireCount(),
		"acquire_wait_time": s.AcquireDuration().String(),
	}
}

// Transaction runs fn in a read committed transaction, committing when fn
// returns nil and rolling back otherwise.
func (db *Database) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (db *Database) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

func (db *Database) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *Database) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// querier is satisfied by both the pool and a transaction so repositories
// can be bound to either.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var (
	_ querier = (*Database)(nil)
	_ querier = (pgx.Tx)(nil)
)

// scanMany collects rows with scanner, closing rows when done
func scanMany[T any](rows pgx.Rows, scanner func(pgx.Rows) (*T, error)) ([]*T, error) {
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		v, err := scanner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Postgres error codes the repositories react to
const (
	pgCheckViolation      = "23514"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func asPgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

func pgErrorCode(err error) string {
	if pgErr := asPgError(err); pgErr != nil {
		return pgErr.Code
	}
	return ""
}

func pgConstraint(err error) string {
	if pgErr := asPgError(err); pgErr != nil {
		return pgErr.ConstraintName
	}
	return ""
}

// storageError converts a driver error into a domain storage error, passing
// domain errors through untouched.
func storageError(op string, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.NewStorageError(op, err)
}
