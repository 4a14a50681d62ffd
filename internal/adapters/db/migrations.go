// internal/adapters/db/migrations.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// EmbeddedMigrations returns the schema migrations compiled into the binary
func EmbeddedMigrations() fs.FS {
	return embeddedMigrations
}

// MigrationConfig holds migration configuration
type MigrationConfig struct {
	DatabaseURL string
	// SourcePath is a directory of migration files, used unless UseEmbedded
	SourcePath       string
	UseEmbedded      bool
	TableName        string
	SchemaName       string
	ForceDirty       bool
	StatementTimeout time.Duration
}

func (c *MigrationConfig) withDefaults() MigrationConfig {
	out := *c
	if out.TableName == "" {
		out.TableName = "schema_migrations"
	}
	if out.SchemaName == "" {
		out.SchemaName = "public"
	}
	if out.StatementTimeout == 0 {
		out.StatementTimeout = 10 * time.Minute
	}
	return out
}

// Migrator applies the stock ledger schema
type Migrator struct {
	m      *migrate.Migrate
	db     *sql.DB
	config MigrationConfig
	logger *slog.Logger
}

// MigrationStatus is the state of the schema
type MigrationStatus struct {
	CurrentVersion uint               `json:"current_version"`
	IsDirty        bool               `json:"is_dirty"`
	Applied        []AppliedMigration `json:"applied"`
	// Pending is only known for the embedded source
	Pending []uint `json:"pending,omitempty"`
}

// AppliedMigration is a row of the bookkeeping table
type AppliedMigration struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// NewMigrator opens a dedicated connection and prepares the migration source
func NewMigrator(config *MigrationConfig, logger *slog.Logger) (*Migrator, error) {
	if config == nil {
		return nil, fmt.Errorf("migration config is required")
	}
	cfg := config.withDefaults()
	if !cfg.UseEmbedded && cfg.SourcePath == "" {
		return nil, fmt.Errorf("migration source path is required when not using embedded migrations")
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(2)

	m, err := newMigrate(sqlDB, cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Migrator{
		m:      m,
		db:     sqlDB,
		config: cfg,
		logger: logger.With(slog.String("component", "migrator")),
	}, nil
}

func newMigrate(sqlDB *sql.DB, cfg MigrationConfig) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable:  cfg.TableName,
		SchemaName:       cfg.SchemaName,
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	if !cfg.UseEmbedded {
		m, err := migrate.NewWithDatabaseInstance("file://"+cfg.SourcePath, "postgres", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to open migration source %s: %w", cfg.SourcePath, err)
		}
		return m, nil
	}

	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// version reads the current version; an empty schema is version 0
func (m *Migrator) version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return v, dirty, nil
}

// requireClean refuses to move a dirty schema
func (m *Migrator) requireClean() (uint, error) {
	v, dirty, err := m.version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema is dirty at version %d, fix it and run force", v)
	}
	return v, nil
}

// Up applies every pending migration. A dirty schema is forced to its
// recorded version first when ForceDirty is set.
func (m *Migrator) Up(ctx context.Context) error {
	v, dirty, err := m.version()
	if err != nil {
		return err
	}
	if dirty {
		if !m.config.ForceDirty {
			return fmt.Errorf("schema is dirty at version %d, fix it and run force", v)
		}
		m.logger.WarnContext(ctx, "forcing dirty schema", slog.Uint64("version", uint64(v)))
		if err := m.m.Force(int(v)); err != nil {
			return fmt.Errorf("failed to force version %d: %w", v, err)
		}
	}

	return m.apply(ctx, "up", v, m.m.Up)
}

// Down rolls back the latest migration
func (m *Migrator) Down(ctx context.Context) error {
	v, err := m.requireClean()
	if err != nil {
		return err
	}
	return m.apply(ctx, "down", v, func() error { return m.m.Steps(-1) })
}

// DownTo rolls back until target is the current version. It never moves up.
func (m *Migrator) DownTo(ctx context.Context, target uint) error {
	v, err := m.requireClean()
	if err != nil {
		return err
	}
	if v <= target {
		m.logger.InfoContext(ctx, "schema already at or below target",
			slog.Uint64("version", uint64(v)),
			slog.Uint64("target", uint64(target)))
		return nil
	}
	return m.apply(ctx, "down-to", v, func() error { return m.m.Migrate(target) })
}

// Migrate moves to target in whichever direction is needed
func (m *Migrator) Migrate(ctx context.Context, target uint) error {
	v, err := m.requireClean()
	if err != nil {
		return err
	}
	return m.apply(ctx, "goto", v, func() error { return m.m.Migrate(target) })
}

func (m *Migrator) apply(ctx context.Context, op string, from uint, fn func() error) error {
	start := time.Now()
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.InfoContext(ctx, "schema unchanged",
			slog.String("op", op),
			slog.Uint64("version", uint64(from)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate %s from version %d: %w", op, from, err)
	}

	to, _, verr := m.version()
	if verr != nil {
		return verr
	}
	m.logger.InfoContext(ctx, "schema migrated",
		slog.String("op", op),
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Force records version as clean without running anything
func (m *Migrator) Force(ctx context.Context, version int) error {
	m.logger.WarnContext(ctx, "forcing schema version", slog.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Version returns the current version and dirty flag
func (m *Migrator) Version(_ context.Context) (uint, bool, error) {
	return m.version()
}

// Drop removes every table in the schema
func (m *Migrator) Drop(ctx context.Context) error {
	m.logger.WarnContext(ctx, "dropping schema", slog.String("schema", m.config.SchemaName))
	if err := m.m.Drop(); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	return nil
}

// Status reports the current version, the bookkeeping rows and, for the
// embedded source, the versions not yet applied.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	v, dirty, err := m.version()
	if err != nil {
		return nil, err
	}

	applied, err := appliedMigrations(ctx, m.db, m.config.SchemaName, m.config.TableName)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{CurrentVersion: v, IsDirty: dirty, Applied: applied}
	if m.config.UseEmbedded {
		available, err := migrationVersions(embeddedMigrations, "migrations")
		if err != nil {
			return nil, err
		}
		for _, av := range available {
			if av > v {
				status.Pending = append(status.Pending, av)
			}
		}
	}
	return status, nil
}

// appliedMigrations reads the migrate bookkeeping table
func appliedMigrations(ctx context.Context, sqlDB *sql.DB, schema, table string) ([]AppliedMigration, error) {
	rows, err := sqlDB.QueryContext(ctx, fmt.Sprintf(`SELECT version, dirty FROM %s.%s ORDER BY version ASC`, schema, table))
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := []AppliedMigration{}
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Dirty); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied = append(applied, a)
	}
	return applied, rows.Err()
}

// migrationVersions lists the distinct versions of the up files in dir
func migrationVersions(fsys fs.FS, dir string) ([]uint, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	versions := make([]uint, 0, len(files))
	for _, f := range files {
		prefix, _, ok := strings.Cut(path.Base(f), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad migration file name %s: %w", f, err)
		}
		versions = append(versions, uint(v))
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// Close releases the migration source and the connection
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr, m.db.Close())
}

// RunMigrationsWithRetry applies pending migrations, retrying with
// exponential backoff while the database comes up.
func RunMigrationsWithRetry(ctx context.Context, config *MigrationConfig, logger *slog.Logger, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 30 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		migrator, err := NewMigrator(config, logger)
		if err != nil {
			logger.WarnContext(ctx, "migrator unavailable",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return err
		}
		defer func() {
			if cerr := migrator.Close(); cerr != nil {
				logger.WarnContext(ctx, "failed to close migrator", slog.String("error", cerr.Error()))
			}
		}()

		if err := migrator.Up(ctx); err != nil {
			logger.ErrorContext(ctx, "migration failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return err
		}
		return nil
	}

	retries := uint64(maxRetries - 1)
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return fmt.Errorf("migrations failed after %d attempts: %w", attempt, err)
	}
	return nil
}
