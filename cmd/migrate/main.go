// cmd/migrate/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/ammerola/stockflow/internal/adapters/db"
	"github.com/ammerola/stockflow/internal/pkg/config"
	"github.com/ammerola/stockflow/internal/pkg/logger"
)

const usage = `usage: migrate [flags] <command> [arg]

commands:
  up              apply all pending migrations
  down            roll back the last migration
  down-to <v>     roll back to version v
  goto <v>        migrate up or down to version v
  force <v>       set the version without running migrations
  version         print the current version
  status          print applied migrations as JSON
  drop            drop everything (requires -yes)
`

func main() {
	var (
		sourcePath = flag.String("path", "", "Read migrations from this directory instead of the embedded set")
		forceDirty = flag.Bool("force-dirty", false, "Clear a dirty version before running up")
		yes        = flag.Bool("yes", false, "Confirm destructive commands")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	slogger := logger.SetupLogger(logger.Options{Level: *logLevel, Format: "text", Service: "stockflow-migrate"})

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	migrator, err := db.NewMigrator(&db.MigrationConfig{
		DatabaseURL: cfg.GetDatabaseURL(),
		SourcePath:  *sourcePath,
		UseEmbedded: *sourcePath == "",
		ForceDirty:  *forceDirty,
	}, slogger)
	if err != nil {
		slogger.Error("failed to create migrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = run(context.Background(), migrator, flag.Args(), *yes)
	if cerr := migrator.Close(); cerr != nil {
		slogger.Warn("failed to close migrator", slog.String("error", cerr.Error()))
	}
	if err != nil {
		slogger.Error("migration command failed",
			slog.String("command", flag.Arg(0)),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, m *db.Migrator, args []string, yes bool) error {
	switch args[0] {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "down-to", "goto":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if args[0] == "goto" {
			return m.Migrate(ctx, uint(v))
		}
		return m.DownTo(ctx, uint(v))
	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		return m.Force(ctx, v)
	case "version":
		v, dirty, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d dirty=%t\n", v, dirty)
		return nil
	case "status":
		status, err := m.Status(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "drop":
		if !yes {
			return fmt.Errorf("drop removes all tables, rerun with -yes")
		}
		return m.Drop(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a version", args[0])
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[1])
	}
	return v, nil
}
