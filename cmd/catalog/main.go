/*
main.go - Catalog migration CLI

PURPOSE:
  Operator-facing command-line tool for running and reverting the legacy
  display-array migration. The JSON report goes to stdout so it can be
  piped into jq or archived; structured progress logs go to stderr.

COMMANDS:
  migrate   Run the migration engine (dry-run by default)
  rollback  Revert coverages to their legacy display arrays

EXIT CODES:
  0  Full success
  1  Run completed but one or more coverages failed
  2  Fatal error (store unreachable, bad flags, aborted run)

EXAMPLES:
  # Plan a migration without writing anything
  catalog migrate --db=./catalog.db --mode=dry-run

  # Migrate one product with 8 workers
  catalog migrate --db=./catalog.db --mode=live --product=prod-cgl --concurrency=8

  # Migrate with per-coverage type overrides
  catalog migrate --db=./catalog.db --mode=live --config=./migration.json

  # Roll back one coverage (live rollback requires --confirm)
  catalog rollback --db=./catalog.db --product=prod-cgl --coverage=cov-flood --confirm

SEE ALSO:
  - migration/engine.go: The engine these commands drive
  - config/config.go: The --config file format
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/catalog-engine/catalog"
	"github.com/warp/catalog-engine/config"
	"github.com/warp/catalog-engine/migration"
	"github.com/warp/catalog-engine/store/sqlite"
)

const (
	exitOK    = 0
	exitDirty = 1
	exitFatal = 2
)

// errDirty flows up to main so os.Exit runs after the command's defers
// (store close, logger sync) instead of cutting them off mid-stack.
var errDirty = errors.New("one or more coverages failed")

func main() {
	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Coverage catalog migration tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCommand())
	root.AddCommand(rollbackCommand())

	if err := root.Execute(); err != nil {
		if errors.Is(err, errDirty) {
			// The report already went to stdout; the dirty exit code is
			// the whole message.
			os.Exit(exitDirty)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

// =============================================================================
// MIGRATE
// =============================================================================

func migrateCommand() *cobra.Command {
	var (
		dbPath      string
		mode        string
		product     string
		concurrency int
		configPath  string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy display arrays to structured records",
		Long: `Migrate legacy limit and deductible display arrays to structured
child records.

Dry-run mode executes the exact same planning code as a live run and
reports what would be written, without persisting anything. Coverages
that already migrated are skipped, so re-running after a partial
failure only touches the remainder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(dbPath, mode, product, concurrency, configPath)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "catalog.db", "SQLite database path")
	cmd.Flags().StringVar(&mode, "mode", "dry-run", "dry-run or live")
	cmd.Flags().StringVar(&product, "product", "", "restrict the run to one product")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max simultaneous coverage batches (0 = default)")
	cmd.Flags().StringVar(&configPath, "config", "", "migration config JSON (defaults and per-coverage type overrides)")

	return cmd
}

func runMigrate(dbPath, mode, product string, concurrency int, configPath string) error {
	opts := migration.Options{
		Product:     catalog.ProductID(product),
		Concurrency: concurrency,
	}

	switch mode {
	case string(migration.ModeDryRun):
		opts.Mode = migration.ModeDryRun
	case string(migration.ModeLive):
		opts.Mode = migration.ModeLive
	default:
		return fmt.Errorf("invalid --mode %q (want dry-run or live)", mode)
	}

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		opts.DefaultLimitType = cfg.DefaultLimitType
		opts.DefaultDeductibleType = cfg.DefaultDeductibleType
		opts.Overrides = cfg.Overrides
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	logger := stderrLogger()
	defer logger.Sync()

	// SIGINT stops scheduling new coverages; in-flight batches finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := migration.New(store, logger, opts)
	report, err := engine.Run(ctx)
	if err != nil {
		if report != nil {
			emitReport(report)
		}
		return fmt.Errorf("migration aborted: %w", err)
	}

	emitReport(report)

	if report.CoveragesFailed > 0 {
		return errDirty
	}
	return nil
}

// =============================================================================
// ROLLBACK
// =============================================================================

func rollbackCommand() *cobra.Command {
	var (
		dbPath   string
		product  string
		coverage string
		dryRun   bool
		confirm  bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert migrated coverages to their legacy display arrays",
		Long: `Delete structured child records and clear migration markers so
reads fall back to the untouched legacy display arrays.

Rollback never modifies the legacy arrays themselves. A live rollback
deletes records and requires --confirm; --dry-run reports what would
be deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(dbPath, product, coverage, dryRun, confirm)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "catalog.db", "SQLite database path")
	cmd.Flags().StringVar(&product, "product", "", "product to roll back (required)")
	cmd.Flags().StringVar(&coverage, "coverage", "", "single coverage to roll back (default: whole product)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required for live rollback")
	cmd.MarkFlagRequired("product")

	return cmd
}

func runRollback(dbPath, product, coverage string, dryRun, confirm bool) error {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	logger := stderrLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := migration.New(store, logger, migration.Options{})
	opts := migration.RollbackOptions{DryRun: dryRun, Confirm: confirm}

	var report *migration.RollbackReport
	if coverage != "" {
		report, err = engine.Rollback(ctx, catalog.ProductID(product), catalog.CoverageID(coverage), opts)
	} else {
		report, err = engine.RollbackProduct(ctx, catalog.ProductID(product), opts)
	}
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	emitReport(report)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func stderrLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func emitReport(report any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding report: %v\n", err)
	}
}
