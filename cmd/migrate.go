/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/logger"
	"github.com/spf13/cobra"
)

// migrateCmd applies the schema. It is safe to run again: applied steps
// are skipped. A failing step is reported and the run goes on; only a
// database that cannot be opened makes the command fail.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMigrate(cmd); err != nil {
			fail(cmd, err)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	database, err := db.NewSQLiteDB(cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	ctx := cmd.Context()
	if err := database.Ping(ctx); err != nil {
		return err
	}

	report, err := database.Migrate(ctx)
	out := cmd.OutOrStdout()
	printReport(out, report)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		return nil
	}
	if failed := len(report.Failed()); failed > 0 {
		fmt.Fprintf(out, "%d of %d migrations failed\n", failed, len(report.Steps))
		return nil
	}
	fmt.Fprintln(out, "Database is up to date")
	return nil
}

func printReport(out io.Writer, report db.MigrationReport) {
	for _, step := range report.Steps {
		switch {
		case step.Err != nil:
			fmt.Fprintf(out, "✗ %s: %v\n", step.Version, step.Err)
		case step.Skipped:
			fmt.Fprintf(out, "✓ %s (already applied)\n", step.Version)
		default:
			fmt.Fprintf(out, "✓ %s\n", step.Version)
		}
	}
}
