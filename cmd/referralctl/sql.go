package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"referral-engine/internal/config"
)

// sqlCmd applies a hand-written migration file outside gorm
func sqlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sql [file]",
		Short: "Execute a SQL migration file against the database",
		Long: `Executes a raw SQL file in a single transaction.

Examples:
  referralctl sql migrations/001_referral_constraints.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}

			migrationSQL, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read migration file: %w", err)
			}

			db, err := sql.Open("postgres", cfg.GetDSN())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}

			tx, err := db.BeginTx(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(cmd.Context(), string(migrationSQL)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to execute %s: %w", args[0], err)
			}
			if err := tx.Commit(); err != nil {
				return err
			}

			fmt.Printf("✅ Applied %s\n", args[0])
			return nil
		},
	}
}
