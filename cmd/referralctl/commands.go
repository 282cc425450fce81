package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"referral-engine/internal/auth"
	"referral-engine/internal/config"
	"referral-engine/internal/database"
	"referral-engine/internal/repository"
	"referral-engine/internal/services"
)

func openDB() (*gorm.DB, *config.Config, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), database.Config())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the engine's tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			fmt.Println("✅ Migrations applied")
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var snapshot bool
	var xlsxPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan the referral network for integrity problems",
		Long: `Runs every integrity scan: missing, duplicate and malformed codes,
referrer links that resolve to nobody, and chain depth analytics.

Examples:
  referralctl audit
  referralctl audit --snapshot
  referralctl audit --xlsx audit.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			integrity := services.NewIntegrityService(repository.NewRepository(db))

			if snapshot {
				saved, err := integrity.SnapshotAudit(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(saved)
			}

			report, err := integrity.RunAudit(cmd.Context())
			if err != nil {
				return err
			}
			if xlsxPath != "" {
				data, err := services.ExportAuditWorkbook(report)
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", xlsxPath, err)
				}
				fmt.Fprintf(os.Stderr, "Workbook written to %s\n", xlsxPath)
			}
			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "store the summary in integrity_snapshots")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also export the report as an XLSX workbook")
	return cmd
}

func fixCodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-codes",
		Short: "Generate referral codes for accounts that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			results, err := services.NewIntegrityService(repository.NewRepository(db)).FixMissingCodes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
}

func regenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate [account-id...]",
		Short: "Replace the referral codes of the given accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseUint(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid account id %q", a)
				}
				ids = append(ids, uint(id))
			}

			db, _, err := openDB()
			if err != nil {
				return err
			}
			results, err := services.NewIntegrityService(repository.NewRepository(db)).RegenerateCodes(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
}

func releaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Release commissions whose hold period has ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			payouts := services.NewPayoutService(repository.NewRepository(db), cfg.Referral.MinimumPayout)
			released, err := payouts.ReleaseMaturedCommissions(cmd.Context(), nil)
			if err != nil {
				return err
			}
			fmt.Printf("Released %d commission(s)\n", released)
			return nil
		},
	}
}

func grantAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant-admin [account-id] [role]",
		Short: "Promote an account to SUPER_ADMIN, OPERATOR or BILLING",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}

			db, _, err := openDB()
			if err != nil {
				return err
			}
			admin, err := services.NewAdminService(repository.NewRepository(db)).PromoteAccount(cmd.Context(), uint(id), args[1], 0)
			if err != nil {
				return err
			}
			return printJSON(admin)
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [account-id] [email]",
		Short: "Mint a bearer token for a service account, e.g. the billing integration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}

			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			if cfg.App.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to mint tokens")
			}
			auth.InitJWT(cfg.App.JWTSecret)

			token, err := auth.GenerateToken(uint(id), args[1], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
