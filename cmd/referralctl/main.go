package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"referral-engine/internal/logging"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "referralctl",
		Short:   "Maintenance tooling for the referral commission engine",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				return logging.Init(false)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sqlCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(fixCodesCmd())
	rootCmd.AddCommand(regenerateCmd())
	rootCmd.AddCommand(releaseCmd())
	rootCmd.AddCommand(grantAdminCmd())
	rootCmd.AddCommand(tokenCmd())

	err := rootCmd.ExecuteContext(context.Background())
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
