package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/financeflow/backend/src/app"
	"github.com/financeflow/backend/src/config"
	"github.com/financeflow/backend/src/database"
	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/security"
)

// NewRootCommand creates the operator CLI with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "financeflowctl",
		Short: "Operate the FinanceFlow backend",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newPurgeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}

// openDB loads configuration and opens the migrated database.
func openDB() (*sql.DB, error) {
	config.LoadConfig()
	logger.InitLoggerWithWriter(os.Stderr, config.Cfg.LogLevel)

	db, err := database.Open(config.Cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newSyncCommand() *cobra.Command {
	var userID string
	var provider string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a user's connected providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := models.ParseProviderFilter(provider)
			if err != nil {
				return err
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			application, err := app.Build(config.Cfg, db)
			if err != nil {
				return err
			}

			report, err := application.Sync.Sync(cmd.Context(), userID, filter)
			if err != nil {
				return fmt.Errorf("sync %s: %w", filter.Name, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.AllFailed() {
				return errors.New("every connected provider failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&provider, "provider", "all", "all, aggregator, processor or a provider name")

	return cmd
}

func newPurgeCommand() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "purge-integrations",
		Short: "Delete integrations deactivated longer ago than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			application, err := app.Build(config.Cfg, db)
			if err != nil {
				return err
			}

			if retention <= 0 {
				retention = config.Cfg.IntegrationRetention
			}
			n, err := application.Connect.PurgeInactive(cmd.Context(), retention)
			if err != nil {
				return fmt.Errorf("purge integrations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d integration(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "retention period (default INTEGRATION_RETENTION)")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func newTokenCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			token, err := security.NewAuthService(config.Cfg.JWTSecret).GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
