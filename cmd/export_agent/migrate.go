package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Creates the export tables and indexes if they do not exist. Safe to run repeatedly.`,
	RunE:  runMigrate,
}

var (
	migrateConfigPath  string
	migrateDatabaseURL string
)

func init() {
	migrateCmd.Flags().StringVar(&migrateConfigPath, "config", "", "Path to config.json file")
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(migrateConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = migrateDatabaseURL
	}

	database, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, "Schema is up to date.")
	return nil
}
