package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/data-export/internal/observability"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List the error log of a job execution",
	RunE:  runErrors,
}

var (
	errorsConfigPath  string
	errorsDatabaseURL string
	errorsJobID       string
	errorsJSON        bool
)

func init() {
	errorsCmd.Flags().StringVar(&errorsConfigPath, "config", "", "Path to config.json file")
	errorsCmd.Flags().StringVar(&errorsDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	errorsCmd.Flags().StringVarP(&errorsJobID, "job-id", "j", "", "Job execution id (required)")
	errorsCmd.Flags().BoolVar(&errorsJSON, "json", false, "Print entries as JSON")
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	if errorsJobID == "" {
		return fmt.Errorf("--job-id is required")
	}
	jobID, err := uuid.Parse(errorsJobID)
	if err != nil {
		return fmt.Errorf("invalid job id format: %w", err)
	}

	cfg, err := loadConfig(errorsConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = errorsDatabaseURL
	}

	database, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	entries, err := database.ListErrorLogs(ctx, jobID)
	if err != nil {
		return err
	}

	if errorsJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(stdout, "No errors recorded for job %s.\n", jobID)
		return nil
	}
	observability.NewPrinter(stdout).PrintErrorLogs(entries)
	return nil
}
