package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/data-export/internal/config"
	"github.com/jonathan/data-export/internal/observability"
	"github.com/jonathan/data-export/internal/pipeline"
	"github.com/jonathan/data-export/internal/types"
)

var exportCommand = &cobra.Command{
	Use:   "export",
	Short: "Run an export job execution",
	Long: `Runs every unfinished shard of a job execution and records the job's final status.

Configuration can be loaded from a JSON file using --config. Environment variables fill
what the file leaves empty, and command-line flags override both. An interrupt stops new
shards from starting; shards already running finish and are recorded.`,
	RunE: runExportCmd,
}

var (
	exportConfigPath  string
	exportJobID       string
	exportDatabaseURL string
	exportWorkers     int
	exportBatchSize   int
	exportOutputDir   string
	exportCompression string
	exportVerbose     bool
)

func init() {
	// Config file flag (processed first)
	exportCommand.Flags().StringVar(&exportConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	exportCommand.Flags().StringVarP(&exportJobID, "job-id", "j", "", "Job execution id to run (required)")
	exportCommand.Flags().StringVar(&exportDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	exportCommand.Flags().IntVarP(&exportWorkers, "workers", "w", 0, "Shards exported concurrently")
	exportCommand.Flags().IntVar(&exportBatchSize, "batch-size", 0, "Record ids read per page")
	exportCommand.Flags().StringVarP(&exportOutputDir, "output-dir", "o", "", "Directory shard files are written to")
	exportCommand.Flags().StringVar(&exportCompression, "compression", "", "Shard file compression: none, zstd or lz4")
	exportCommand.Flags().BoolVarP(&exportVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(exportCommand)
}

// applyExportFlags overrides config values with flags that were explicitly set
func applyExportFlags(cmd *cobra.Command, cfg config.Config) config.Config {
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = exportDatabaseURL
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = exportWorkers
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = exportBatchSize
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = exportOutputDir
	}
	if cmd.Flags().Changed("compression") {
		cfg.OutputCompression = exportCompression
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = exportVerbose
	}
	return cfg
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	if exportJobID == "" {
		return fmt.Errorf("--job-id is required")
	}
	jobID, err := uuid.Parse(exportJobID)
	if err != nil {
		return fmt.Errorf("invalid job id format: %w", err)
	}

	cfg, err := loadConfig(exportConfigPath)
	if err != nil {
		return err
	}
	cfg = applyExportFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stderr, cfg.Verbose)
	printer := observability.NewPrinter(stdout)

	database, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	var onProgress pipeline.ProgressCallback
	if cfg.Verbose {
		onProgress = func(ev pipeline.ProgressEvent) {
			printer.PrintShard(ev.Shard, ev.Done, ev.Scheduled)
		}
	}

	runner, err := newRunner(database, cfg, logger, onProgress)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, jobID)
	if err != nil {
		return err
	}

	printer.PrintJobSummary(result.Execution, result.Shards)
	if cfg.Verbose {
		entries, err := database.ListErrorLogs(context.WithoutCancel(ctx), jobID)
		if err != nil {
			logger.Warn("failed to list error logs", "job_id", jobID, "error", err)
		} else {
			printer.PrintErrorLogs(entries)
		}
	}

	if result.Cancelled {
		return fmt.Errorf("job %s interrupted before all shards ran", jobID)
	}
	if result.Status == types.StatusFailed {
		return fmt.Errorf("job %s failed", jobID)
	}
	return nil
}
