package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/config"
	"github.com/jonathan/data-export/internal/db"
	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/export"
	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/pipeline"
	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/tenant"
)

// loadConfig reads the optional config file and layers it over the environment and defaults
func loadConfig(path string) (config.Config, error) {
	var file *config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return config.Config{}, err
		}
		file = loaded
	}
	cfg := config.Resolve(file)
	return cfg, nil
}

// newLogger returns a text logger on w; debug records are kept in verbose mode
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newRuleFactory builds the rule factory over the embedded default catalog
func newRuleFactory() (*rules.Factory, error) {
	catalog, err := rules.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load default rules: %w", err)
	}
	return rules.NewFactory(catalog, rules.DefaultBuilders()), nil
}

// connect opens the database with the configured fetch timeout
func connect(ctx context.Context, cfg config.Config) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%s environment variable or --db-url flag is required", config.EnvDatabaseURL)
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL, db.WithFetchTimeout(cfg.FetchTimeout.Duration))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// newRunner wires the export runner onto the database
func newRunner(database *db.DB, cfg config.Config, logger *slog.Logger, onProgress pipeline.ProgressCallback) (*pipeline.Runner, error) {
	compression, err := output.ParseCompression(cfg.OutputCompression)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	var deletedProfileID uuid.UUID
	if cfg.DeletedJobProfileID != "" {
		deletedProfileID, err = uuid.Parse(cfg.DeletedJobProfileID)
		if err != nil {
			return nil, fmt.Errorf("config error: invalid deleted job profile id: %w", err)
		}
	}

	factory, err := newRuleFactory()
	if err != nil {
		return nil, err
	}

	errs := errorlog.NewLogger(database, logger)
	deps := export.Deps{
		Pager:     database,
		Tenants:   tenant.NewResolver(database, database, errs, logger),
		Encoder:   marc.NewEncoder(),
		Sinks:     export.FileSinks(output.NewFactory(output.Options{Dir: cfg.OutputDir, Compression: compression})),
		BatchSize: cfg.BatchSize,
		Logger:    logger,
	}

	return pipeline.NewRunner(database, export.NewRegistry(deps), factory, errs, pipeline.RunOptions{
		Workers:          cfg.Workers,
		ProgressStep:     cfg.ProgressStep,
		DeletedProfileID: deletedProfileID,
		OnProgress:       onProgress,
		Logger:           logger,
	}), nil
}

// stdout is swapped by tests
var stdout io.Writer = os.Stdout
