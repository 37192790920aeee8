package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names
const (
	EnvDatabaseURL         = "DATABASE_URL"
	EnvBatchSize           = "EXPORT_BATCH_SIZE"
	EnvWorkers             = "EXPORT_WORKERS"
	EnvProgressStep        = "PROGRESS_STEP"
	EnvOutputDir           = "OUTPUT_DIR"
	EnvOutputCompression   = "OUTPUT_COMPRESSION"
	EnvDeletedJobProfileID = "DELETED_JOB_PROFILE_ID"
	EnvFetchTimeout        = "FETCH_TIMEOUT"
)

// FromEnv reads the configuration from environment variables. Unset or unparsable
// variables leave their field empty so defaults apply after merging.
func FromEnv() Config {
	return Config{
		DatabaseURL:         getEnvString(EnvDatabaseURL, ""),
		BatchSize:           getEnvInt(EnvBatchSize, 0),
		Workers:             getEnvInt(EnvWorkers, 0),
		ProgressStep:        getEnvInt(EnvProgressStep, 0),
		FetchTimeout:        Duration{getEnvDuration(EnvFetchTimeout, 0)},
		OutputDir:           getEnvString(EnvOutputDir, ""),
		OutputCompression:   getEnvString(EnvOutputCompression, ""),
		DeletedJobProfileID: getEnvString(EnvDeletedJobProfileID, ""),
	}
}

// Resolve layers a config file (may be nil) over the environment and the defaults
func Resolve(file *Config) Config {
	env := FromEnv()
	merged := env.MergeWithDefaults(Defaults())
	if file == nil {
		return merged
	}
	return file.MergeWithDefaults(merged)
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
