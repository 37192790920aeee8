// Package main provides the entry point for the MARC data export agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "export_agent",
	Short: "MARC data export agent",
	Long:  "Export agent runs data export jobs: it converts inventory and stored source records into MARC21 files, one file per shard of a job.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
