package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/data-export/internal/observability"
	"github.com/jonathan/data-export/internal/schemas"
	"github.com/jonathan/data-export/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the rules a mapping profile resolves to",
	Long: `Resolves the MARC field rules of a mapping profile file and prints them as JSON.

Without --profile the default rules are printed.`,
	RunE: runRules,
}

var (
	rulesProfilePath string
	rulesSummary     bool
)

func init() {
	rulesCmd.Flags().StringVarP(&rulesProfilePath, "profile", "p", "", "Path to mapping profile JSON file")
	rulesCmd.Flags().BoolVar(&rulesSummary, "summary", false, "Print a short summary instead of JSON")
	rootCmd.AddCommand(rulesCmd)
}

func runRules(_ *cobra.Command, _ []string) error {
	var profile *types.MappingProfile
	if rulesProfilePath != "" {
		loaded, err := schemas.LoadMappingProfile(rulesProfilePath)
		if err != nil {
			return err
		}
		profile = loaded
	}

	factory, err := newRuleFactory()
	if err != nil {
		return err
	}
	rs, err := factory.GetRules(profile)
	if err != nil {
		return fmt.Errorf("failed to resolve rules: %w", err)
	}

	if rulesSummary {
		observability.NewPrinter(stdout).PrintRules(rs)
		return nil
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}
	return nil
}
