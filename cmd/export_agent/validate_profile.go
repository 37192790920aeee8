package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/data-export/internal/schemas"
)

var validateProfileCmd = &cobra.Command{
	Use:   "validate-profile <file>",
	Short: "Validate a mapping profile file",
	Long:  `Validates a mapping profile document (JSON, comments allowed) against the mapping profile schema.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateProfile,
}

func init() {
	rootCmd.AddCommand(validateProfileCmd)
}

func runValidateProfile(_ *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	profile, err := schemas.ParseMappingProfile(data)
	if err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			_, _ = fmt.Fprintf(stdout, "Validation failed for %s:\n", path)
			for _, fe := range ve.Errors {
				_, _ = fmt.Fprintf(stdout, "  - %s: %s\n", fe.Field, fe.Message)
			}
			return fmt.Errorf("mapping profile is invalid")
		}
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Validation passed: %s (%d transformations)\n", path, len(profile.Transformations))
	return nil
}
