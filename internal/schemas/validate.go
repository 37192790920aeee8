// Package schemas validates mapping profile documents against their JSON Schema.
package schemas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/data-export/internal/types"
)

//go:embed mapping_profile.schema.json
var mappingProfileSchema string

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema or the document
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// MappingProfileSchema returns the embedded mapping profile schema
func MappingProfileSchema() string {
	return mappingProfileSchema
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}

	if result.Valid() {
		return nil
	}

	// Build structured error
	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

// ValidateMappingProfile validates a mapping profile document. Comments and trailing
// commas are accepted.
func ValidateMappingProfile(data []byte) error {
	return ValidateJSONString(mappingProfileSchema, string(jsonc.ToJSON(data)))
}

// ParseMappingProfile validates a mapping profile document and decodes it
func ParseMappingProfile(data []byte) (*types.MappingProfile, error) {
	stripped := jsonc.ToJSON(data)
	if err := ValidateJSONString(mappingProfileSchema, string(stripped)); err != nil {
		return nil, err
	}

	var profile types.MappingProfile
	if err := json.Unmarshal(stripped, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode mapping profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping profile: %w", err)
	}
	return &profile, nil
}

// LoadMappingProfile reads, validates and decodes a mapping profile file
func LoadMappingProfile(path string) (*types.MappingProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping profile %s: %w", path, err)
	}
	profile, err := ParseMappingProfile(data)
	if err != nil {
		return nil, fmt.Errorf("mapping profile %s: %w", path, err)
	}
	return profile, nil
}
