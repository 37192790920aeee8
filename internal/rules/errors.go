package rules

import "fmt"

// BuildError represents an invalid transformation configuration that prevents rule assembly.
// It is not retried: the current export step for the profile is aborted.
type BuildError struct {
	FieldID string
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rule build error for field %s: %s: %v", e.FieldID, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule build error for field %s: %s", e.FieldID, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// CatalogError represents a malformed built-in default rule catalog
type CatalogError struct {
	Source  string
	Message string
	Cause   error
}

func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("default rule catalog %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("default rule catalog %s: %s", e.Source, e.Message)
}

func (e *CatalogError) Unwrap() error {
	return e.Cause
}
