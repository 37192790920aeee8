// Package types provides type definitions for structured data used throughout the data-export system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RecordType identifies a family of records a mapping profile can draw from
type RecordType string

// RecordType constants
const (
	RecordTypeInstance  RecordType = "INSTANCE"
	RecordTypeHoldings  RecordType = "HOLDINGS"
	RecordTypeItem      RecordType = "ITEM"
	RecordTypeSRS       RecordType = "SRS"
	RecordTypeAuthority RecordType = "AUTHORITY"
)

// OutputFormatMARC is the only output format mapping profiles support
const OutputFormatMARC = "MARC"

// MappingProfile describes how source records map onto MARC fields.
// A profile is loaded once per job and treated as read-only afterwards.
type MappingProfile struct {
	ID                uuid.UUID        `json:"id" validate:"required"`
	Name              string           `json:"name" validate:"required,min=1"`
	Default           bool             `json:"default"`
	RecordTypes       []RecordType     `json:"recordTypes" validate:"required,min=1,dive,oneof=INSTANCE HOLDINGS ITEM SRS AUTHORITY"`
	OutputFormat      string           `json:"outputFormat" validate:"required,eq=MARC"`
	Transformations   []Transformation `json:"transformations,omitempty" validate:"dive"`
	FieldsSuppression string           `json:"fieldsSuppression,omitempty"`
	Suppress999ff     bool             `json:"suppress999ff"`
}

// Transformation overrides or requests a single mapped field
type Transformation struct {
	FieldID        string            `json:"fieldId" validate:"required"`
	Path           string            `json:"path" validate:"required"`
	Transformation string            `json:"transformation"` // e.g. "900ff$a"; empty requests the built-in default
	RecordType     RecordType        `json:"recordType" validate:"required,oneof=INSTANCE HOLDINGS ITEM"`
	Enabled        bool              `json:"enabled"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate validates the MappingProfile using the validator.
func (p *MappingProfile) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}

// HasRecordType reports whether the profile requests the given record type
func (p *MappingProfile) HasRecordType(rt RecordType) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.RecordTypes, rt)
}

// HasCustomTransformations reports whether the profile carries at least one enabled
// transformation of the given record type with an explicit target spec.
func (p *MappingProfile) HasCustomTransformations(rt RecordType) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Transformations {
		if t.Enabled && t.RecordType == rt && !t.IsBlank() {
			return true
		}
	}
	return false
}

// IsBlank reports whether the transformation requests the built-in default mapping
func (t Transformation) IsBlank() bool {
	return strings.TrimSpace(t.Transformation) == ""
}

// SuppressedTags returns the trimmed, non-empty tags listed in FieldsSuppression
func (p *MappingProfile) SuppressedTags() []string {
	if p == nil || p.FieldsSuppression == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(p.FieldsSuppression, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
