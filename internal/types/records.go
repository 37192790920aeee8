package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordKind identifies the storage family a candidate record was read from
type RecordKind string

// RecordKind constants
const (
	KindInstance      RecordKind = "instance"       // inventory instance JSON
	KindHoldings      RecordKind = "holdings"       // inventory holdings JSON
	KindItem          RecordKind = "item"           // inventory item JSON
	KindMarcBib       RecordKind = "marc_bib"       // stored MARC bibliographic record
	KindMarcHoldings  RecordKind = "marc_holdings"  // stored MARC holdings record
	KindMarcAuthority RecordKind = "marc_authority" // stored MARC authority record
	KindLinkedData    RecordKind = "linked_data"    // stored linked-data resource
)

// RecordState is the lifecycle state of a stored record generation
type RecordState string

// RecordState constants
const (
	StateActual  RecordState = "ACTUAL"
	StateDeleted RecordState = "DELETED"
)

// CandidateRecord is one stored or generated representation of a logical entity.
// Several candidates may share an ExternalID (different generations, or copies held by
// different tenants); at most one of them is canonical per job.
type CandidateRecord struct {
	ID         uuid.UUID       `json:"id"`
	ExternalID uuid.UUID       `json:"external_id"`
	ParentID   *uuid.UUID      `json:"parent_id,omitempty"`
	HRID       string          `json:"hrid,omitempty"`
	Tenant     string          `json:"tenant"`
	Kind       RecordKind      `json:"kind"`
	Content    json.RawMessage `json:"content"`
	State      RecordState     `json:"state"`
	Generation int             `json:"generation"`
	Deleted    bool            `json:"deleted"`
	Suppressed bool            `json:"suppressed"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// IsDeleted reports whether the candidate represents a deletion
func (r CandidateRecord) IsDeleted() bool {
	return r.State == StateDeleted
}

// ReferenceData holds lookup tables used by translation functions while encoding.
// Keys are reference record ids; values are the reference record's JSON fields.
type ReferenceData struct {
	Locations            map[string]map[string]string `json:"locations,omitempty"`
	MaterialTypes        map[string]map[string]string `json:"material_types,omitempty"`
	InstanceTypes        map[string]map[string]string `json:"instance_types,omitempty"`
	ContributorNameTypes map[string]map[string]string `json:"contributor_name_types,omitempty"`
}

// Lookup returns the named field of a reference record from the given table
func (r *ReferenceData) Lookup(table, id, field string) (string, bool) {
	if r == nil {
		return "", false
	}
	var entries map[string]map[string]string
	switch table {
	case "locations":
		entries = r.Locations
	case "material_types":
		entries = r.MaterialTypes
	case "instance_types":
		entries = r.InstanceTypes
	case "contributor_name_types":
		entries = r.ContributorNameTypes
	}
	entry, ok := entries[id]
	if !ok {
		return "", false
	}
	value, ok := entry[field]
	return value, ok
}
