package types

import (
	"time"

	"github.com/google/uuid"
)

// IDType identifies which record family an export request walks
type IDType string

// IDType constants
const (
	IDTypeInstance   IDType = "INSTANCE"
	IDTypeHoldings   IDType = "HOLDINGS"
	IDTypeAuthority  IDType = "AUTHORITY"
	IDTypeLinkedData IDType = "LINKED_DATA"
)

// ShardStatus is the lifecycle status of an export shard (and, by aggregation, of a job)
type ShardStatus string

// ShardStatus constants
const (
	StatusScheduled           ShardStatus = "SCHEDULED"
	StatusActive              ShardStatus = "ACTIVE"
	StatusCompleted           ShardStatus = "COMPLETED"
	StatusCompletedWithErrors ShardStatus = "COMPLETED_WITH_ERRORS"
	StatusFailed              ShardStatus = "FAILED"
)

// IsTerminal reports whether no further processing happens for the status
func (s ShardStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed
}

// ExportRequest selects the record subset an export job pulls
type ExportRequest struct {
	IDType                  IDType    `json:"idType" validate:"required,oneof=INSTANCE HOLDINGS AUTHORITY LINKED_DATA"`
	JobProfileID            uuid.UUID `json:"jobProfileId" validate:"required"`
	DeletedRecords          bool      `json:"deletedRecords"`
	SuppressedFromDiscovery bool      `json:"suppressedFromDiscovery"`
	LastExport              bool      `json:"lastExport"`
}

// ExportShard is a contiguous id range owned by one job execution.
// Shards partition the id space without overlap; they are created by an external slicing step.
type ExportShard struct {
	ID             uuid.UUID   `json:"id"`
	JobExecutionID uuid.UUID   `json:"job_execution_id"`
	FromID         uuid.UUID   `json:"from_id"`
	ToID           uuid.UUID   `json:"to_id"`
	Status         ShardStatus `json:"status"`
	Exported       int         `json:"exported"`
	Failed         int         `json:"failed"`
	Duplicated     int         `json:"duplicated"`
	OutputPath     string      `json:"output_path,omitempty"`
	Checksum       string      `json:"checksum,omitempty"`
	OutputBytes    int64       `json:"output_bytes,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// JobExecution is one run of an export job
type JobExecution struct {
	ID           uuid.UUID     `json:"id"`
	JobProfileID uuid.UUID     `json:"job_profile_id"`
	Request      ExportRequest `json:"request"`
	Status       ShardStatus   `json:"status"`
	Tenant       string        `json:"tenant"`
	UserID       uuid.UUID     `json:"user_id"`
	Progress     JobProgress   `json:"progress"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// JobProgress is the persisted progress of a job execution
type JobProgress struct {
	Exported   int `json:"exported"`
	Failed     int `json:"failed"`
	Duplicated int `json:"duplicated"`
	Total      int `json:"total"`
}

// RequestContext carries the acting tenant and user through every collaborator call
type RequestContext struct {
	Tenant   string    `json:"tenant" validate:"required"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name,omitempty"` // display name used in audit messages
}

// WithTenant returns a copy of the context acting on another tenant
func (rc RequestContext) WithTenant(tenant string) RequestContext {
	rc.Tenant = tenant
	return rc
}
