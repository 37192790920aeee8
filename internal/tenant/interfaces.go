// Package tenant locates and fetches records across the tenants of a consortium.
package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/types"
)

// RecordStore reads records of the tenant named by the request context
type RecordStore interface {
	FindByExternalIDs(ctx context.Context, rc types.RequestContext, kind types.RecordKind, ids []uuid.UUID) ([]types.CandidateRecord, error)
	FindByParentIDs(ctx context.Context, rc types.RequestContext, kind types.RecordKind, parentIDs []uuid.UUID) ([]types.CandidateRecord, error)
}

// Directory answers consortium topology and access questions
type Directory interface {
	// CentralTenantOf returns the central tenant of the tenant's consortium, or "" when
	// the tenant is not a consortium member
	CentralTenantOf(ctx context.Context, tenant string) (string, error)
	// OwningTenants returns the tenant that owns each record; unknown ids are omitted
	OwningTenants(ctx context.Context, rc types.RequestContext, kind types.RecordKind, ids []uuid.UUID) (map[uuid.UUID]string, error)
	// AffiliatedTenants lists the tenants the acting user is affiliated with
	AffiliatedTenants(ctx context.Context, rc types.RequestContext) ([]string, error)
	// HasViewPermission reports whether the acting user may view records of the kind in rc.Tenant
	HasViewPermission(ctx context.Context, rc types.RequestContext, kind types.RecordKind) (bool, error)
}

// ErrorLog receives the audit entries the resolver emits
type ErrorLog interface {
	LogGeneral(ctx context.Context, jobID uuid.UUID, code errorlog.Code, values ...string)
}
