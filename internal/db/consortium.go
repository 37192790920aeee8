package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/data-export/internal/types"
)

// -----------------------------------------------------------------------------
// Consortium directory
// -----------------------------------------------------------------------------

// CentralTenantOf returns the central tenant of the tenant's consortium, or "" for a
// standalone tenant
func (db *DB) CentralTenantOf(ctx context.Context, tenant string) (string, error) {
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	var central string
	err := db.pool.QueryRow(ctx,
		`SELECT central_tenant FROM consortium_tenants WHERE tenant = $1`,
		tenant,
	).Scan(&central)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get central tenant of %s: %w", tenant, err)
	}
	return central, nil
}

// OwningTenants returns the member tenant that holds each record. Only members of the
// consortium of rc.Tenant are considered; unknown ids are omitted.
func (db *DB) OwningTenants(ctx context.Context, rc types.RequestContext, kind types.RecordKind, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	owners := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT ON (r.external_id) r.external_id, r.tenant
		 FROM records r
		 JOIN consortium_tenants c ON c.tenant = r.tenant
		 WHERE c.central_tenant = $1 AND r.tenant <> $1 AND r.kind = $2 AND r.external_id = ANY($3)
		 ORDER BY r.external_id, r.tenant`,
		rc.Tenant, string(kind), ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up owners of %s records: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     uuid.UUID
			tenant string
		)
		if err := rows.Scan(&id, &tenant); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners[id] = tenant
	}
	return owners, rows.Err()
}

// AffiliatedTenants lists the tenants the acting user is affiliated with
func (db *DB) AffiliatedTenants(ctx context.Context, rc types.RequestContext) ([]string, error) {
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	rows, err := db.pool.Query(ctx,
		`SELECT tenant FROM user_affiliations WHERE user_id = $1 ORDER BY tenant`,
		rc.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list affiliations of %s: %w", rc.UserID, err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("failed to scan affiliation: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// HasViewPermission reports whether the acting user may view records of the kind in rc.Tenant
func (db *DB) HasViewPermission(ctx context.Context, rc types.RequestContext, kind types.RecordKind) (bool, error) {
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	var ok bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_permissions WHERE user_id = $1 AND tenant = $2 AND kind = $3)`,
		rc.UserID, rc.Tenant, permissionKind(kind),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check %s permission in %s: %w", kind, rc.Tenant, err)
	}
	return ok, nil
}

// permissionKind maps stored record kinds onto the inventory kind their permission covers
func permissionKind(kind types.RecordKind) string {
	switch kind {
	case types.KindMarcBib:
		return string(types.KindInstance)
	case types.KindMarcHoldings:
		return string(types.KindHoldings)
	default:
		return string(kind)
	}
}
