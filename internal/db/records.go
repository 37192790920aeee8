package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/data-export/internal/slicing"
	"github.com/jonathan/data-export/internal/types"
)

const recordColumns = `id, external_id, parent_id, hrid, tenant, kind, content, state, generation, deleted, suppressed, updated_at`

// FindByExternalIDs returns every stored generation of the records with the given
// external ids in the tenant of rc
func (db *DB) FindByExternalIDs(ctx context.Context, rc types.RequestContext, kind types.RecordKind, ids []uuid.UUID) ([]types.CandidateRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	rows, err := db.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM records
		 WHERE tenant = $1 AND kind = $2 AND external_id = ANY($3)
		 ORDER BY external_id, generation`,
		rc.Tenant, string(kind), ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s records in %s: %w", kind, rc.Tenant, err)
	}
	return scanRecords(rows)
}

// FindByParentIDs returns the records whose parent is one of parentIDs in the tenant of rc
func (db *DB) FindByParentIDs(ctx context.Context, rc types.RequestContext, kind types.RecordKind, parentIDs []uuid.UUID) ([]types.CandidateRecord, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	rows, err := db.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM records
		 WHERE tenant = $1 AND kind = $2 AND parent_id = ANY($3)
		 ORDER BY parent_id, external_id`,
		rc.Tenant, string(kind), parentIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s children in %s: %w", kind, rc.Tenant, err)
	}
	return scanRecords(rows)
}

// NextIDs returns up to limit distinct external ids of the query's range that sort after
// the cursor
func (db *DB) NextIDs(ctx context.Context, q slicing.IDQuery, after *uuid.UUID, limit int) ([]uuid.UUID, error) {
	ctx, cancel := db.fetchContext(ctx)
	defer cancel()

	query, args := nextIDsQuery(q, after, limit)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to page %s ids: %w", q.Kind, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// nextIDsQuery builds the keyset query of one page
func nextIDsQuery(q slicing.IDQuery, after *uuid.UUID, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT DISTINCT external_id FROM records WHERE tenant = $1 AND kind = $2 AND external_id BETWEEN $3 AND $4`)
	args := []any{q.Tenant, string(q.Kind), q.FromID, q.ToID}
	argNum := 5

	if after != nil {
		fmt.Fprintf(&b, " AND external_id > $%d", argNum)
		args = append(args, *after)
		argNum++
	}
	if !q.IncludeDeleted {
		b.WriteString(" AND NOT deleted AND state <> 'DELETED'")
	}
	if !q.IncludeSuppressed {
		b.WriteString(" AND NOT suppressed")
	}
	if q.UpdatedSince != nil {
		fmt.Fprintf(&b, " AND updated_at > $%d", argNum)
		args = append(args, *q.UpdatedSince)
		argNum++
	}

	fmt.Fprintf(&b, " ORDER BY external_id LIMIT $%d", argNum)
	args = append(args, limit)
	return b.String(), args
}

// SaveRecord inserts or replaces a stored record
func (db *DB) SaveRecord(ctx context.Context, rec *types.CandidateRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	state := rec.State
	if state == "" {
		state = types.StateActual
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   content = $7, state = $8, generation = $9, deleted = $10, suppressed = $11, updated_at = $12`,
		rec.ID, rec.ExternalID, rec.ParentID, rec.HRID, rec.Tenant, string(rec.Kind), []byte(rec.Content),
		string(state), rec.Generation, rec.Deleted, rec.Suppressed, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.ExternalID, err)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]types.CandidateRecord, error) {
	defer rows.Close()

	var records []types.CandidateRecord
	for rows.Next() {
		var (
			rec     types.CandidateRecord
			kind    string
			state   string
			content []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ExternalID, &rec.ParentID, &rec.HRID, &rec.Tenant, &kind,
			&content, &state, &rec.Generation, &rec.Deleted, &rec.Suppressed, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Kind = types.RecordKind(kind)
		rec.State = types.RecordState(state)
		rec.Content = content
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}
