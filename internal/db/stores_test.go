package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/pipeline"
	"github.com/jonathan/data-export/internal/progress"
	"github.com/jonathan/data-export/internal/slicing"
	"github.com/jonathan/data-export/internal/tenant"
	"github.com/jonathan/data-export/internal/types"
)

var (
	_ tenant.RecordStore = (*DB)(nil)
	_ tenant.Directory   = (*DB)(nil)
	_ slicing.Pager      = (*DB)(nil)
	_ progress.Store     = (*DB)(nil)
	_ errorlog.Store     = (*DB)(nil)
	_ pipeline.Store     = (*DB)(nil)
)

func TestNextIDsQuery(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	after := uuid.New()
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		query    slicing.IDQuery
		after    *uuid.UUID
		contains []string
		excludes []string
		args     int
	}{
		{
			name:     "first page excludes deleted and suppressed",
			query:    slicing.IDQuery{Tenant: "diku", Kind: types.KindInstance, FromID: from, ToID: to},
			contains: []string{"external_id BETWEEN $3 AND $4", "NOT deleted", "NOT suppressed", "LIMIT $5"},
			excludes: []string{"external_id > $"},
			args:     5,
		},
		{
			name:     "cursor and incremental",
			query:    slicing.IDQuery{Tenant: "diku", Kind: types.KindInstance, FromID: from, ToID: to, UpdatedSince: &since},
			after:    &after,
			contains: []string{"external_id > $5", "updated_at > $6", "LIMIT $7"},
			args:     7,
		},
		{
			name:     "deleted and suppressed included",
			query:    slicing.IDQuery{Tenant: "diku", Kind: types.KindMarcBib, FromID: from, ToID: to, IncludeDeleted: true, IncludeSuppressed: true},
			excludes: []string{"NOT deleted", "NOT suppressed"},
			contains: []string{"ORDER BY external_id"},
			args:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := nextIDsQuery(tt.query, tt.after, 100)
			for _, s := range tt.contains {
				assert.Contains(t, query, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, query, s)
			}
			assert.Len(t, args, tt.args)
			assert.Equal(t, 100, args[len(args)-1])
		})
	}
}

func TestAddReference(t *testing.T) {
	ref := &types.ReferenceData{}
	addReference(ref, "locations", "loc-1", map[string]string{"name": "Main"})
	addReference(ref, "material_types", "mt-1", map[string]string{"name": "book"})
	addReference(ref, "unknown", "x", map[string]string{"name": "ignored"})

	name, ok := ref.Lookup("locations", "loc-1", "name")
	assert.True(t, ok)
	assert.Equal(t, "Main", name)
	name, ok = ref.Lookup("material_types", "mt-1", "name")
	assert.True(t, ok)
	assert.Equal(t, "book", name)
	assert.Nil(t, ref.InstanceTypes)
}

func TestPermissionKind(t *testing.T) {
	assert.Equal(t, "instance", permissionKind(types.KindMarcBib))
	assert.Equal(t, "holdings", permissionKind(types.KindMarcHoldings))
	assert.Equal(t, "marc_authority", permissionKind(types.KindMarcAuthority))
	assert.Equal(t, "item", permissionKind(types.KindItem))
}

func TestFetchContext(t *testing.T) {
	ctx := context.Background()

	bounded, cancel := (&DB{fetchTimeout: time.Minute}).fetchContext(ctx)
	defer cancel()
	deadline, ok := bounded.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	unbounded, cancel := (&DB{}).fetchContext(ctx)
	defer cancel()
	_, ok = unbounded.Deadline()
	assert.False(t, ok)
}
