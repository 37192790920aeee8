package tenant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/types"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string][]types.CandidateRecord // tenant -> records
	failing map[string]bool
	calls   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: map[string][]types.CandidateRecord{},
		failing: map[string]bool{},
		calls:   map[string]int{},
	}
}

func (s *fakeStore) put(tenant string, externalID uuid.UUID, parent *uuid.UUID) types.CandidateRecord {
	rec := types.CandidateRecord{
		ID:         uuid.New(),
		ExternalID: externalID,
		ParentID:   parent,
		Tenant:     tenant,
		Kind:       types.KindInstance,
		State:      types.StateActual,
	}
	s.records[tenant] = append(s.records[tenant], rec)
	return rec
}

func (s *fakeStore) FindByExternalIDs(_ context.Context, rc types.RequestContext, _ types.RecordKind, ids []uuid.UUID) ([]types.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[rc.Tenant]++
	if s.failing[rc.Tenant] {
		return nil, errors.New("timeout")
	}
	var out []types.CandidateRecord
	for _, rec := range s.records[rc.Tenant] {
		for _, id := range ids {
			if rec.ExternalID == id {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindByParentIDs(_ context.Context, rc types.RequestContext, _ types.RecordKind, parentIDs []uuid.UUID) ([]types.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[rc.Tenant] {
		return nil, errors.New("timeout")
	}
	var out []types.CandidateRecord
	for _, rec := range s.records[rc.Tenant] {
		for _, id := range parentIDs {
			if rec.ParentID != nil && *rec.ParentID == id {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

type fakeDirectory struct {
	central     map[string]string
	owners      map[uuid.UUID]string
	affiliated  []string
	permitted   map[string]bool
	ownersErr   error
	affilErr    error
	permErr     map[string]error
	ownerLookup int
}

func (d *fakeDirectory) CentralTenantOf(_ context.Context, tenant string) (string, error) {
	return d.central[tenant], nil
}

func (d *fakeDirectory) OwningTenants(_ context.Context, _ types.RequestContext, _ types.RecordKind, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	d.ownerLookup++
	if d.ownersErr != nil {
		return nil, d.ownersErr
	}
	out := map[uuid.UUID]string{}
	for _, id := range ids {
		if t, ok := d.owners[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (d *fakeDirectory) AffiliatedTenants(context.Context, types.RequestContext) ([]string, error) {
	return d.affiliated, d.affilErr
}

func (d *fakeDirectory) HasViewPermission(_ context.Context, rc types.RequestContext, _ types.RecordKind) (bool, error) {
	if err := d.permErr[rc.Tenant]; err != nil {
		return false, err
	}
	return d.permitted[rc.Tenant], nil
}

type loggedEntry struct {
	code   errorlog.Code
	values []string
}

type fakeErrorLog struct {
	mu      sync.Mutex
	entries []loggedEntry
}

func (f *fakeErrorLog) LogGeneral(_ context.Context, _ uuid.UUID, code errorlog.Code, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, loggedEntry{code: code, values: values})
}

func (f *fakeErrorLog) byCode(code errorlog.Code) []loggedEntry {
	var out []loggedEntry
	for _, e := range f.entries {
		if e.code == code {
			out = append(out, e)
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func externalIDs(records []types.CandidateRecord) []uuid.UUID {
	var ids []uuid.UUID
	for _, r := range records {
		ids = append(ids, r.ExternalID)
	}
	return ids
}

func TestResolve_StandaloneTenant(t *testing.T) {
	store := newFakeStore()
	found, missing := uuid.New(), uuid.New()
	store.put("diku", found, nil)

	r := NewResolver(store, nil, &fakeErrorLog{}, quietLogger())
	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "diku"}, uuid.New(), types.KindInstance, []uuid.UUID{found, missing})

	require.Len(t, res.Batches, 1)
	assert.Equal(t, "diku", res.Batches[0].Tenant)
	assert.Equal(t, []uuid.UUID{found}, externalIDs(res.Records()))
	assert.Equal(t, []uuid.UUID{missing}, res.NotFound)
	assert.Empty(t, res.Denied)
	assert.Equal(t, 1, res.Found())
}

func TestResolve_EmptyIDs(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, nil, nil, quietLogger())
	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "diku"}, uuid.New(), types.KindInstance, nil)
	assert.Empty(t, res.Batches)
	assert.Empty(t, store.calls)
}

func TestResolve_MemberFallsBackToCentral(t *testing.T) {
	store := newFakeStore()
	both, centralOnly, nowhere := uuid.New(), uuid.New(), uuid.New()
	local := store.put("college", both, nil)
	store.put("central", both, nil)
	store.put("central", centralOnly, nil)

	dir := &fakeDirectory{central: map[string]string{"college": "central", "central": "central"}}
	r := NewResolver(store, dir, &fakeErrorLog{}, quietLogger())

	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "college"}, uuid.New(), types.KindInstance, []uuid.UUID{both, centralOnly, nowhere})

	require.Len(t, res.Batches, 2)
	assert.Equal(t, "college", res.Batches[0].Tenant)
	require.Len(t, res.Batches[0].Records, 1)
	assert.Equal(t, local.ID, res.Batches[0].Records[0].ID, "local copy wins")

	assert.Equal(t, "central", res.Batches[1].Tenant)
	assert.Equal(t, []uuid.UUID{centralOnly}, externalIDs(res.Batches[1].Records))
	assert.Equal(t, []uuid.UUID{nowhere}, res.NotFound)
	assert.Zero(t, dir.ownerLookup)
}

func TestResolve_MemberCentralUnreachable(t *testing.T) {
	store := newFakeStore()
	store.failing["central"] = true
	id := uuid.New()

	dir := &fakeDirectory{central: map[string]string{"college": "central"}}
	errs := &fakeErrorLog{}
	r := NewResolver(store, dir, errs, quietLogger())

	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "college"}, uuid.New(), types.KindInstance, []uuid.UUID{id})

	assert.Empty(t, res.Batches)
	assert.Equal(t, []uuid.UUID{id}, res.NotFound)
	assert.Equal(t, []string{"central"}, res.Unreachable)
	assert.Len(t, errs.byCode(errorlog.CodeTenantUnreachable), 1)
}

func TestResolve_CentralFansOutToOwners(t *testing.T) {
	store := newFakeStore()
	local, fromCollege, fromUniversity := uuid.New(), uuid.New(), uuid.New()
	store.put("central", local, nil)
	store.put("college", fromCollege, nil)
	store.put("university", fromUniversity, nil)

	dir := &fakeDirectory{
		central:    map[string]string{"central": "central"},
		owners:     map[uuid.UUID]string{fromCollege: "college", fromUniversity: "university", local: "central"},
		affiliated: []string{"central", "college", "university"},
		permitted:  map[string]bool{"college": true, "university": true},
	}
	r := NewResolver(store, dir, &fakeErrorLog{}, quietLogger())

	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "central"}, uuid.New(), types.KindInstance, []uuid.UUID{local, fromCollege, fromUniversity})

	require.Len(t, res.Batches, 3)
	assert.Equal(t, "central", res.Batches[0].Tenant)
	assert.Equal(t, "college", res.Batches[1].Tenant)
	assert.Equal(t, "university", res.Batches[2].Tenant)
	assert.Equal(t, 3, res.Found())
	assert.Empty(t, res.NotFound)
	assert.Equal(t, 1, dir.ownerLookup)
	assert.Equal(t, 1, store.calls["college"])
}

func TestResolve_CentralUnaffiliatedLoggedOncePerTenant(t *testing.T) {
	store := newFakeStore()
	a1, a2, b1, ok := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	store.put("college", ok, nil)

	dir := &fakeDirectory{
		central:    map[string]string{"central": "central"},
		owners:     map[uuid.UUID]string{a1: "university", a2: "university", b1: "academy", ok: "college"},
		affiliated: []string{"central", "college"},
		permitted:  map[string]bool{"college": true},
	}
	errs := &fakeErrorLog{}
	r := NewResolver(store, dir, errs, quietLogger())
	rc := types.RequestContext{Tenant: "central", UserName: "jdoe"}

	res := r.Resolve(context.Background(), rc, uuid.New(), types.KindHoldings, []uuid.UUID{a1, b1, a2, ok})

	assert.ElementsMatch(t, []uuid.UUID{a1, a2, b1}, res.Denied)
	assert.Equal(t, []uuid.UUID{ok}, externalIDs(res.Records()))
	assert.Empty(t, res.NotFound)

	logged := errs.byCode(errorlog.CodeUnaffiliatedTenants)
	require.Len(t, logged, 2)
	assert.Equal(t, []string{b1.String(), "jdoe", "academy,university"}, logged[0].values)
	assert.Equal(t, []string{a1.String(), "jdoe", "academy,university"}, logged[1].values)
	assert.Zero(t, store.calls["university"])
	assert.Zero(t, store.calls["academy"])
}

func TestResolve_CentralPermissionDeniedAggregated(t *testing.T) {
	store := newFakeStore()
	x, y, z := uuid.New(), uuid.New(), uuid.New()
	store.put("college", x, nil)
	store.put("university", y, nil)
	store.put("academy", z, nil)

	dir := &fakeDirectory{
		central:    map[string]string{"central": "central"},
		owners:     map[uuid.UUID]string{x: "college", y: "university", z: "academy"},
		affiliated: []string{"college", "university", "academy"},
		permitted:  map[string]bool{"college": true},
	}
	errs := &fakeErrorLog{}
	r := NewResolver(store, dir, errs, quietLogger())

	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "central", UserName: "jdoe"}, uuid.New(), types.KindInstance, []uuid.UUID{x, y, z})

	assert.Equal(t, []uuid.UUID{x}, externalIDs(res.Records()))
	assert.ElementsMatch(t, []uuid.UUID{y, z}, res.Denied)

	logged := errs.byCode(errorlog.CodeNoViewPermission)
	require.Len(t, logged, 1)
	assert.Equal(t, []string{"jdoe", "instance", "academy,university"}, logged[0].values)
}

func TestResolve_CentralMemberUnreachable(t *testing.T) {
	store := newFakeStore()
	x, y := uuid.New(), uuid.New()
	store.put("college", x, nil)
	store.failing["university"] = true

	dir := &fakeDirectory{
		central:    map[string]string{"central": "central"},
		owners:     map[uuid.UUID]string{x: "college", y: "university"},
		affiliated: []string{"college", "university"},
		permitted:  map[string]bool{"college": true, "university": true},
	}
	r := NewResolver(store, dir, &fakeErrorLog{}, quietLogger())

	res := r.Resolve(context.Background(), types.RequestContext{Tenant: "central"}, uuid.New(), types.KindInstance, []uuid.UUID{x, y})

	assert.Equal(t, []uuid.UUID{x}, externalIDs(res.Records()))
	assert.Equal(t, []uuid.UUID{y}, res.NotFound)
	assert.Equal(t, []string{"university"}, res.Unreachable)
}

func TestResolve_CentralDirectoryFailures(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		dir  *fakeDirectory
	}{
		{
			name: "ownership lookup fails",
			dir: &fakeDirectory{
				central:   map[string]string{"central": "central"},
				ownersErr: errors.New("down"),
			},
		},
		{
			name: "affiliation lookup fails",
			dir: &fakeDirectory{
				central:  map[string]string{"central": "central"},
				owners:   map[uuid.UUID]string{id: "college"},
				affilErr: errors.New("down"),
			},
		},
		{
			name: "permission lookup fails",
			dir: &fakeDirectory{
				central:    map[string]string{"central": "central"},
				owners:     map[uuid.UUID]string{id: "college"},
				affiliated: []string{"college"},
				permErr:    map[string]error{"college": errors.New("down")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.put("college", id, nil)
			r := NewResolver(store, tt.dir, &fakeErrorLog{}, quietLogger())

			res := r.Resolve(context.Background(), types.RequestContext{Tenant: "central"}, uuid.New(), types.KindInstance, []uuid.UUID{id})

			assert.Empty(t, res.Batches)
			assert.Equal(t, []uuid.UUID{id}, res.NotFound)
			assert.Empty(t, res.Denied)
			assert.NotEmpty(t, res.Unreachable)
		})
	}
}

func TestChildren_CentralIncludesPermittedMembers(t *testing.T) {
	store := newFakeStore()
	parent := uuid.New()
	store.put("central", uuid.New(), &parent)
	store.put("college", uuid.New(), &parent)
	store.put("university", uuid.New(), &parent)
	store.put("academy", uuid.New(), &parent)

	dir := &fakeDirectory{
		central:    map[string]string{"central": "central"},
		affiliated: []string{"central", "college", "university"},
		permitted:  map[string]bool{"college": true},
	}
	r := NewResolver(store, dir, nil, quietLogger())

	children := r.Children(context.Background(), types.RequestContext{Tenant: "central"}, types.KindHoldings, []uuid.UUID{parent})

	var tenants []string
	for _, c := range children {
		tenants = append(tenants, c.Tenant)
	}
	assert.ElementsMatch(t, []string{"central", "college"}, tenants)
}

func TestChildren_MemberUsesLocalOnly(t *testing.T) {
	store := newFakeStore()
	parent := uuid.New()
	store.put("college", uuid.New(), &parent)
	store.put("central", uuid.New(), &parent)

	dir := &fakeDirectory{central: map[string]string{"college": "central"}}
	r := NewResolver(store, dir, nil, quietLogger())

	children := r.Children(context.Background(), types.RequestContext{Tenant: "college"}, types.KindHoldings, []uuid.UUID{parent})
	require.Len(t, children, 1)
	assert.Equal(t, "college", children[0].Tenant)
}
