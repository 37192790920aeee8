package tenant

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/types"
)

// Batch holds the records fetched from one tenant
type Batch struct {
	Tenant  string
	Records []types.CandidateRecord
}

// Resolution is the result of locating a set of ids across tenants.
// Every requested id ends up in exactly one of: a batch, NotFound, or Denied.
type Resolution struct {
	// Batches lists fetched records per tenant, the caller's tenant first
	Batches []Batch
	// NotFound lists ids absent from every reachable tenant
	NotFound []uuid.UUID
	// Denied lists ids owned by tenants the user may not read
	Denied []uuid.UUID
	// Unreachable lists tenants whose store or directory calls failed
	Unreachable []string
}

// Records returns all fetched records in batch order
func (r *Resolution) Records() []types.CandidateRecord {
	var out []types.CandidateRecord
	for _, b := range r.Batches {
		out = append(out, b.Records...)
	}
	return out
}

// Found returns the number of distinct requested ids that were fetched
func (r *Resolution) Found() int {
	seen := make(map[uuid.UUID]struct{})
	for _, b := range r.Batches {
		for _, rec := range b.Records {
			seen[rec.ExternalID] = struct{}{}
		}
	}
	return len(seen)
}

func (r *Resolution) addBatch(tenant string, records []types.CandidateRecord) {
	if len(records) > 0 {
		r.Batches = append(r.Batches, Batch{Tenant: tenant, Records: records})
	}
}

// Resolver fetches records from the caller's tenant and, in a consortium, from the
// tenants that own them. It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	store  RecordStore
	dir    Directory
	errs   ErrorLog
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil directory disables consortium lookups.
func NewResolver(store RecordStore, dir Directory, errs ErrorLog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, dir: dir, errs: errs, logger: logger.With("component", "tenant")}
}

// Resolve fetches the records with the given external ids on behalf of rc.
//
// The caller's own tenant is always searched first. A consortium member falls back to
// the central tenant for the ids it does not hold. The central tenant instead asks the
// directory which member owns each missing id, drops owners the user is not affiliated
// with or may not view, and fetches from the remaining owners concurrently. Store and
// directory failures never abort resolution: the affected ids are reported as not found.
func (r *Resolver) Resolve(ctx context.Context, rc types.RequestContext, jobID uuid.UUID, kind types.RecordKind, ids []uuid.UUID) *Resolution {
	res := &Resolution{}
	if len(ids) == 0 {
		return res
	}

	records, missing := r.fetch(ctx, rc, jobID, kind, ids, res)
	res.addBatch(rc.Tenant, records)
	if len(missing) == 0 {
		return res
	}

	central := r.centralTenant(ctx, rc.Tenant)
	switch {
	case central == "":
		res.NotFound = append(res.NotFound, missing...)
	case central != rc.Tenant:
		records, missing = r.fetch(ctx, rc.WithTenant(central), jobID, kind, missing, res)
		res.addBatch(central, records)
		res.NotFound = append(res.NotFound, missing...)
	default:
		r.fromOwners(ctx, rc, jobID, kind, missing, res)
	}
	return res
}

// Children fetches records of the given kind whose parent is one of parentIDs. From the
// central tenant, children held by affiliated members the user may view are included.
func (r *Resolver) Children(ctx context.Context, rc types.RequestContext, kind types.RecordKind, parentIDs []uuid.UUID) []types.CandidateRecord {
	if len(parentIDs) == 0 {
		return nil
	}

	children, err := r.store.FindByParentIDs(ctx, rc, kind, parentIDs)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to fetch child records", "tenant", rc.Tenant, "kind", kind, "error", err)
	}

	if r.centralTenant(ctx, rc.Tenant) != rc.Tenant {
		return children
	}

	affiliated, err := r.dir.AffiliatedTenants(ctx, rc)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to list affiliated tenants", "tenant", rc.Tenant, "error", err)
		return children
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range affiliated {
		if t == rc.Tenant {
			continue
		}
		member := rc.WithTenant(t)
		g.Go(func() error {
			ok, err := r.dir.HasViewPermission(gctx, member, kind)
			if err != nil || !ok {
				r.logger.DebugContext(gctx, "skipping member tenant for child records", "tenant", t, "permitted", ok, "error", err)
				return nil
			}
			recs, err := r.store.FindByParentIDs(gctx, member, kind, parentIDs)
			if err != nil {
				r.logger.WarnContext(gctx, "failed to fetch child records", "tenant", t, "kind", kind, "error", err)
				return nil
			}
			mu.Lock()
			children = append(children, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return children
}

// fromOwners resolves ids missing from the central tenant through their owning members
func (r *Resolver) fromOwners(ctx context.Context, rc types.RequestContext, jobID uuid.UUID, kind types.RecordKind, ids []uuid.UUID, res *Resolution) {
	owners, err := r.dir.OwningTenants(ctx, rc, kind, ids)
	if err != nil {
		r.unreachable(ctx, jobID, &LookupError{Tenant: rc.Tenant, Message: "ownership lookup failed", Cause: err}, kind, ids, res)
		return
	}

	byTenant := make(map[string][]uuid.UUID)
	for _, id := range ids {
		owner, ok := owners[id]
		if !ok || owner == rc.Tenant {
			res.NotFound = append(res.NotFound, id)
			continue
		}
		byTenant[owner] = append(byTenant[owner], id)
	}
	if len(byTenant) == 0 {
		return
	}

	byTenant = r.filterAffiliated(ctx, rc, jobID, kind, byTenant, res)
	byTenant = r.filterPermitted(ctx, rc, jobID, kind, byTenant, res)

	var mu sync.Mutex
	fetched := make(map[string][]types.CandidateRecord)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range sortedTenants(byTenant) {
		g.Go(func() error {
			part := &Resolution{}
			records, missing := r.fetch(gctx, rc.WithTenant(t), jobID, kind, byTenant[t], part)
			mu.Lock()
			defer mu.Unlock()
			fetched[t] = records
			res.NotFound = append(res.NotFound, missing...)
			res.Unreachable = append(res.Unreachable, part.Unreachable...)
			return nil
		})
	}
	_ = g.Wait()

	for _, t := range sortedTenants(byTenant) {
		res.addBatch(t, fetched[t])
	}
}

// filterAffiliated drops owners the user is not affiliated with. One entry is logged per
// offending tenant, naming its first id and the full sorted list of offending tenants.
func (r *Resolver) filterAffiliated(ctx context.Context, rc types.RequestContext, jobID uuid.UUID, kind types.RecordKind, byTenant map[string][]uuid.UUID, res *Resolution) map[string][]uuid.UUID {
	affiliated, err := r.dir.AffiliatedTenants(ctx, rc)
	if err != nil {
		var all []uuid.UUID
		for _, t := range sortedTenants(byTenant) {
			all = append(all, byTenant[t]...)
		}
		r.unreachable(ctx, jobID, &LookupError{Tenant: rc.Tenant, Message: "affiliation lookup failed", Cause: err}, kind, all, res)
		return nil
	}

	var offending []string
	for _, t := range sortedTenants(byTenant) {
		if !slices.Contains(affiliated, t) {
			offending = append(offending, t)
		}
	}
	if len(offending) == 0 {
		return byTenant
	}

	list := strings.Join(offending, ",")
	kept := make(map[string][]uuid.UUID, len(byTenant))
	for t, ids := range byTenant {
		kept[t] = ids
	}
	for _, t := range offending {
		ids := byTenant[t]
		r.logGeneral(ctx, jobID, errorlog.CodeUnaffiliatedTenants, ids[0].String(), userName(rc), list)
		res.Denied = append(res.Denied, ids...)
		delete(kept, t)
	}
	return kept
}

// filterPermitted drops owners where the user lacks view permission, logging one
// aggregated entry for all of them
func (r *Resolver) filterPermitted(ctx context.Context, rc types.RequestContext, jobID uuid.UUID, kind types.RecordKind, byTenant map[string][]uuid.UUID, res *Resolution) map[string][]uuid.UUID {
	kept := make(map[string][]uuid.UUID, len(byTenant))
	var denied []string
	for _, t := range sortedTenants(byTenant) {
		ok, err := r.dir.HasViewPermission(ctx, rc.WithTenant(t), kind)
		switch {
		case err != nil:
			r.unreachable(ctx, jobID, &LookupError{Tenant: t, Message: "permission lookup failed", Cause: err}, kind, byTenant[t], res)
		case !ok:
			denied = append(denied, t)
			res.Denied = append(res.Denied, byTenant[t]...)
		default:
			kept[t] = byTenant[t]
		}
	}
	if len(denied) > 0 {
		r.logGeneral(ctx, jobID, errorlog.CodeNoViewPermission, userName(rc), string(kind), strings.Join(denied, ","))
	}
	return kept
}

// fetch reads ids from rc.Tenant and splits them into fetched records and missing ids.
// Records for ids that were not requested are discarded.
func (r *Resolver) fetch(ctx context.Context, rc types.RequestContext, jobID uuid.UUID, kind types.RecordKind, ids []uuid.UUID, res *Resolution) ([]types.CandidateRecord, []uuid.UUID) {
	records, err := r.store.FindByExternalIDs(ctx, rc, kind, ids)
	if err != nil {
		r.logger.WarnContext(ctx, "tenant unreachable", "tenant", rc.Tenant, "kind", kind, "ids", len(ids), "error", err)
		r.logGeneral(ctx, jobID, errorlog.CodeTenantUnreachable, rc.Tenant, strconv.Itoa(len(ids)), joinIDs(ids))
		res.Unreachable = append(res.Unreachable, rc.Tenant)
		return nil, ids
	}

	requested := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		requested[id] = false
	}
	kept := records[:0:0]
	for _, rec := range records {
		if _, ok := requested[rec.ExternalID]; !ok {
			continue
		}
		if rec.Tenant == "" {
			rec.Tenant = rc.Tenant
		}
		requested[rec.ExternalID] = true
		kept = append(kept, rec)
	}

	var missing []uuid.UUID
	for _, id := range ids {
		if !requested[id] {
			missing = append(missing, id)
		}
	}
	return kept, missing
}

func (r *Resolver) unreachable(ctx context.Context, jobID uuid.UUID, err *LookupError, kind types.RecordKind, ids []uuid.UUID, res *Resolution) {
	r.logger.WarnContext(ctx, "consortium lookup failed", "tenant", err.Tenant, "kind", kind, "ids", len(ids), "error", err)
	r.logGeneral(ctx, jobID, errorlog.CodeTenantUnreachable, err.Tenant, strconv.Itoa(len(ids)), joinIDs(ids))
	res.Unreachable = append(res.Unreachable, err.Tenant)
	res.NotFound = append(res.NotFound, ids...)
}

func (r *Resolver) centralTenant(ctx context.Context, tenant string) string {
	if r.dir == nil {
		return ""
	}
	central, err := r.dir.CentralTenantOf(ctx, tenant)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to look up central tenant, treating as standalone", "tenant", tenant, "error", err)
		return ""
	}
	return central
}

func (r *Resolver) logGeneral(ctx context.Context, jobID uuid.UUID, code errorlog.Code, values ...string) {
	if r.errs != nil {
		r.errs.LogGeneral(ctx, jobID, code, values...)
	}
}

func userName(rc types.RequestContext) string {
	if rc.UserName != "" {
		return rc.UserName
	}
	return rc.UserID.String()
}

func sortedTenants(byTenant map[string][]uuid.UUID) []string {
	tenants := make([]string, 0, len(byTenant))
	for t := range byTenant {
		tenants = append(tenants, t)
	}
	slices.Sort(tenants)
	return tenants
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
