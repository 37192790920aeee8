// Package generation picks the canonical version of records that have several stored
// generations and tracks duplicates written within a shard.
package generation

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/types"
)

// ErrorLog receives the audit entries the resolver emits
type ErrorLog interface {
	LogOnce(ctx context.Context, jobID uuid.UUID, code errorlog.Code, values ...string) bool
	LogWithAffectedRecord(ctx context.Context, jobID uuid.UUID, record types.CandidateRecord, code errorlog.Code, values ...string)
}

// Result is the outcome of canonicalizing one batch of candidates
type Result struct {
	// Records holds the canonical record per external id
	Records map[uuid.UUID]types.CandidateRecord
	// Order lists the external ids of Records in first-seen order
	Order []uuid.UUID
	// Ties are extra records sharing the winning generation of a canonical record
	Ties []types.CandidateRecord
	// Dropped lists external ids whose winning generation had the wrong state
	Dropped []uuid.UUID
}

// Ordered returns the canonical records in first-seen order
func (r *Result) Ordered() []types.CandidateRecord {
	out := make([]types.CandidateRecord, 0, len(r.Order))
	for _, id := range r.Order {
		out = append(out, r.Records[id])
	}
	return out
}

// Resolver canonicalizes candidates for one job
type Resolver struct {
	jobID          uuid.UUID
	profileID      uuid.UUID
	targetsDeleted bool
	errs           ErrorLog
}

// NewResolver creates a resolver for a job. The job targets deletions when its job
// profile is the well-known deleted-records profile.
func NewResolver(jobID, jobProfileID, deletedProfileID uuid.UUID, errs ErrorLog) *Resolver {
	return &Resolver{
		jobID:          jobID,
		profileID:      jobProfileID,
		targetsDeleted: deletedProfileID != uuid.Nil && jobProfileID == deletedProfileID,
		errs:           errs,
	}
}

// TargetsDeleted reports whether the job exports deleted records
func (r *Resolver) TargetsDeleted() bool {
	return r.targetsDeleted
}

// Canonicalize groups candidates by external id and keeps the highest generation.
// A winner whose state does not match the job (DELETED for regular profiles, ACTUAL for
// the deleted profile) is dropped, logged once per distinct message, and reported in
// Dropped; older generations never stand in for it.
func (r *Resolver) Canonicalize(ctx context.Context, candidates []types.CandidateRecord) *Result {
	res := &Result{Records: make(map[uuid.UUID]types.CandidateRecord)}

	groups := make(map[uuid.UUID][]types.CandidateRecord)
	var order []uuid.UUID
	for _, c := range candidates {
		if _, ok := groups[c.ExternalID]; !ok {
			order = append(order, c.ExternalID)
		}
		groups[c.ExternalID] = append(groups[c.ExternalID], c)
	}

	for _, id := range order {
		group := groups[id]
		winner := group[0]
		for _, c := range group[1:] {
			if c.Generation > winner.Generation {
				winner = c
			}
		}

		if !r.accepts(winner) {
			r.logMismatch(ctx, winner)
			res.Dropped = append(res.Dropped, id)
			continue
		}

		res.Records[id] = winner
		res.Order = append(res.Order, id)
		for _, c := range group {
			if c.ID != winner.ID && c.Generation == winner.Generation && r.accepts(c) {
				res.Ties = append(res.Ties, c)
			}
		}
	}
	return res
}

func (r *Resolver) accepts(c types.CandidateRecord) bool {
	return c.IsDeleted() == r.targetsDeleted
}

func (r *Resolver) logMismatch(ctx context.Context, c types.CandidateRecord) {
	if r.errs == nil {
		return
	}
	want := types.StateActual
	if r.targetsDeleted {
		want = types.StateDeleted
	}
	r.errs.LogOnce(ctx, r.jobID, errorlog.CodeDeletedProfileMismatch,
		string(c.State), string(c.Kind), r.profileID.String(), string(want))
}

// Current keeps the highest generation of each external id in first-seen order and
// drops ids whose highest generation is deleted. It serves records attached to an
// exported record, which always reflect the live inventory whatever the job targets.
func Current(candidates []types.CandidateRecord) []types.CandidateRecord {
	winners := make(map[uuid.UUID]types.CandidateRecord)
	var order []uuid.UUID
	for _, c := range candidates {
		w, ok := winners[c.ExternalID]
		if !ok {
			order = append(order, c.ExternalID)
		}
		if !ok || c.Generation > w.Generation {
			winners[c.ExternalID] = c
		}
	}

	out := make([]types.CandidateRecord, 0, len(order))
	for _, id := range order {
		if w := winners[id]; !w.IsDeleted() {
			out = append(out, w)
		}
	}
	return out
}
