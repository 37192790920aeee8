package export

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/tenant"
	"github.com/jonathan/data-export/internal/types"
)

// extraFields computes fields merged into stored records, keyed by external id.
// Per-record failures go into the error map; a returned error fails the whole set.
type extraFields func(ctx context.Context, run *shardRun, recs []types.CandidateRecord) (map[uuid.UUID][]marc.Field, map[uuid.UUID]error, error)

// exportStored passes stored MARC records of the given kind through to the sink.
// It returns the ids that have no canonical stored record and were not deliberately
// skipped, in page order, along with the tenant resolution they came from.
func exportStored(ctx context.Context, run *shardRun, kind types.RecordKind, ids []uuid.UUID, opts marc.Options, extra extraFields) ([]uuid.UUID, *tenant.Resolution) {
	res := run.deps.Tenants.Resolve(ctx, run.job.Context, run.job.ID(), kind, ids)
	records, ties, handled := run.canonical(ctx, res)
	for _, rec := range records {
		handled[rec.ExternalID] = true
	}

	var (
		fields map[uuid.UUID][]marc.Field
		errs   map[uuid.UUID]error
	)
	if extra != nil && len(records) > 0 {
		var err error
		fields, errs, err = extra(ctx, run, records)
		if err != nil {
			run.failRuleBuild(ctx, records, err)
			return remaining(ids, handled), res
		}
	}

	for _, rec := range records {
		if err := errs[rec.ExternalID]; err != nil {
			run.failRecord(ctx, rec, err)
			continue
		}
		recOpts := opts
		recOpts.Deleted = rec.IsDeleted() || rec.Deleted
		encoded, err := run.deps.Encoder.EncodeStored(rec.Content, fields[rec.ExternalID], recOpts)
		if err != nil {
			run.failRecord(ctx, rec, err)
			continue
		}
		run.emit(ctx, rec, encoded)
	}
	for _, tie := range ties {
		run.duplicate(ctx, tie)
	}
	return remaining(ids, handled), res
}
