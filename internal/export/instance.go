package export

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/types"
)

// InstanceStrategy exports bibliographic records. Stored MARC is passed through when
// the profile asks for it; every other instance is generated from inventory JSON with
// its holdings and items.
type InstanceStrategy struct {
	deps Deps
}

// NewInstanceStrategy creates an InstanceStrategy
func NewInstanceStrategy(deps Deps) *InstanceStrategy {
	return &InstanceStrategy{deps: deps}
}

// ExportShard exports the instances in the shard's id range
func (s *InstanceStrategy) ExportShard(ctx context.Context, job *Job, shard types.ExportShard) *Outcome {
	return runShard(ctx, s.deps, job, shard, shardPlan{
		name: "instance",
		kind: types.KindInstance,
		ext:  output.ExtMARC,
		page: s.exportPage,
	})
}

func (s *InstanceStrategy) exportPage(ctx context.Context, run *shardRun, ids []uuid.UUID) {
	pending := ids
	if run.job.UsesStoredRecords() {
		pending, _ = exportStored(ctx, run, types.KindMarcBib, ids, marc.Options{Type: marc.TypeBibliographic}, s.holdingsFields)
	}
	if len(pending) == 0 {
		return
	}
	if run.job.Generations.TargetsDeleted() {
		// deletions only exist as stored records
		run.notFound(ctx, pending)
		return
	}
	s.generate(ctx, run, pending)
}

// holdingsFields renders holdings and item fields appended to stored bibliographic records
func (s *InstanceStrategy) holdingsFields(ctx context.Context, run *shardRun, recs []types.CandidateRecord) (map[uuid.UUID][]marc.Field, map[uuid.UUID]error, error) {
	if !run.job.WantsHoldings() {
		return nil, nil, nil
	}
	rs, err := run.job.Rules()
	if err != nil {
		return nil, nil, err
	}
	rs = childRules(rs)
	if len(rs) == 0 {
		return nil, nil, nil
	}

	families := instanceFamilies(ctx, run, externalIDs(recs))
	fields := make(map[uuid.UUID][]marc.Field, len(recs))
	errs := make(map[uuid.UUID]error)
	for _, rec := range recs {
		f := families[rec.ExternalID]
		if len(f.holdings) == 0 {
			continue
		}
		tree, err := marc.NewTree(nil, f.holdings, f.items)
		if err != nil {
			errs[rec.ExternalID] = err
			continue
		}
		produced, err := s.deps.Encoder.Fields(tree, rs, run.job.Reference)
		if err != nil {
			errs[rec.ExternalID] = err
			continue
		}
		fields[rec.ExternalID] = produced
	}
	return fields, errs, nil
}

// generate builds bibliographic records from inventory instances
func (s *InstanceStrategy) generate(ctx context.Context, run *shardRun, ids []uuid.UUID) {
	res := s.deps.Tenants.Resolve(ctx, run.job.Context, run.job.ID(), types.KindInstance, ids)
	run.notFound(ctx, res.NotFound)
	run.denied(res.Denied)

	records, ties, _ := run.canonical(ctx, res)
	if len(records) == 0 {
		return
	}
	rs, err := run.job.Rules()
	if err != nil {
		run.failRuleBuild(ctx, records, err)
		return
	}

	var families map[uuid.UUID]*family
	if run.job.WantsHoldings() {
		families = instanceFamilies(ctx, run, externalIDs(records))
	}
	for _, rec := range records {
		holdings, items := familyContent(families[rec.ExternalID])
		tree, err := marc.NewTree(rec.Content, holdings, items)
		if err != nil {
			run.failRecord(ctx, rec, err)
			continue
		}
		opts := marc.Options{Type: marc.TypeBibliographic, Deleted: rec.Deleted}
		encoded, err := s.deps.Encoder.Encode(tree, rs, run.job.Reference, opts)
		if err != nil {
			run.failRecord(ctx, rec, err)
			continue
		}
		run.emit(ctx, rec, encoded)
	}
	for _, tie := range ties {
		run.duplicate(ctx, tie)
	}
}
