package export

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/types"
)

// HoldingsStrategy exports MARC holdings records
type HoldingsStrategy struct {
	deps Deps
}

// NewHoldingsStrategy creates a HoldingsStrategy
func NewHoldingsStrategy(deps Deps) *HoldingsStrategy {
	return &HoldingsStrategy{deps: deps}
}

// ExportShard exports the holdings in the shard's id range
func (s *HoldingsStrategy) ExportShard(ctx context.Context, job *Job, shard types.ExportShard) *Outcome {
	return runShard(ctx, s.deps, job, shard, shardPlan{
		name: "holdings",
		kind: types.KindHoldings,
		ext:  output.ExtMARC,
		page: s.exportPage,
	})
}

func (s *HoldingsStrategy) exportPage(ctx context.Context, run *shardRun, ids []uuid.UUID) {
	pending := ids
	if run.job.UsesStoredRecords() {
		pending, _ = exportStored(ctx, run, types.KindMarcHoldings, ids, marc.Options{Type: marc.TypeHoldings}, nil)
	}
	if len(pending) == 0 {
		return
	}
	if run.job.Generations.TargetsDeleted() {
		run.notFound(ctx, pending)
		return
	}
	s.generate(ctx, run, pending)
}

// generate builds holdings records from inventory holdings and their items
func (s *HoldingsStrategy) generate(ctx context.Context, run *shardRun, ids []uuid.UUID) {
	res := s.deps.Tenants.Resolve(ctx, run.job.Context, run.job.ID(), types.KindHoldings, ids)
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

	items := holdingsItems(ctx, run, externalIDs(records))
	for _, rec := range records {
		tree, err := marc.NewTree(nil, []json.RawMessage{rec.Content}, items[rec.ExternalID])
		if err != nil {
			run.failRecord(ctx, rec, err)
			continue
		}
		opts := marc.Options{Type: marc.TypeHoldings, Deleted: rec.Deleted}
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
