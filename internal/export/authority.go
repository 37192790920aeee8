package export

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/types"
)

// AuthorityStrategy exports stored MARC authority records. Authorities have no
// inventory representation, so nothing is generated.
type AuthorityStrategy struct {
	deps Deps
}

// NewAuthorityStrategy creates an AuthorityStrategy
func NewAuthorityStrategy(deps Deps) *AuthorityStrategy {
	return &AuthorityStrategy{deps: deps}
}

// ExportShard exports the authorities in the shard's id range
func (s *AuthorityStrategy) ExportShard(ctx context.Context, job *Job, shard types.ExportShard) *Outcome {
	return runShard(ctx, s.deps, job, shard, shardPlan{
		name: "authority",
		kind: types.KindMarcAuthority,
		ext:  output.ExtMARC,
		page: s.exportPage,
	})
}

func (s *AuthorityStrategy) exportPage(ctx context.Context, run *shardRun, ids []uuid.UUID) {
	_, res := exportStored(ctx, run, types.KindMarcAuthority, ids, marc.Options{Type: marc.TypeAuthority}, nil)
	run.notFound(ctx, res.NotFound)
	run.denied(res.Denied)
}
