package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/types"
)

// LinkedDataStrategy exports stored linked-data resources as JSON lines
type LinkedDataStrategy struct {
	deps Deps
}

// NewLinkedDataStrategy creates a LinkedDataStrategy
func NewLinkedDataStrategy(deps Deps) *LinkedDataStrategy {
	return &LinkedDataStrategy{deps: deps}
}

// ExportShard exports the linked-data resources in the shard's id range
func (s *LinkedDataStrategy) ExportShard(ctx context.Context, job *Job, shard types.ExportShard) *Outcome {
	return runShard(ctx, s.deps, job, shard, shardPlan{
		name: "linked_data",
		kind: types.KindLinkedData,
		ext:  output.ExtJSONLines,
		page: s.exportPage,
	})
}

func (s *LinkedDataStrategy) exportPage(ctx context.Context, run *shardRun, ids []uuid.UUID) {
	res := s.deps.Tenants.Resolve(ctx, run.job.Context, run.job.ID(), types.KindLinkedData, ids)
	run.notFound(ctx, res.NotFound)
	run.denied(res.Denied)

	records, ties, _ := run.canonical(ctx, res)
	for _, rec := range records {
		line, err := jsonLine(rec.Content)
		if err != nil {
			run.failRecord(ctx, rec, err)
			continue
		}
		run.emit(ctx, rec, line)
	}
	for _, tie := range ties {
		run.duplicate(ctx, tie)
	}
}

// jsonLine compacts a resource onto a single newline-terminated line
func jsonLine(content json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, content); err != nil {
		return "", fmt.Errorf("malformed linked data resource: %w", err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}
