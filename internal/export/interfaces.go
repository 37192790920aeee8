// Package export runs the per-record-type export strategies over the shards of a job.
package export

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/types"
)

// Encoder converts source trees and stored records into output records
type Encoder interface {
	Encode(tree any, rs []rules.Rule, ref *types.ReferenceData, opts marc.Options) (string, error)
	Fields(tree any, rs []rules.Rule, ref *types.ReferenceData) ([]marc.Field, error)
	EncodeStored(content []byte, extra []marc.Field, opts marc.Options) (string, error)
}

// Sink is the scoped write target of one shard
type Sink interface {
	Write(record string) error
	Close() error
	Artifact() output.Artifact
}

// SinkFactory opens the sink of a shard
type SinkFactory func(jobID, shardID uuid.UUID, ext string) (Sink, error)

// FileSinks adapts an output factory to a SinkFactory
func FileSinks(f *output.Factory) SinkFactory {
	return func(jobID, shardID uuid.UUID, ext string) (Sink, error) {
		sink, err := f.Open(jobID, shardID, ext)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
}

// ErrorLog receives operator-facing audit entries
type ErrorLog interface {
	LogGeneral(ctx context.Context, jobID uuid.UUID, code errorlog.Code, values ...string)
	LogOnce(ctx context.Context, jobID uuid.UUID, code errorlog.Code, values ...string) bool
	LogWithAffectedRecord(ctx context.Context, jobID uuid.UUID, record types.CandidateRecord, code errorlog.Code, values ...string)
}

// Strategy exports one shard of a job
type Strategy interface {
	ExportShard(ctx context.Context, job *Job, shard types.ExportShard) *Outcome
}
