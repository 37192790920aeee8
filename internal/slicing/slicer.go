// Package slicing walks the id range of an export shard in fixed-size pages.
package slicing

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/types"
)

// DefaultBatchSize is used when a non-positive batch size is configured
const DefaultBatchSize = 1000

// IDQuery selects the candidate ids of one shard
type IDQuery struct {
	Tenant            string
	Kind              types.RecordKind
	FromID            uuid.UUID
	ToID              uuid.UUID
	IncludeDeleted    bool
	IncludeSuppressed bool
	UpdatedSince      *time.Time
}

// Pager fetches one bounded, id-ordered page of ids strictly after the cursor
type Pager interface {
	NextIDs(ctx context.Context, query IDQuery, after *uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Slicer is a lazy, finite, non-restartable page iterator over a shard's id range.
// The cursor is the last id of the previous page; pages are never rescanned.
type Slicer struct {
	pager     Pager
	query     IDQuery
	batchSize int

	cursor *uuid.UUID
	done   bool
}

// New creates a slicer for a query
func New(pager Pager, query IDQuery, batchSize int) *Slicer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Slicer{pager: pager, query: query, batchSize: batchSize}
}

// ForShard builds the id query for a shard of a job request. Deleted ids are paged when
// the request asks for them or the job exports deletions.
func ForShard(shard types.ExportShard, rc types.RequestContext, kind types.RecordKind, req types.ExportRequest, updatedSince *time.Time, targetsDeleted bool) IDQuery {
	q := IDQuery{
		Tenant:            rc.Tenant,
		Kind:              kind,
		FromID:            shard.FromID,
		ToID:              shard.ToID,
		IncludeDeleted:    req.DeletedRecords || targetsDeleted,
		IncludeSuppressed: req.SuppressedFromDiscovery,
	}
	if req.LastExport {
		q.UpdatedSince = updatedSince
	}
	return q
}

// HasMore reports whether another page may be available
func (s *Slicer) HasMore() bool {
	return !s.done
}

// Next fetches the next page. An empty page with a nil error means the range is exhausted.
// After an error the slicer is exhausted.
func (s *Slicer) Next(ctx context.Context) ([]uuid.UUID, error) {
	if s.done {
		return nil, nil
	}

	ids, err := s.pager.NextIDs(ctx, s.query, s.cursor, s.batchSize)
	if err != nil {
		s.done = true
		return nil, fmt.Errorf("failed to fetch ids after %s: %w", s.cursorString(), err)
	}
	if len(ids) > s.batchSize {
		ids = ids[:s.batchSize]
	}
	if len(ids) < s.batchSize {
		s.done = true
	}
	if len(ids) > 0 {
		last := ids[len(ids)-1]
		s.cursor = &last
	}
	return ids, nil
}

// Pages yields every remaining non-empty page. Iteration stops after the first error.
func (s *Slicer) Pages(ctx context.Context) iter.Seq2[[]uuid.UUID, error] {
	return func(yield func([]uuid.UUID, error) bool) {
		for s.HasMore() {
			ids, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(ids) == 0 {
				return
			}
			if !yield(ids, nil) {
				return
			}
		}
	}
}

func (s *Slicer) cursorString() string {
	if s.cursor == nil {
		return "start"
	}
	return s.cursor.String()
}
