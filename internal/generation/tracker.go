package generation

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/types"
)

// Tracker remembers the external ids written by one shard.
// It is not safe for concurrent use; each shard owns its tracker.
type Tracker struct {
	jobID uuid.UUID
	errs  ErrorLog
	seen  map[uuid.UUID]struct{}
}

// NewTracker creates an empty tracker for a shard of a job
func NewTracker(jobID uuid.UUID, errs ErrorLog) *Tracker {
	return &Tracker{jobID: jobID, errs: errs, seen: make(map[uuid.UUID]struct{})}
}

// Claim records the external id of a record about to be written. It returns false
// when the id was already written by this shard; the duplicate is then logged with
// an HRID-based message and the record content.
func (t *Tracker) Claim(ctx context.Context, record types.CandidateRecord) bool {
	if _, dup := t.seen[record.ExternalID]; dup {
		if t.errs != nil {
			t.errs.LogWithAffectedRecord(ctx, t.jobID, record, errorlog.CodeDuplicateSRS, hridOf(record), record.ExternalID.String())
		}
		return false
	}
	t.seen[record.ExternalID] = struct{}{}
	return true
}

// Len returns the number of distinct external ids claimed
func (t *Tracker) Len() int {
	return len(t.seen)
}

func hridOf(record types.CandidateRecord) string {
	if record.HRID != "" {
		return record.HRID
	}
	return "unknown"
}
