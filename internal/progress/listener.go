// Package progress counts exported records across the shards of a job and periodically
// persists the running total.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/types"
)

// DefaultStep is the persist interval used when a non-positive step is configured
const DefaultStep = 1000

// Store reads and writes the persisted progress of a job execution
type Store interface {
	GetProgress(ctx context.Context, jobID uuid.UUID) (*types.JobProgress, error)
	SaveProgress(ctx context.Context, jobID uuid.UUID, progress types.JobProgress) error
}

// Listener is shared by all shard workers of one job. Add is lock-free; the persist
// that runs when the count crosses a multiple of the step is serialized, so two workers
// crossing thresholds at once never interleave their read-modify-write of the store.
//
// Counts after the last crossed multiple are not persisted by the listener; the job's
// completion save writes the authoritative totals.
type Listener struct {
	jobID  uuid.UUID
	store  Store
	step   int64
	logger *slog.Logger

	exported atomic.Int64
	mu       sync.Mutex
	saves    int
}

// NewListener creates a listener for a job
func NewListener(jobID uuid.UUID, store Store, step int, logger *slog.Logger) *Listener {
	if step <= 0 {
		step = DefaultStep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		jobID:  jobID,
		store:  store,
		step:   int64(step),
		logger: logger.With("component", "progress"),
	}
}

// Add counts n more exported records and returns the new total
func (l *Listener) Add(ctx context.Context, n int) int64 {
	if n <= 0 {
		return l.exported.Load()
	}
	total := l.exported.Add(int64(n))
	if (total-int64(n))/l.step != total/l.step {
		l.persist(ctx)
	}
	return total
}

// Exported returns the current total
func (l *Listener) Exported() int64 {
	return l.exported.Load()
}

// Saves returns how many times progress was persisted
func (l *Listener) Saves() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saves
}

// LogValue implements slog.LogValuer
func (l *Listener) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("job_id", l.jobID.String()),
		slog.Int64("exported", l.exported.Load()),
		slog.Int64("step", l.step),
	)
}

func (l *Listener) persist(ctx context.Context) {
	if l.store == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.store.GetProgress(ctx, l.jobID)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to read job progress", "job_id", l.jobID, "error", err)
		return
	}
	next := types.JobProgress{}
	if current != nil {
		next = *current
	}

	// Read under the lock so a slower worker never writes a smaller total.
	exported := int(l.exported.Load())
	if exported <= next.Exported {
		return
	}
	next.Exported = exported

	if err := l.store.SaveProgress(ctx, l.jobID, next); err != nil {
		l.logger.WarnContext(ctx, "failed to save job progress", "job_id", l.jobID, "error", err)
		return
	}
	l.saves++
	l.logger.DebugContext(ctx, "progress saved", "progress", l)
}
