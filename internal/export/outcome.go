package export

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/types"
)

// Outcome accumulates the statistics of one shard. Exactly one exists per shard run and
// only that run mutates it.
type Outcome struct {
	Exported    int
	Failed      int
	Duplicated  int
	NotFoundIDs []uuid.UUID
	FailedIDs   []uuid.UUID
	// Total is the number of ids assigned to the shard that were read
	Total int
	// Interrupted is set when reading shard ids failed part way
	Interrupted bool
	// SinkFailed is set when the output could not be opened or finalized
	SinkFailed bool
	Artifact   *output.Artifact
}

// TerminalStatus decides the final status from exported and failed counts.
// Nothing exported is a failure even when nothing failed.
func TerminalStatus(exported, failed int) types.ShardStatus {
	switch {
	case exported == 0:
		return types.StatusFailed
	case failed > 0:
		return types.StatusCompletedWithErrors
	default:
		return types.StatusCompleted
	}
}

// Status returns the terminal status of the shard
func (o *Outcome) Status() types.ShardStatus {
	status := TerminalStatus(o.Exported, o.Failed)
	if status == types.StatusCompleted && o.Interrupted {
		return types.StatusCompletedWithErrors
	}
	return status
}

// invalidate turns the shard into a total failure after its output was lost
func (o *Outcome) invalidate() {
	o.Exported = 0
	o.Duplicated = 0
	o.Failed = o.Total
	o.SinkFailed = true
	o.Artifact = nil
}

func (o *Outcome) fail(id uuid.UUID) {
	o.Failed++
	o.FailedIDs = append(o.FailedIDs, id)
}

// LogValue implements slog.LogValuer
func (o *Outcome) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", o.Total),
		slog.Int("exported", o.Exported),
		slog.Int("failed", o.Failed),
		slog.Int("duplicated", o.Duplicated),
		slog.Int("not_found", len(o.NotFoundIDs)),
		slog.String("status", string(o.Status())),
	)
}
