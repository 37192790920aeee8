package export

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/generation"
	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/slicing"
	"github.com/jonathan/data-export/internal/tenant"
	"github.com/jonathan/data-export/internal/types"
)

// Deps are the process-wide collaborators shared by every strategy
type Deps struct {
	Pager     slicing.Pager
	Tenants   *tenant.Resolver
	Encoder   Encoder
	Sinks     SinkFactory
	BatchSize int
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// pageFunc exports one page of shard ids
type pageFunc func(ctx context.Context, run *shardRun, ids []uuid.UUID)

// shardPlan describes how a strategy walks and writes a shard
type shardPlan struct {
	name string
	kind types.RecordKind // kind whose ids the shard range selects
	ext  string
	page pageFunc
}

// shardRun is the mutable state of one shard export. It is owned by a single goroutine.
type shardRun struct {
	deps    Deps
	job     *Job
	shard   types.ExportShard
	outcome *Outcome
	sink    Sink
	tracker *generation.Tracker
	logger  *slog.Logger
}

// runShard walks the shard's id range page by page and writes every canonical record
// to the shard's sink. Closing the sink is the commit point: if it fails every
// record counted as exported is void and the shard fails as a whole.
func runShard(ctx context.Context, deps Deps, job *Job, shard types.ExportShard, plan shardPlan) *Outcome {
	logger := deps.logger().With("component", "export", "strategy", plan.name, "job_id", job.ID(), "shard_id", shard.ID)
	outcome := &Outcome{}

	sink, err := deps.Sinks(job.ID(), shard.ID, plan.ext)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open shard output", "error", err)
		job.Errors.LogGeneral(ctx, job.ID(), errorlog.CodeSinkFailure, shard.ID.String(), err.Error())
		outcome.SinkFailed = true
		return outcome
	}

	run := &shardRun{
		deps:    deps,
		job:     job,
		shard:   shard,
		outcome: outcome,
		sink:    sink,
		tracker: generation.NewTracker(job.ID(), job.Errors),
		logger:  logger,
	}

	query := slicing.ForShard(shard, job.Context, plan.kind, job.Request(), job.UpdatedSince, job.Generations.TargetsDeleted())
	slicer := slicing.New(deps.Pager, query, deps.BatchSize)
	for ids, err := range slicer.Pages(ctx) {
		if err != nil {
			logger.ErrorContext(ctx, "failed to read shard ids", "error", err)
			job.Errors.LogGeneral(ctx, job.ID(), errorlog.CodeFetchFailure, shard.ID.String(), err.Error())
			outcome.Interrupted = true
			break
		}
		outcome.Total += len(ids)
		before := outcome.Exported
		plan.page(ctx, run, ids)
		if job.Progress != nil {
			job.Progress.Add(ctx, outcome.Exported-before)
		}
	}

	if err := sink.Close(); err != nil {
		logger.ErrorContext(ctx, "failed to finalize shard output", "error", err)
		job.Errors.LogGeneral(ctx, job.ID(), errorlog.CodeSinkFailure, shard.ID.String(), err.Error())
		outcome.invalidate()
		return outcome
	}
	artifact := sink.Artifact()
	outcome.Artifact = &artifact

	logger.InfoContext(ctx, "shard exported", "outcome", outcome)
	return outcome
}

// notFound counts ids that no tenant could supply
func (r *shardRun) notFound(ctx context.Context, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	r.outcome.NotFoundIDs = append(r.outcome.NotFoundIDs, ids...)
	for _, id := range ids {
		r.outcome.fail(id)
	}
	r.job.Errors.LogGeneral(ctx, r.job.ID(), errorlog.CodeRecordNotFound, joinIDs(ids))
}

// denied counts ids the user may not read. The tenant resolver already logged them.
func (r *shardRun) denied(ids []uuid.UUID) {
	for _, id := range ids {
		r.outcome.fail(id)
	}
}

// failRecord counts a record that could not be converted or written
func (r *shardRun) failRecord(ctx context.Context, rec types.CandidateRecord, err error) {
	r.outcome.fail(rec.ExternalID)
	if marc.IsTooLong(err) {
		length := ""
		var encErr *marc.EncodeError
		if errors.As(err, &encErr) {
			length = strconv.Itoa(encErr.Length)
		}
		r.job.Errors.LogWithAffectedRecord(ctx, r.job.ID(), rec, errorlog.CodeRecordTooLong, rec.ExternalID.String(), length)
		return
	}
	r.job.Errors.LogWithAffectedRecord(ctx, r.job.ID(), rec, errorlog.CodeConversion, rec.ExternalID.String(), err.Error())
}

// failRuleBuild counts records that cannot be generated because the profile's rules
// do not build. The cause is logged once per job.
func (r *shardRun) failRuleBuild(ctx context.Context, recs []types.CandidateRecord, err error) {
	r.job.Errors.LogOnce(ctx, r.job.ID(), errorlog.CodeRuleBuild, r.job.ProfileName(), err.Error())
	for _, rec := range recs {
		r.outcome.fail(rec.ExternalID)
	}
}

// emit claims a record for the shard and writes it. A record already written under the
// same external id counts as a duplicate instead.
func (r *shardRun) emit(ctx context.Context, rec types.CandidateRecord, encoded string) {
	if !r.tracker.Claim(ctx, rec) {
		r.outcome.Duplicated++
		return
	}
	if err := r.sink.Write(encoded); err != nil {
		r.logger.ErrorContext(ctx, "failed to write record", "record_id", rec.ExternalID, "error", err)
		r.failRecord(ctx, rec, err)
		return
	}
	r.outcome.Exported++
}

// duplicate counts a tie that lost to an already canonical record
func (r *shardRun) duplicate(ctx context.Context, rec types.CandidateRecord) {
	if !r.tracker.Claim(ctx, rec) {
		r.outcome.Duplicated++
	}
}

// canonical runs generation canonicalization per tenant batch. It returns the canonical
// records and the ids that were deliberately skipped; ties are counted as duplicates
// once their winners have been handled by the caller.
func (r *shardRun) canonical(ctx context.Context, res *tenant.Resolution) ([]types.CandidateRecord, []types.CandidateRecord, map[uuid.UUID]bool) {
	var (
		records []types.CandidateRecord
		ties    []types.CandidateRecord
	)
	skipped := make(map[uuid.UUID]bool)
	for _, batch := range res.Batches {
		result := r.job.Generations.Canonicalize(ctx, batch.Records)
		records = append(records, result.Ordered()...)
		ties = append(ties, result.Ties...)
		for _, id := range result.Dropped {
			skipped[id] = true
		}
	}
	return records, ties, skipped
}

// remaining returns the ids not present in handled, preserving order
func remaining(ids []uuid.UUID, handled map[uuid.UUID]bool) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		if !handled[id] {
			out = append(out, id)
		}
	}
	return out
}

func externalIDs(recs []types.CandidateRecord) []uuid.UUID {
	ids := make([]uuid.UUID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ExternalID
	}
	return ids
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
