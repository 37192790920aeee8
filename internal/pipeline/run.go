// Package pipeline provides the high-level orchestration of an export job execution:
// it loads the job snapshot, runs the job's shards in a bounded worker pool and records
// the shard and job results.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/data-export/internal/export"
	"github.com/jonathan/data-export/internal/progress"
	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/types"
)

// DefaultWorkers is the shard worker pool size used when none is configured
const DefaultWorkers = 4

// ExecutionStore reads and updates job executions
type ExecutionStore interface {
	GetJobExecution(ctx context.Context, id uuid.UUID) (*types.JobExecution, error)
	GetRequestContext(ctx context.Context, jobID uuid.UUID) (*types.RequestContext, error)
	StartJob(ctx context.Context, id uuid.UUID) error
	CompleteJob(ctx context.Context, id uuid.UUID, status types.ShardStatus, progress types.JobProgress) error
	LastCompletedAt(ctx context.Context, jobProfileID, exclude uuid.UUID) (*time.Time, error)
}

// ShardStore reads and updates the shards of a job execution
type ShardStore interface {
	ListShards(ctx context.Context, jobID uuid.UUID) ([]types.ExportShard, error)
	SaveShard(ctx context.Context, shard *types.ExportShard) error
}

// ProfileStore loads the mapping profile linked to a job profile
type ProfileStore interface {
	GetMappingProfile(ctx context.Context, jobProfileID uuid.UUID) (*types.MappingProfile, error)
}

// ReferenceDataStore loads the lookup tables used by translation functions
type ReferenceDataStore interface {
	GetReferenceData(ctx context.Context, tenant string) (*types.ReferenceData, error)
}

// Store is everything the runner persists to or loads from
type Store interface {
	ExecutionStore
	ShardStore
	ProfileStore
	ReferenceDataStore
	progress.Store
}

// ProgressEvent represents a finished shard during job execution
type ProgressEvent struct {
	JobID uuid.UUID
	Shard types.ExportShard
	// Done counts the shards finished by this run so far, out of Scheduled
	Done      int
	Scheduled int
}

// ProgressCallback is called when a shard finishes
type ProgressCallback func(event ProgressEvent)

// RunOptions holds configuration for running jobs
type RunOptions struct {
	Workers          int
	ProgressStep     int
	DeletedProfileID uuid.UUID
	OnProgress       ProgressCallback
	Logger           *slog.Logger
}

// Result is the recorded state of a job execution after a run
type Result struct {
	Execution types.JobExecution
	Status    types.ShardStatus
	Progress  types.JobProgress
	Shards    []types.ExportShard
	// Cancelled is set when the run stopped scheduling shards before all of them ran
	Cancelled bool
}

// Runner executes export jobs
type Runner struct {
	store    Store
	registry *export.Registry
	rules    *rules.Factory
	errors   export.ErrorLog
	opts     RunOptions
	logger   *slog.Logger
}

// NewRunner creates a Runner
func NewRunner(store Store, registry *export.Registry, factory *rules.Factory, errs export.ErrorLog, opts RunOptions) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		registry: registry,
		rules:    factory,
		errors:   errs,
		opts:     opts,
		logger:   logger.With("component", "pipeline"),
	}
}

// prepared is a loaded job ready to run
type prepared struct {
	job      *export.Job
	strategy export.Strategy
	shards   []types.ExportShard
}

// Run executes every unfinished shard of a job execution and records the job's final status.
//
// Cancelling ctx stops new shards from being scheduled. Shards already running finish
// and are recorded, and the job completes with the results it has.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (*Result, error) {
	p, err := r.prepare(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job := p.job

	// In-flight shards and the bookkeeping after them outlive cancellation.
	workCtx := context.WithoutCancel(ctx)

	shards := make([]types.ExportShard, len(p.shards))
	totals := make([]int, len(p.shards))
	pending := 0
	for i, shard := range p.shards {
		shards[i] = shard
		totals[i] = shard.Exported + shard.Failed + shard.Duplicated
		if !shard.Status.IsTerminal() {
			pending++
		}
	}
	r.logger.InfoContext(ctx, "starting job",
		"job_id", jobID, "id_type", job.Request().IDType, "profile", job.ProfileName(),
		"shards", len(shards), "pending", pending, "workers", r.opts.Workers)

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)
	var cancelled atomic.Bool
	var finished atomic.Int64
	events := make(chan ProgressEvent)
	notified := make(chan struct{})
	go func() {
		defer close(notified)
		for ev := range events {
			if r.opts.OnProgress != nil {
				r.opts.OnProgress(ev)
			}
		}
	}()

	for i := range shards {
		if shards[i].Status.IsTerminal() {
			continue
		}
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if ctx.Err() != nil {
				cancelled.Store(true)
				return nil
			}
			shards[i], totals[i] = r.runShard(workCtx, job, p.strategy, shards[i])
			events <- ProgressEvent{JobID: jobID, Shard: shards[i], Done: int(finished.Add(1)), Scheduled: pending}
			return nil
		})
	}
	_ = g.Wait()
	close(events)
	<-notified

	done := 0
	for _, shard := range shards {
		if shard.Status.IsTerminal() {
			done++
		}
	}

	jobProgress, status := aggregate(shards, totals)
	if cancelled.Load() && status == types.StatusCompleted {
		status = types.StatusCompletedWithErrors
	}
	if cancelled.Load() {
		r.logger.WarnContext(workCtx, "job cancelled before all shards ran",
			"job_id", jobID, "done", done, "skipped", len(shards)-done)
	}

	if err := r.store.CompleteJob(workCtx, jobID, status, jobProgress); err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to record job completion", Cause: err}
	}

	exec := job.Execution
	exec.Status = status
	exec.Progress = jobProgress
	r.logger.InfoContext(workCtx, "job finished",
		"job_id", jobID, "status", status,
		"exported", jobProgress.Exported, "failed", jobProgress.Failed,
		"duplicated", jobProgress.Duplicated, "total", jobProgress.Total)

	return &Result{
		Execution: exec,
		Status:    status,
		Progress:  jobProgress,
		Shards:    shards,
		Cancelled: cancelled.Load(),
	}, nil
}

// prepare loads everything shared by the job's shards and marks the job active
func (r *Runner) prepare(ctx context.Context, jobID uuid.UUID) (*prepared, error) {
	exec, err := r.store.GetJobExecution(ctx, jobID)
	if err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to load job execution", Cause: err}
	}
	if exec == nil {
		return nil, &Error{JobID: jobID, Message: "job execution not found"}
	}
	if exec.Status.IsTerminal() {
		return nil, &Error{JobID: jobID, Message: fmt.Sprintf("job execution already finished with status %s", exec.Status)}
	}

	rc, err := r.store.GetRequestContext(ctx, jobID)
	if err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to load request context", Cause: err}
	}
	if rc == nil {
		rc = &types.RequestContext{Tenant: exec.Tenant, UserID: exec.UserID}
	}

	strategy, err := r.registry.For(exec.Request.IDType)
	if err != nil {
		r.logger.ErrorContext(ctx, "unsupported export request", "job_id", jobID, "error", err)
		if cerr := r.store.CompleteJob(ctx, jobID, types.StatusFailed, exec.Progress); cerr != nil {
			r.logger.ErrorContext(ctx, "failed to record job failure", "job_id", jobID, "error", cerr)
		}
		return nil, &Error{JobID: jobID, Message: "unsupported export request", Cause: err}
	}

	profile, err := r.store.GetMappingProfile(ctx, exec.JobProfileID)
	if err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to load mapping profile", Cause: err}
	}

	reference, err := r.store.GetReferenceData(ctx, rc.Tenant)
	if err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to load reference data", Cause: err}
	}

	var since *time.Time
	if exec.Request.LastExport {
		since, err = r.store.LastCompletedAt(ctx, exec.JobProfileID, jobID)
		if err != nil {
			return nil, &Error{JobID: jobID, Message: "failed to find last export", Cause: err}
		}
	}

	shards, err := r.store.ListShards(ctx, jobID)
	if err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to list shards", Cause: err}
	}

	if err := r.store.StartJob(ctx, jobID); err != nil {
		return nil, &Error{JobID: jobID, Message: "failed to start job", Cause: err}
	}

	listener := progress.NewListener(jobID, r.store, r.opts.ProgressStep, r.opts.Logger)
	job := export.NewJob(export.JobConfig{
		Execution:        *exec,
		Context:          *rc,
		Profile:          profile,
		Reference:        reference,
		UpdatedSince:     since,
		Rules:            r.rules,
		Progress:         listener,
		Errors:           r.errors,
		DeletedProfileID: r.opts.DeletedProfileID,
	})

	return &prepared{job: job, strategy: strategy, shards: shards}, nil
}

// runShard exports one shard and records its outcome. It returns the recorded shard and
// the number of ids the shard read.
func (r *Runner) runShard(ctx context.Context, job *export.Job, strategy export.Strategy, shard types.ExportShard) (types.ExportShard, int) {
	shard.Status = types.StatusActive
	r.saveShard(ctx, &shard)

	outcome := strategy.ExportShard(ctx, job, shard)

	shard.Status = outcome.Status()
	shard.Exported = outcome.Exported
	shard.Failed = outcome.Failed
	shard.Duplicated = outcome.Duplicated
	shard.OutputPath, shard.Checksum, shard.OutputBytes = "", "", 0
	if outcome.Artifact != nil {
		shard.OutputPath = outcome.Artifact.Path
		shard.Checksum = outcome.Artifact.Checksum
		shard.OutputBytes = outcome.Artifact.Bytes
	}
	r.saveShard(ctx, &shard)
	return shard, outcome.Total
}

// saveShard persists shard state. Failures are logged; the job's completion record
// still carries the shard's counts.
func (r *Runner) saveShard(ctx context.Context, shard *types.ExportShard) {
	if err := r.store.SaveShard(ctx, shard); err != nil {
		r.logger.ErrorContext(ctx, "failed to save shard",
			"job_id", shard.JobExecutionID, "shard_id", shard.ID, "status", shard.Status, "error", err)
	}
}

// aggregate sums shard counts and decides the job status with the same terminal rule
// as a shard. A job whose counts say COMPLETED is downgraded when any shard was cut short.
func aggregate(shards []types.ExportShard, totals []int) (types.JobProgress, types.ShardStatus) {
	var p types.JobProgress
	for i, shard := range shards {
		p.Exported += shard.Exported
		p.Failed += shard.Failed
		p.Duplicated += shard.Duplicated
		p.Total += totals[i]
	}

	status := export.TerminalStatus(p.Exported, p.Failed)
	if status != types.StatusCompleted {
		return p, status
	}
	for _, shard := range shards {
		if shard.Status == types.StatusCompletedWithErrors || !shard.Status.IsTerminal() {
			return p, types.StatusCompletedWithErrors
		}
	}
	return p, status
}
