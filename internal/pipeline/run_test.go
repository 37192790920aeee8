package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/export"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/types"
)

// memStore is an in-memory Store
type memStore struct {
	mu        sync.Mutex
	exec      *types.JobExecution
	rc        *types.RequestContext
	profile   *types.MappingProfile
	shards    []types.ExportShard
	saves     []types.ExportShard
	lastDone  *time.Time
	started   bool
	completed bool
	status    types.ShardStatus
	progress  types.JobProgress
}

func (s *memStore) GetJobExecution(_ context.Context, id uuid.UUID) (*types.JobExecution, error) {
	if s.exec == nil || s.exec.ID != id {
		return nil, nil
	}
	exec := *s.exec
	return &exec, nil
}

func (s *memStore) GetRequestContext(context.Context, uuid.UUID) (*types.RequestContext, error) {
	return s.rc, nil
}

func (s *memStore) StartJob(context.Context, uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, _ uuid.UUID, status types.ShardStatus, p types.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.status = status
	s.progress = p
	return nil
}

func (s *memStore) LastCompletedAt(context.Context, uuid.UUID, uuid.UUID) (*time.Time, error) {
	return s.lastDone, nil
}

func (s *memStore) ListShards(context.Context, uuid.UUID) ([]types.ExportShard, error) {
	return append([]types.ExportShard(nil), s.shards...), nil
}

func (s *memStore) SaveShard(_ context.Context, shard *types.ExportShard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, *shard)
	return nil
}

func (s *memStore) GetMappingProfile(context.Context, uuid.UUID) (*types.MappingProfile, error) {
	return s.profile, nil
}

func (s *memStore) GetReferenceData(context.Context, string) (*types.ReferenceData, error) {
	return &types.ReferenceData{}, nil
}

func (s *memStore) GetProgress(context.Context, uuid.UUID) (*types.JobProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	return &p, nil
}

func (s *memStore) SaveProgress(_ context.Context, _ uuid.UUID, p types.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
	return nil
}

// savedStatuses returns the statuses saved for one shard, in order
func (s *memStore) savedStatuses(id uuid.UUID) []types.ShardStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ShardStatus
	for _, sh := range s.saves {
		if sh.ID == id {
			out = append(out, sh.Status)
		}
	}
	return out
}

// stubStrategy returns a canned outcome per shard
type stubStrategy struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]*export.Outcome
	ran      []uuid.UUID
	jobs     []*export.Job
	hook     func(shard types.ExportShard)
}

func (s *stubStrategy) ExportShard(_ context.Context, job *export.Job, shard types.ExportShard) *export.Outcome {
	if s.hook != nil {
		s.hook(shard)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, shard.ID)
	s.jobs = append(s.jobs, job)
	if o, ok := s.outcomes[shard.ID]; ok {
		return o
	}
	return &export.Outcome{}
}

type fixture struct {
	store    *memStore
	strategy *stubStrategy
	jobID    uuid.UUID
}

func newFixture(shardCount int) *fixture {
	jobID := uuid.New()
	store := &memStore{
		exec: &types.JobExecution{
			ID:           jobID,
			JobProfileID: uuid.New(),
			Tenant:       "diku",
			Status:       types.StatusScheduled,
			Request:      types.ExportRequest{IDType: types.IDTypeInstance},
		},
		rc: &types.RequestContext{Tenant: "diku", UserName: "diku_admin"},
	}
	for i := 0; i < shardCount; i++ {
		store.shards = append(store.shards, types.ExportShard{
			ID:             uuid.New(),
			JobExecutionID: jobID,
			Status:         types.StatusScheduled,
		})
	}
	return &fixture{
		store:    store,
		strategy: &stubStrategy{outcomes: map[uuid.UUID]*export.Outcome{}},
		jobID:    jobID,
	}
}

func (f *fixture) runner(t *testing.T, opts RunOptions) *Runner {
	t.Helper()
	registry := export.NewRegistry(export.Deps{})
	registry.Register(types.IDTypeInstance, f.strategy)
	return NewRunner(f.store, registry, nil, errorlog.NewLogger(nil, nil), opts)
}

func (f *fixture) shard(i int) types.ExportShard {
	return f.store.shards[i]
}

func TestRun_AggregatesShardOutcomes(t *testing.T) {
	f := newFixture(2)
	f.strategy.outcomes[f.shard(0).ID] = &export.Outcome{
		Exported: 5, Total: 5,
		Artifact: &output.Artifact{Path: "/tmp/a.mrc", Bytes: 1200, Records: 5, Checksum: "abc"},
	}
	f.strategy.outcomes[f.shard(1).ID] = &export.Outcome{Exported: 3, Failed: 1, Duplicated: 1, Total: 5}

	result, err := f.runner(t, RunOptions{Workers: 2}).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	assert.True(t, f.store.started)
	assert.True(t, f.store.completed)
	assert.Equal(t, types.StatusCompletedWithErrors, result.Status)
	assert.Equal(t, types.StatusCompletedWithErrors, f.store.status)
	assert.Equal(t, types.JobProgress{Exported: 8, Failed: 1, Duplicated: 1, Total: 10}, result.Progress)
	assert.Equal(t, result.Progress, f.store.progress)
	assert.False(t, result.Cancelled)

	require.Len(t, result.Shards, 2)
	first := result.Shards[0]
	assert.Equal(t, types.StatusCompleted, first.Status)
	assert.Equal(t, "/tmp/a.mrc", first.OutputPath)
	assert.Equal(t, "abc", first.Checksum)
	assert.Equal(t, int64(1200), first.OutputBytes)
	assert.Equal(t, types.StatusCompletedWithErrors, result.Shards[1].Status)
	assert.Empty(t, result.Shards[1].OutputPath)
}

func TestRun_ShardMarkedActiveBeforeExport(t *testing.T) {
	f := newFixture(1)
	f.strategy.outcomes[f.shard(0).ID] = &export.Outcome{Exported: 1, Total: 1}

	_, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	assert.Equal(t, []types.ShardStatus{types.StatusActive, types.StatusCompleted}, f.store.savedStatuses(f.shard(0).ID))
}

func TestRun_JobStatus(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []*export.Outcome
		want     types.ShardStatus
	}{
		{
			name:     "all exported",
			outcomes: []*export.Outcome{{Exported: 2, Total: 2}, {Exported: 1, Total: 1}},
			want:     types.StatusCompleted,
		},
		{
			name:     "nothing exported",
			outcomes: []*export.Outcome{{Failed: 2, Total: 2}, {Total: 0}},
			want:     types.StatusFailed,
		},
		{
			name:     "empty shards only",
			outcomes: []*export.Outcome{{}, {}},
			want:     types.StatusFailed,
		},
		{
			name:     "one shard interrupted",
			outcomes: []*export.Outcome{{Exported: 2, Total: 2}, {Exported: 1, Total: 1, Interrupted: true}},
			want:     types.StatusCompletedWithErrors,
		},
		{
			name:     "empty shard next to exported shard",
			outcomes: []*export.Outcome{{Exported: 2, Total: 2}, {}},
			want:     types.StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(len(tt.outcomes))
			for i, o := range tt.outcomes {
				f.strategy.outcomes[f.shard(i).ID] = o
			}
			result, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestRun_SkipsFinishedShards(t *testing.T) {
	f := newFixture(2)
	f.store.shards[0].Status = types.StatusCompleted
	f.store.shards[0].Exported = 4
	f.strategy.outcomes[f.shard(1).ID] = &export.Outcome{Exported: 2, Total: 2}

	result, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{f.shard(1).ID}, f.strategy.ran)
	assert.Equal(t, 6, result.Progress.Exported)
	assert.Equal(t, 6, result.Progress.Total)
	assert.Empty(t, f.store.savedStatuses(f.shard(0).ID))
}

func TestRun_CancelStopsScheduling(t *testing.T) {
	f := newFixture(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.strategy.outcomes[f.shard(0).ID] = &export.Outcome{Exported: 2, Total: 2}
	f.strategy.hook = func(shard types.ExportShard) {
		if shard.ID == f.shard(0).ID {
			cancel()
		}
	}

	result, err := f.runner(t, RunOptions{Workers: 1}).Run(ctx, f.jobID)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, []uuid.UUID{f.shard(0).ID}, f.strategy.ran)
	assert.Equal(t, types.StatusCompleted, result.Shards[0].Status)
	assert.Equal(t, types.StatusScheduled, result.Shards[1].Status)
	assert.Equal(t, types.StatusScheduled, result.Shards[2].Status)
	assert.Equal(t, types.StatusCompletedWithErrors, result.Status)
	assert.True(t, f.store.completed)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.runner(t, RunOptions{}).Run(ctx, f.jobID)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Empty(t, f.strategy.ran)
	assert.Equal(t, types.StatusFailed, result.Status)
}

func TestRun_JobNotFound(t *testing.T) {
	f := newFixture(1)

	_, err := f.runner(t, RunOptions{}).Run(context.Background(), uuid.New())
	require.Error(t, err)

	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Contains(t, pErr.Message, "not found")
	assert.False(t, f.store.started)
}

func TestRun_AlreadyFinished(t *testing.T) {
	f := newFixture(1)
	f.store.exec.Status = types.StatusCompleted

	_, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already finished")
	assert.Empty(t, f.strategy.ran)
}

func TestRun_UnsupportedIDType(t *testing.T) {
	f := newFixture(1)
	f.store.exec.Request.IDType = "BOGUS"

	_, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
	require.Error(t, err)

	var unsupported *export.UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, types.IDType("BOGUS"), unsupported.IDType)
	assert.True(t, f.store.completed)
	assert.Equal(t, types.StatusFailed, f.store.status)
	assert.False(t, f.store.started)
}

func TestRun_JobSnapshot(t *testing.T) {
	f := newFixture(2)
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.store.lastDone = &since
	f.store.exec.Request.LastExport = true
	f.store.profile = &types.MappingProfile{ID: uuid.New(), Name: "custom"}

	_, err := f.runner(t, RunOptions{Workers: 2}).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	require.Len(t, f.strategy.jobs, 2)
	job := f.strategy.jobs[0]
	assert.Same(t, job, f.strategy.jobs[1], "shards share one job snapshot")
	require.NotNil(t, job.UpdatedSince)
	assert.Equal(t, since, *job.UpdatedSince)
	assert.Equal(t, "custom", job.ProfileName())
	assert.Equal(t, "diku_admin", job.Context.UserName)
	assert.NotNil(t, job.Progress)
}

func TestRun_NoLastExportLeavesRangeOpen(t *testing.T) {
	f := newFixture(1)
	since := time.Now()
	f.store.lastDone = &since

	_, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	require.Len(t, f.strategy.jobs, 1)
	assert.Nil(t, f.strategy.jobs[0].UpdatedSince)
}

func TestRun_FallsBackToExecutionTenant(t *testing.T) {
	f := newFixture(1)
	f.store.rc = nil

	_, err := f.runner(t, RunOptions{}).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	require.Len(t, f.strategy.jobs, 1)
	assert.Equal(t, "diku", f.strategy.jobs[0].Context.Tenant)
}

func TestRun_ReportsEveryShard(t *testing.T) {
	f := newFixture(3)
	for i := 0; i < 3; i++ {
		f.strategy.outcomes[f.shard(i).ID] = &export.Outcome{Exported: 1, Total: 1}
	}

	var mu sync.Mutex
	var events []ProgressEvent
	opts := RunOptions{Workers: 2, OnProgress: func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}}

	_, err := f.runner(t, opts).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	require.Len(t, events, 3)
	seen := map[int]bool{}
	for _, ev := range events {
		assert.Equal(t, f.jobID, ev.JobID)
		assert.Equal(t, 3, ev.Scheduled)
		assert.Equal(t, types.StatusCompleted, ev.Shard.Status)
		seen[ev.Done] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seen)
}

func TestAggregate(t *testing.T) {
	shards := []types.ExportShard{
		{Status: types.StatusCompleted, Exported: 3},
		{Status: types.StatusFailed, Failed: 2},
	}
	p, status := aggregate(shards, []int{3, 2})
	assert.Equal(t, types.JobProgress{Exported: 3, Failed: 2, Total: 5}, p)
	assert.Equal(t, types.StatusCompletedWithErrors, status)

	p, status = aggregate(nil, nil)
	assert.Equal(t, types.JobProgress{}, p)
	assert.Equal(t, types.StatusFailed, status)

	_, status = aggregate([]types.ExportShard{
		{Status: types.StatusCompleted, Exported: 1},
		{Status: types.StatusScheduled},
	}, []int{1, 0})
	assert.Equal(t, types.StatusCompletedWithErrors, status)
}
