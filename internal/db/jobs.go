package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/data-export/internal/types"
)

// -----------------------------------------------------------------------------
// Job executions
// -----------------------------------------------------------------------------

// CreateJobExecution inserts a scheduled job execution and assigns its id when unset
func (db *DB) CreateJobExecution(ctx context.Context, job *types.JobExecution, userName string) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.StatusScheduled
	}
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal export request: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO job_executions (id, job_profile_id, tenant, user_id, user_name, request, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.JobProfileID, job.Tenant, job.UserID, userName, request, string(job.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create job execution: %w", err)
	}
	return nil
}

// GetJobExecution retrieves a job execution by id
func (db *DB) GetJobExecution(ctx context.Context, id uuid.UUID) (*types.JobExecution, error) {
	var (
		job     types.JobExecution
		request []byte
		status  string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_profile_id, tenant, user_id, request, status,
		        exported, failed, duplicated, total, started_at, completed_at
		 FROM job_executions WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.JobProfileID, &job.Tenant, &job.UserID, &request, &status,
		&job.Progress.Exported, &job.Progress.Failed, &job.Progress.Duplicated, &job.Progress.Total,
		&job.StartedAt, &job.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job execution: %w", err)
	}
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export request of %s: %w", id, err)
	}
	job.Status = types.ShardStatus(status)
	return &job, nil
}

// GetRequestContext returns the acting tenant and user of a job execution
func (db *DB) GetRequestContext(ctx context.Context, jobID uuid.UUID) (*types.RequestContext, error) {
	var rc types.RequestContext
	err := db.pool.QueryRow(ctx,
		`SELECT tenant, user_id, user_name FROM job_executions WHERE id = $1`,
		jobID,
	).Scan(&rc.Tenant, &rc.UserID, &rc.UserName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get request context: %w", err)
	}
	return &rc, nil
}

// StartJob marks a job execution active
func (db *DB) StartJob(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE job_executions SET status = $1, started_at = COALESCE(started_at, NOW()) WHERE id = $2`,
		string(types.StatusActive), id,
	)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job execution not found: %s", id)
	}
	return nil
}

// CompleteJob stores the final status and totals of a job execution
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, status types.ShardStatus, progress types.JobProgress) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE job_executions
		 SET status = $1, exported = $2, failed = $3, duplicated = $4, total = $5, completed_at = NOW()
		 WHERE id = $6`,
		string(status), progress.Exported, progress.Failed, progress.Duplicated, progress.Total, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// LastCompletedAt returns when the most recent successful job of a job profile finished,
// ignoring the job execution given in exclude
func (db *DB) LastCompletedAt(ctx context.Context, jobProfileID, exclude uuid.UUID) (*time.Time, error) {
	var completedAt *time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT MAX(completed_at) FROM job_executions
		 WHERE job_profile_id = $1 AND id <> $2 AND status IN ($3, $4)`,
		jobProfileID, exclude, string(types.StatusCompleted), string(types.StatusCompletedWithErrors),
	).Scan(&completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed export: %w", err)
	}
	return completedAt, nil
}

// -----------------------------------------------------------------------------
// Progress
// -----------------------------------------------------------------------------

// GetProgress returns the persisted progress of a job execution
func (db *DB) GetProgress(ctx context.Context, jobID uuid.UUID) (*types.JobProgress, error) {
	var p types.JobProgress
	err := db.pool.QueryRow(ctx,
		`SELECT exported, failed, duplicated, total FROM job_executions WHERE id = $1`,
		jobID,
	).Scan(&p.Exported, &p.Failed, &p.Duplicated, &p.Total)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return &p, nil
}

// SaveProgress stores the progress of a job execution
func (db *DB) SaveProgress(ctx context.Context, jobID uuid.UUID, p types.JobProgress) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE job_executions SET exported = $1, failed = $2, duplicated = $3, total = $4 WHERE id = $5`,
		p.Exported, p.Failed, p.Duplicated, p.Total, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Shards
// -----------------------------------------------------------------------------

// CreateShard inserts a scheduled shard and assigns its id when unset
func (db *DB) CreateShard(ctx context.Context, shard *types.ExportShard) error {
	if shard.ID == uuid.Nil {
		shard.ID = uuid.New()
	}
	if shard.Status == "" {
		shard.Status = types.StatusScheduled
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO export_shards (id, job_execution_id, from_id, to_id, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		shard.ID, shard.JobExecutionID, shard.FromID, shard.ToID, string(shard.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create shard: %w", err)
	}
	return nil
}

// ListShards returns the shards of a job execution ordered by range start
func (db *DB) ListShards(ctx context.Context, jobID uuid.UUID) ([]types.ExportShard, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_execution_id, from_id, to_id, status, exported, failed, duplicated,
		        output_path, checksum, output_bytes, updated_at
		 FROM export_shards WHERE job_execution_id = $1 ORDER BY from_id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shards: %w", err)
	}
	defer rows.Close()

	var shards []types.ExportShard
	for rows.Next() {
		var (
			s      types.ExportShard
			status string
		)
		if err := rows.Scan(&s.ID, &s.JobExecutionID, &s.FromID, &s.ToID, &status, &s.Exported, &s.Failed,
			&s.Duplicated, &s.OutputPath, &s.Checksum, &s.OutputBytes, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shard: %w", err)
		}
		s.Status = types.ShardStatus(status)
		shards = append(shards, s)
	}
	return shards, rows.Err()
}

// SaveShard stores the status, counts and artifact of a shard
func (db *DB) SaveShard(ctx context.Context, shard *types.ExportShard) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE export_shards
		 SET status = $1, exported = $2, failed = $3, duplicated = $4,
		     output_path = $5, checksum = $6, output_bytes = $7, updated_at = NOW()
		 WHERE id = $8`,
		string(shard.Status), shard.Exported, shard.Failed, shard.Duplicated,
		shard.OutputPath, shard.Checksum, shard.OutputBytes, shard.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save shard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("shard not found: %s", shard.ID)
	}
	return nil
}
