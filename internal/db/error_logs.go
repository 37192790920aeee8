package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
)

// SaveErrorLog persists an error-log entry
func (db *DB) SaveErrorLog(ctx context.Context, entry *errorlog.Entry) error {
	var affected []byte
	if len(entry.AffectedRecord) > 0 {
		affected = entry.AffectedRecord
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO error_logs (id, job_execution_id, code, message, affected_record_id, affected_record_hrid, affected_record, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.JobExecutionID, string(entry.Code), entry.Message,
		entry.AffectedRecordID, entry.AffectedRecordHRID, affected, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save error log: %w", err)
	}
	return nil
}

// ListErrorLogs returns the error-log entries of a job execution in creation order
func (db *DB) ListErrorLogs(ctx context.Context, jobID uuid.UUID) ([]errorlog.Entry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_execution_id, code, message, affected_record_id, affected_record_hrid, affected_record, created_at
		 FROM error_logs WHERE job_execution_id = $1 ORDER BY created_at, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var entries []errorlog.Entry
	for rows.Next() {
		var (
			e        errorlog.Entry
			code     string
			affected []byte
		)
		if err := rows.Scan(&e.ID, &e.JobExecutionID, &code, &e.Message, &e.AffectedRecordID,
			&e.AffectedRecordHRID, &affected, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan error log: %w", err)
		}
		e.Code = errorlog.Code(code)
		e.AffectedRecord = affected
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
