package errorlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/types"
)

// Entry is one persisted error-log record of a job execution
type Entry struct {
	ID                 uuid.UUID       `json:"id"`
	JobExecutionID     uuid.UUID       `json:"job_execution_id"`
	Code               Code            `json:"code"`
	Message            string          `json:"message"`
	AffectedRecordID   *uuid.UUID      `json:"affected_record_id,omitempty"`
	AffectedRecordHRID string          `json:"affected_record_hrid,omitempty"`
	AffectedRecord     json.RawMessage `json:"affected_record,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Store persists error-log entries
type Store interface {
	SaveErrorLog(ctx context.Context, entry *Entry) error
}

// Logger writes error-log entries to a structured log and, when a store is configured,
// persists them for operator audit. Store failures are logged and never returned:
// an audit write must not change the outcome of an export.
type Logger struct {
	store  Store
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLogger creates a Logger. A nil store only logs; a nil logger uses slog.Default().
func NewLogger(store Store, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:  store,
		logger: logger.With("component", "errorlog"),
		seen:   make(map[string]struct{}),
	}
}

// LogGeneral records an error that is not tied to a single record
func (l *Logger) LogGeneral(ctx context.Context, jobID uuid.UUID, code Code, values ...string) {
	l.save(ctx, &Entry{
		JobExecutionID: jobID,
		Code:           code,
		Message:        Format(code, values...),
	})
}

// LogOnce records a general error unless an identical message was already recorded
// by this logger. It reports whether the entry was written.
func (l *Logger) LogOnce(ctx context.Context, jobID uuid.UUID, code Code, values ...string) bool {
	msg := Format(code, values...)
	key := jobID.String() + "|" + msg

	l.mu.Lock()
	if _, dup := l.seen[key]; dup {
		l.mu.Unlock()
		return false
	}
	l.seen[key] = struct{}{}
	l.mu.Unlock()

	l.save(ctx, &Entry{JobExecutionID: jobID, Code: code, Message: msg})
	return true
}

// LogWithAffectedRecord records an error about one record, keeping its content for triage
func (l *Logger) LogWithAffectedRecord(ctx context.Context, jobID uuid.UUID, record types.CandidateRecord, code Code, values ...string) {
	id := record.ExternalID
	entry := &Entry{
		JobExecutionID:     jobID,
		Code:               code,
		Message:            Format(code, values...),
		AffectedRecordID:   &id,
		AffectedRecordHRID: record.HRID,
	}
	if json.Valid(record.Content) {
		entry.AffectedRecord = record.Content
	}
	l.save(ctx, entry)
}

func (l *Logger) save(ctx context.Context, entry *Entry) {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	attrs := []any{"job_id", entry.JobExecutionID, "code", entry.Code}
	if entry.AffectedRecordID != nil {
		attrs = append(attrs, "record_id", *entry.AffectedRecordID)
	}
	l.logger.WarnContext(ctx, entry.Message, attrs...)

	if l.store == nil {
		return
	}
	if err := l.store.SaveErrorLog(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "failed to persist error log", "job_id", entry.JobExecutionID, "code", entry.Code, "error", err)
	}
}
