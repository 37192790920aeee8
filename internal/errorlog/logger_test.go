package errorlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-export/internal/types"
)

type memStore struct {
	mu      sync.Mutex
	entries []*Entry
	err     error
}

func (m *memStore) SaveErrorLog(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		code     Code
		values   []string
		expected string
	}{
		{
			name:     "unaffiliated tenants",
			code:     CodeUnaffiliatedTenants,
			values:   []string{"0001", "jdoe", "college,university"},
			expected: "0001 - the user jdoe does not have permissions to access the holdings record in college,university data tenant(s)",
		},
		{
			name:     "missing values",
			code:     CodeRecordNotFound,
			expected: "Record not found: ",
		},
		{
			name:     "extra values appended",
			code:     CodeRecordNotFound,
			values:   []string{"a", "b"},
			expected: "Record not found: a (b)",
		},
		{
			name:     "unknown code",
			code:     Code("custom"),
			values:   []string{"x"},
			expected: "custom x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.code, tt.values...))
		})
	}
}

func TestLogger_LogGeneral(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, quietLogger())
	jobID := uuid.New()

	l.LogGeneral(context.Background(), jobID, CodeRecordNotFound, "abc")

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, jobID, entry.JobExecutionID)
	assert.Equal(t, CodeRecordNotFound, entry.Code)
	assert.Equal(t, "Record not found: abc", entry.Message)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Nil(t, entry.AffectedRecordID)
}

func TestLogger_LogOnce(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, quietLogger())
	jobID := uuid.New()
	ctx := context.Background()

	assert.True(t, l.LogOnce(ctx, jobID, CodeRuleBuild, "p", "bad"))
	assert.False(t, l.LogOnce(ctx, jobID, CodeRuleBuild, "p", "bad"))
	assert.True(t, l.LogOnce(ctx, jobID, CodeRuleBuild, "p", "other"))
	assert.True(t, l.LogOnce(ctx, uuid.New(), CodeRuleBuild, "p", "bad"))

	assert.Len(t, store.entries, 3)
}

func TestLogger_LogOnceConcurrent(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, quietLogger())
	jobID := uuid.New()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.LogOnce(context.Background(), jobID, CodeRuleBuild, "p", "bad")
		}()
	}
	wg.Wait()

	assert.Len(t, store.entries, 1)
}

func TestLogger_LogWithAffectedRecord(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, quietLogger())
	record := types.CandidateRecord{
		ExternalID: uuid.New(),
		HRID:       "in0001",
		Content:    []byte(`{"title":"x"}`),
	}

	l.LogWithAffectedRecord(context.Background(), uuid.New(), record, CodeDuplicateSRS, "in0001", record.ExternalID.String())

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	require.NotNil(t, entry.AffectedRecordID)
	assert.Equal(t, record.ExternalID, *entry.AffectedRecordID)
	assert.Equal(t, "in0001", entry.AffectedRecordHRID)
	assert.JSONEq(t, `{"title":"x"}`, string(entry.AffectedRecord))
}

func TestLogger_InvalidContentNotStored(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, quietLogger())

	l.LogWithAffectedRecord(context.Background(), uuid.New(), types.CandidateRecord{Content: []byte("{broken")}, CodeConversion, "x", "bad json")

	require.Len(t, store.entries, 1)
	assert.Nil(t, store.entries[0].AffectedRecord)
}

func TestLogger_StoreFailureIsSwallowed(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	l := NewLogger(store, quietLogger())

	assert.NotPanics(t, func() {
		l.LogGeneral(context.Background(), uuid.New(), CodeSinkFailure, "s", "disk full")
	})
}

func TestLogger_NilStore(t *testing.T) {
	l := NewLogger(nil, nil)
	assert.NotPanics(t, func() {
		l.LogGeneral(context.Background(), uuid.New(), CodeSinkFailure, "s", "disk full")
	})
}
