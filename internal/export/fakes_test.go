package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/marc"
	"github.com/jonathan/data-export/internal/output"
	"github.com/jonathan/data-export/internal/progress"
	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/slicing"
	"github.com/jonathan/data-export/internal/tenant"
	"github.com/jonathan/data-export/internal/types"
)

const testTenant = "diku"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// kindStore is a single-tenant record store keyed by record kind
type kindStore struct {
	mu      sync.Mutex
	records []types.CandidateRecord
}

func (s *kindStore) add(recs ...types.CandidateRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
}

func candidate(kind types.RecordKind, externalID uuid.UUID, content string) types.CandidateRecord {
	return types.CandidateRecord{
		ID:         uuid.New(),
		ExternalID: externalID,
		Tenant:     testTenant,
		Kind:       kind,
		Content:    json.RawMessage(content),
		State:      types.StateActual,
	}
}

func child(kind types.RecordKind, externalID, parent uuid.UUID, content string) types.CandidateRecord {
	rec := candidate(kind, externalID, content)
	rec.ParentID = &parent
	return rec
}

func (s *kindStore) FindByExternalIDs(_ context.Context, _ types.RequestContext, kind types.RecordKind, ids []uuid.UUID) ([]types.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CandidateRecord
	for _, rec := range s.records {
		if rec.Kind == kind && slices.Contains(ids, rec.ExternalID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *kindStore) FindByParentIDs(_ context.Context, _ types.RequestContext, kind types.RecordKind, parentIDs []uuid.UUID) ([]types.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CandidateRecord
	for _, rec := range s.records {
		if rec.Kind == kind && rec.ParentID != nil && slices.Contains(parentIDs, *rec.ParentID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// listPager pages over a fixed id list in insertion order
type listPager struct {
	ids    []uuid.UUID
	failAt int
	calls  int
	query  slicing.IDQuery
}

func (p *listPager) NextIDs(_ context.Context, query slicing.IDQuery, after *uuid.UUID, limit int) ([]uuid.UUID, error) {
	p.calls++
	p.query = query
	if p.failAt == p.calls {
		return nil, errors.New("connection reset")
	}
	start := 0
	if after != nil {
		start = slices.Index(p.ids, *after) + 1
	}
	end := min(start+limit, len(p.ids))
	return slices.Clone(p.ids[start:end]), nil
}

// fakeEncoder renders readable strings instead of MARC binary
type fakeEncoder struct{}

func (fakeEncoder) Encode(tree any, _ []rules.Rule, _ *types.ReferenceData, opts marc.Options) (string, error) {
	m := tree.(map[string]any)
	holdings := m["holdings"].([]any)
	items := m["items"].([]any)
	if inst, ok := m["instance"].(map[string]any); ok {
		hrid, _ := inst["hrid"].(string)
		if hrid == "toolong" {
			return "", &marc.EncodeError{TooLong: true, Length: 120000}
		}
		return fmt.Sprintf("bib:%s:h%d:i%d", hrid, len(holdings), len(items)), nil
	}
	h := holdings[0].(map[string]any)
	return fmt.Sprintf("hold:%s:i%d:%c", h["hrid"], len(items), opts.Type), nil
}

func (fakeEncoder) Fields(tree any, _ []rules.Rule, _ *types.ReferenceData) ([]marc.Field, error) {
	m := tree.(map[string]any)
	fields := make([]marc.Field, 0)
	for range m["holdings"].([]any) {
		fields = append(fields, marc.Field{Tag: "952"})
	}
	return fields, nil
}

func (fakeEncoder) EncodeStored(content []byte, extra []marc.Field, opts marc.Options) (string, error) {
	if !json.Valid(content) {
		return "", &marc.EncodeError{Message: "malformed MARC JSON"}
	}
	return fmt.Sprintf("stored:%s:x%d:d%t:%c", content, len(extra), opts.Deleted, opts.Type), nil
}

// memSink collects records in memory
type memSink struct {
	records  []string
	closed   bool
	closeErr error
	writeErr error
}

func (s *memSink) Write(record string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *memSink) Artifact() output.Artifact {
	return output.Artifact{Path: "mem", Records: len(s.records)}
}

// recordingLog captures error-log entries by code
type recordingLog struct {
	mu       sync.Mutex
	messages map[errorlog.Code][]string
	seen     map[string]bool
}

func newRecordingLog() *recordingLog {
	return &recordingLog{messages: map[errorlog.Code][]string{}, seen: map[string]bool{}}
}

func (l *recordingLog) LogGeneral(_ context.Context, _ uuid.UUID, code errorlog.Code, values ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[code] = append(l.messages[code], errorlog.Format(code, values...))
}

func (l *recordingLog) LogOnce(ctx context.Context, jobID uuid.UUID, code errorlog.Code, values ...string) bool {
	key := string(code) + strings.Join(values, "|")
	l.mu.Lock()
	if l.seen[key] {
		l.mu.Unlock()
		return false
	}
	l.seen[key] = true
	l.mu.Unlock()
	l.LogGeneral(ctx, jobID, code, values...)
	return true
}

func (l *recordingLog) LogWithAffectedRecord(ctx context.Context, jobID uuid.UUID, _ types.CandidateRecord, code errorlog.Code, values ...string) {
	l.LogGeneral(ctx, jobID, code, values...)
}

func (l *recordingLog) count(code errorlog.Code) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages[code])
}

type fixture struct {
	store   *kindStore
	pager   *listPager
	errs    *recordingLog
	sink    *memSink
	openErr error
	deps    Deps
}

func newFixture() *fixture {
	f := &fixture{
		store: &kindStore{},
		pager: &listPager{},
		errs:  newRecordingLog(),
		sink:  &memSink{},
	}
	f.deps = Deps{
		Pager:   f.pager,
		Tenants: tenant.NewResolver(f.store, nil, f.errs, quietLogger()),
		Encoder: fakeEncoder{},
		Sinks: func(_, _ uuid.UUID, _ string) (Sink, error) {
			if f.openErr != nil {
				return nil, f.openErr
			}
			return f.sink, nil
		},
		BatchSize: 2,
		Logger:    quietLogger(),
	}
	return f
}

// page adds ids to the shard's id range
func (f *fixture) page(ids ...uuid.UUID) {
	f.pager.ids = append(f.pager.ids, ids...)
}

func (f *fixture) job(t *testing.T, profile *types.MappingProfile, deletedProfileID uuid.UUID) *Job {
	t.Helper()
	catalog, err := rules.LoadCatalog()
	require.NoError(t, err)

	execution := types.JobExecution{ID: uuid.New(), Tenant: testTenant, Request: types.ExportRequest{IDType: types.IDTypeInstance}}
	if profile != nil {
		execution.JobProfileID = profile.ID
	}
	return NewJob(JobConfig{
		Execution:        execution,
		Context:          types.RequestContext{Tenant: testTenant, UserID: uuid.New()},
		Profile:          profile,
		Rules:            rules.NewFactory(catalog, nil),
		Progress:         progress.NewListener(execution.ID, nil, 1, quietLogger()),
		Errors:           f.errs,
		DeletedProfileID: deletedProfileID,
	})
}

func shard() types.ExportShard {
	return types.ExportShard{ID: uuid.New(), FromID: uuid.Nil, ToID: uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")}
}

func instanceProfile(recordTypes ...types.RecordType) *types.MappingProfile {
	if len(recordTypes) == 0 {
		recordTypes = []types.RecordType{types.RecordTypeInstance}
	}
	return &types.MappingProfile{
		ID:           uuid.New(),
		Name:         "custom",
		RecordTypes:  recordTypes,
		OutputFormat: types.OutputFormatMARC,
	}
}

func defaultProfile() *types.MappingProfile {
	p := instanceProfile()
	p.Name = "Default instances export job profile"
	p.Default = true
	return p
}
