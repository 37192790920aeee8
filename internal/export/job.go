package export

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/generation"
	"github.com/jonathan/data-export/internal/progress"
	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/types"
)

// JobConfig holds everything loaded once before the shards of a job run
type JobConfig struct {
	Execution        types.JobExecution
	Context          types.RequestContext
	Profile          *types.MappingProfile
	Reference        *types.ReferenceData
	UpdatedSince     *time.Time
	Rules            *rules.Factory
	Progress         *progress.Listener
	Errors           ErrorLog
	DeletedProfileID uuid.UUID
}

// Job is the read-only snapshot shared by every shard of one job execution.
// Rules are built on first use and reused by all shards.
type Job struct {
	Execution    types.JobExecution
	Context      types.RequestContext
	Profile      *types.MappingProfile
	Reference    *types.ReferenceData
	UpdatedSince *time.Time
	Progress     *progress.Listener
	Errors       ErrorLog
	Generations  *generation.Resolver

	rules func() ([]rules.Rule, error)
}

// NewJob creates the job snapshot
func NewJob(cfg JobConfig) *Job {
	factory := cfg.Rules
	profile := cfg.Profile
	errs := cfg.Errors
	if errs == nil {
		errs = errorlog.NewLogger(nil, nil)
	}
	return &Job{
		Execution:    cfg.Execution,
		Context:      cfg.Context,
		Profile:      profile,
		Reference:    cfg.Reference,
		UpdatedSince: cfg.UpdatedSince,
		Progress:     cfg.Progress,
		Errors:       errs,
		Generations:  generation.NewResolver(cfg.Execution.ID, cfg.Execution.JobProfileID, cfg.DeletedProfileID, errs),
		rules: sync.OnceValues(func() ([]rules.Rule, error) {
			if factory == nil {
				return nil, errors.New("no rule factory configured")
			}
			return factory.GetRules(profile)
		}),
	}
}

// ID returns the job execution id
func (j *Job) ID() uuid.UUID {
	return j.Execution.ID
}

// Request returns the export request of the job
func (j *Job) Request() types.ExportRequest {
	return j.Execution.Request
}

// Rules returns the job's rules, building them on first call
func (j *Job) Rules() ([]rules.Rule, error) {
	return j.rules()
}

// ProfileName returns a printable name of the mapping profile
func (j *Job) ProfileName() string {
	if j.Profile == nil {
		return "default"
	}
	if j.Profile.Name != "" {
		return j.Profile.Name
	}
	return j.Profile.ID.String()
}

// UsesStoredRecords reports whether stored MARC records are passed through before
// anything is generated from inventory JSON.
func (j *Job) UsesStoredRecords() bool {
	if j.Profile == nil || j.Profile.Default || j.Generations.TargetsDeleted() {
		return true
	}
	return j.Profile.HasRecordType(types.RecordTypeSRS)
}

// WantsHoldings reports whether holdings or item data is added to instance records
func (j *Job) WantsHoldings() bool {
	return j.Profile.HasRecordType(types.RecordTypeHoldings) || j.Profile.HasRecordType(types.RecordTypeItem)
}

// childRules returns the subset of rules that read holdings or items
func childRules(rs []rules.Rule) []rules.Rule {
	var out []rules.Rule
	for _, r := range rs {
		for _, ds := range r.DataSources {
			if strings.HasPrefix(ds.From, "$.holdings") || strings.HasPrefix(ds.From, "$.items") {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
