// pkg/pipeline/result.go
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
)

// State is a step of the ingestion state machine
type State string

// Ingestion states
const (
	StateReceived      State = "received"
	StateSkipped       State = "skipped"
	StateCleaning      State = "cleaning"
	StateEnsuringTable State = "ensuring-table"
	StateLoading       State = "loading"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Feature job stages
const (
	StateReading     State = "reading"
	StateAggregating State = "aggregating"
)

// Transition records entry into a state
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// IngestResult represents the result of one ingestion run
type IngestResult struct {
	RunID       string                    `json:"run_id"`
	Object      string                    `json:"object"`
	Table       string                    `json:"table,omitempty"`
	State       State                     `json:"state"`
	Reason      string                    `json:"reason,omitempty"`
	Transitions []Transition              `json:"transitions"`
	Rows        int                       `json:"rows"`
	LoadedRows  int64                     `json:"loaded_rows"`
	BadRecords  int64                     `json:"bad_records"`
	JobID       string                    `json:"job_id,omitempty"`
	Operations  []model.CleaningOperation `json:"operations,omitempty"`
	Drift       []string                  `json:"drift,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Category    string                    `json:"category,omitempty"`
	StartTime   time.Time                 `json:"start_time"`
	EndTime     time.Time                 `json:"end_time"`
	Duration    time.Duration             `json:"duration_ns"`

	err error
}

// NewIngestResult starts a run for an object in the received state
func NewIngestResult(object string) *IngestResult {
	r := &IngestResult{
		RunID:     uuid.New().String(),
		Object:    object,
		StartTime: time.Now().UTC(),
	}
	r.enter(StateReceived)
	return r
}

func (r *IngestResult) enter(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, Transition{State: s, At: time.Now().UTC()})
}

// Skip ends the run without loading
func (r *IngestResult) Skip(reason string) {
	r.Reason = reason
	r.enter(StateSkipped)
	r.complete()
}

// Fail ends the run in the failed state
func (r *IngestResult) Fail(err *Error) {
	r.err = err
	r.Error = err.Error()
	r.Category = err.Category.String()
	r.enter(StateFailed)
	r.complete()
}

// Done ends the run successfully
func (r *IngestResult) Done() {
	r.enter(StateDone)
	r.complete()
}

// AddWarning adds a warning to the result
func (r *IngestResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Err returns the failure of a failed run
func (r *IngestResult) Err() error {
	return r.err
}

// Succeeded reports whether the run ended without failure
func (r *IngestResult) Succeeded() bool {
	return r.State == StateDone || r.State == StateSkipped
}

func (r *IngestResult) complete() {
	r.EndTime = time.Now().UTC()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// FeatureResult represents the result of a feature job run
type FeatureResult struct {
	RunID          string        `json:"run_id"`
	Table          string        `json:"table"`
	Inputs         []string      `json:"inputs"`
	Missing        []string      `json:"missing,omitempty"`
	UnionRows      int           `json:"union_rows"`
	NullKeyRows    int           `json:"null_key_rows"`
	Customers      int           `json:"customers"`
	MissingColumns []string      `json:"missing_columns,omitempty"`
	LoadedRows     int64         `json:"loaded_rows"`
	JobID          string        `json:"job_id,omitempty"`
	Verified       bool          `json:"verified"`
	Warnings       []string      `json:"warnings,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration_ns"`
}

// AddWarning adds a warning to the result
func (r *FeatureResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Complete marks the run as complete and calculates duration
func (r *FeatureResult) Complete() {
	r.EndTime = time.Now().UTC()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
