package harness

import (
	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/model"
)

// Step kinds recorded in the trace.
const (
	KindSync      = "sync"
	KindAnalytics = "analytics"
	KindAdvance   = "advance"
	KindUpstream  = "upstream"
)

// TraceEvent records what one flow step did.
type TraceEvent struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`

	// Runs and Error are set by sync steps.
	Runs  []model.SyncRun `json:"runs,omitempty"`
	Error string          `json:"error,omitempty"`

	// Report and Recorded are set by analytics steps.
	Report   *analytics.Report `json:"report,omitempty"`
	Recorded int               `json:"recorded,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// LastReport returns the report of the most recent analytics step.
func (r *Result) LastReport() *analytics.Report {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if r.Trace[i].Report != nil {
			return r.Trace[i].Report
		}
	}
	return nil
}
