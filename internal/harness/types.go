package harness

import "time"

// NumChecks is the number of checks every run plans.
const NumChecks = 6

// Check descriptions, in report order.
const (
	DescSubjectExited = "Successful call to daemon() and normal exit"
	DescTraceReadable = "Resulting trace is readable"
	DescBeforeFound   = "before_daemon event found in resulting trace"
	DescParentPID     = "Parent pid reported in trace is correct"
	DescAfterFound    = "after_daemon event found in resulting trace"
	DescDaemonPID     = "Daemon pid reported in trace is correct"
)

// StageResult is what a pipeline stage tells the pipeline to do next.
// Only Continue, Recorded and Fatal implement it.
type StageResult interface {
	stageResult()
}

// Continue moves on to the next stage without reporting.
type Continue struct{}

// Recorded reports one check and moves on regardless of Passed.
type Recorded struct {
	Passed      bool
	Description string
}

// Fatal aborts the run with Reason as the bail diagnostic.
type Fatal struct {
	Reason string
}

func (Continue) stageResult() {}
func (Recorded) stageResult() {}
func (Fatal) stageResult() {}

// CheckResult is one reported check.
type CheckResult struct {
	Index       int    `json:"index"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
}

// Result is the outcome of one harness run.
type Result struct {
	SessionID  string        `json:"session_id,omitempty"`
	Planned    int           `json:"planned"`
	Checks     []CheckResult `json:"checks"`
	Bailed     bool          `json:"bailed"`
	BailReason string        `json:"bail_reason,omitempty"`
	Started    time.Time     `json:"started"`
	Finished   time.Time     `json:"finished"`
}

// NewResult creates an empty result planning NumChecks checks.
func NewResult() *Result {
	return &Result{
		Planned: NumChecks,
		Checks:  []CheckResult{},
	}
}

// AddCheck appends a reported check.
func (r *Result) AddCheck(index int, passed bool, description string) {
	r.Checks = append(r.Checks, CheckResult{Index: index, Passed: passed, Description: description})
}

// Complete reports whether every planned check was reported. This decides
// the exit status; pass or fail is carried by the checks themselves.
func (r *Result) Complete() bool {
	return !r.Bailed && len(r.Checks) == r.Planned
}

// Pass reports whether the run completed and every check passed.
func (r *Result) Pass() bool {
	if !r.Complete() {
		return false
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}
