package engine

import (
	"time"

	"github.com/kingrea/stepwise/internal/results"
)

// RunStatus is the final outcome of a run.
type RunStatus string

const (
	RunStatusSucceeded   RunStatus = "succeeded"
	RunStatusFailed      RunStatus = "failed"
	RunStatusAborted     RunStatus = "aborted"
	RunStatusInterrupted RunStatus = "interrupted"
)

// StepStatus is the final outcome of one leaf.
type StepStatus string

const (
	StepStatusNotRun      StepStatus = "not-run"
	StepStatusSucceeded   StepStatus = "succeeded"
	StepStatusFailed      StepStatus = "failed"
	StepStatusSkipped     StepStatus = "skipped"
	StepStatusAbsorbed    StepStatus = "absorbed"
	StepStatusInterrupted StepStatus = "interrupted"
)

// Report summarizes a finished run.
type Report struct {
	RunID     string                    `json:"run_id"`
	Workflow  string                    `json:"workflow"`
	Status    RunStatus                 `json:"status"`
	Error     string                    `json:"error,omitempty"`
	StartedAt time.Time                 `json:"started_at"`
	Duration  time.Duration             `json:"duration"`
	Total     int                       `json:"total"`
	Steps     []StepReport              `json:"steps"`
	Results   map[string]results.Result `json:"results,omitempty"`
}

// StepReport is the last known state of one leaf, in declaration order.
type StepReport struct {
	Ordinal    int           `json:"ordinal"`
	Name       string        `json:"name"`
	ID         string        `json:"id,omitempty"`
	Status     StepStatus    `json:"status"`
	Command    string        `json:"command"`
	Attempts   int           `json:"attempts,omitempty"`
	ExitCode   int           `json:"exit_code,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Branch     string        `json:"branch,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Counts tallies step statuses.
func (r Report) Counts() map[StepStatus]int {
	counts := make(map[StepStatus]int)
	for _, step := range r.Steps {
		counts[step.Status]++
	}
	return counts
}

// Succeeded reports whether the run finished without an unrecovered failure.
func (r Report) Succeeded() bool {
	return r.Status == RunStatusSucceeded
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
