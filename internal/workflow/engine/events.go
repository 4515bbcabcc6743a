package engine

import (
	"time"

	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow/scheduler"
)

// EventKind enumerates progress notifications.
type EventKind string

const (
	EventRunStarted    EventKind = "run-started"
	EventStepStarted   EventKind = "step-started"
	EventStepSucceeded EventKind = "step-succeeded"
	EventStepFailed    EventKind = "step-failed"
	EventStepSkipped   EventKind = "step-skipped"
	EventStepAbsorbed  EventKind = "step-absorbed"
	EventStepRetrying  EventKind = "step-retrying"
	EventBranch        EventKind = "branch"
	EventRunFinished   EventKind = "run-finished"
)

// Event describes one progress notification. Fields that do not apply to a
// kind are left zero.
type Event struct {
	Kind     EventKind
	Time     time.Time
	RunID    string
	Workflow string

	Step    string
	ID      string
	Group   bool
	Ordinal int
	Total   int
	Attempt int
	Command string

	Result   results.Result
	Duration time.Duration
	Skip     scheduler.SkipReason
	Label    string
	Err      error

	// Set on EventRunFinished.
	Status RunStatus
	Report *Report
}

// Observer receives progress events. The engine delivers events one at a
// time, so implementations need no locking of their own. Observers must not
// block for long; they run on the step's goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}
