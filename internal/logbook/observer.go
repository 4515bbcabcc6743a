package logbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/stepwise/internal/workflow/engine"
)

// Observe records engine events as journal lines.
func (l *Logbook) Observe(ev engine.Event) {
	if l == nil {
		return
	}
	run := shortRunID(ev.RunID)
	switch ev.Kind {
	case engine.EventRunStarted:
		l.Info("[%s] run %q started (%d steps)", run, ev.Workflow, ev.Total)
	case engine.EventStepStarted:
		if ev.Attempt > 1 {
			l.Info("[%s] step %d/%d %q attempt %d: %s", run, ev.Ordinal, ev.Total, ev.Step, ev.Attempt, ev.Command)
			return
		}
		l.Info("[%s] step %d/%d %q: %s", run, ev.Ordinal, ev.Total, ev.Step, ev.Command)
	case engine.EventStepSucceeded:
		l.Info("[%s] step %q succeeded in %s", run, ev.Step, ev.Duration.Round(time.Millisecond))
	case engine.EventStepFailed:
		l.Error("[%s] step %q failed: %s", run, ev.Step, failureDetail(ev))
	case engine.EventStepAbsorbed:
		l.Warn("[%s] step %q failed but is skippable; continuing", run, ev.Step)
	case engine.EventStepRetrying:
		l.Warn("[%s] step %q retrying with: %s", run, ev.Step, ev.Command)
	case engine.EventStepSkipped:
		kind := "step"
		if ev.Group {
			kind = "group"
		}
		l.Info("[%s] %s %q skipped (%s: %s)", run, kind, ev.Step, ev.Skip.Reason, ev.Skip.Detail)
	case engine.EventBranch:
		l.Info("[%s] step %q branch %q", run, ev.Step, ev.Label)
	case engine.EventRunFinished:
		if ev.Err != nil {
			l.Error("[%s] run %s after %s: %v", run, ev.Status, ev.Duration.Round(time.Millisecond), ev.Err)
			return
		}
		l.Info("[%s] run %s after %s", run, ev.Status, ev.Duration.Round(time.Millisecond))
	}
}

func failureDetail(ev engine.Event) string {
	if ev.Err != nil {
		return ev.Err.Error()
	}
	detail := fmt.Sprintf("exit code %d", ev.Result.ExitCode)
	if stderr := strings.TrimSpace(ev.Result.Stderr); stderr != "" {
		detail += ": " + stderr
	}
	return detail
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
