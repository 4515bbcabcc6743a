package logbook

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow/engine"
	"github.com/kingrea/stepwise/internal/workflow/scheduler"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestObserveWritesRunJournal(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "journal.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	events := []engine.Event{
		{Kind: engine.EventRunStarted, RunID: "0123456789abcdef", Workflow: "deploy", Total: 2},
		{Kind: engine.EventStepStarted, RunID: "0123456789abcdef", Step: "build", Ordinal: 1, Total: 2, Attempt: 1, Command: "make"},
		{Kind: engine.EventStepFailed, RunID: "0123456789abcdef", Step: "build", Result: results.Result{ExitCode: 2, Stderr: "boom\nbang\n"}},
		{Kind: engine.EventStepSkipped, RunID: "0123456789abcdef", Step: "checks", Group: true, Skip: scheduler.SkipReason{Reason: scheduler.SkipReasonConditionFalse, Detail: "false"}},
		{Kind: engine.EventRunFinished, RunID: "0123456789abcdef", Status: engine.RunStatusFailed, Err: errors.New("step failed"), Duration: 1500 * time.Millisecond},
	}
	for _, ev := range events {
		book.Observe(ev)
	}
	lines, total := book.Tail(10)
	if total != len(events) {
		t.Fatalf("expected %d lines, got %d: %v", len(events), total, lines)
	}
	checks := []string{
		`[01234567] run "deploy" started (2 steps)`,
		`step 1/2 "build": make`,
		`ERROR [01234567] step "build" failed: exit code 2: boom | bang`,
		`group "checks" skipped (condition-false: false)`,
		`run failed after 1.5s: step failed`,
	}
	for idx, want := range checks {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %q", idx, lines[idx], want)
		}
	}
}

func TestTailOnMissingFile(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "absent.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v %d", lines, total)
	}
}
