package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/stepwise/internal/invoker"
	"github.com/kingrea/stepwise/internal/logging"
	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow"
	"github.com/kingrea/stepwise/internal/workflow/recovery"
	"github.com/kingrea/stepwise/internal/workflow/resolver"
	"github.com/kingrea/stepwise/internal/workflow/scheduler"
)

// Engine executes workflows through an invoker.
type Engine struct {
	invoker   invoker.Invoker
	prompter  recovery.Prompter
	observers []Observer
	logger    *slog.Logger
	clock     func() time.Time
	newRunID  func() string
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithObserver registers an observer for progress events.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		if obs != nil {
			e.observers = append(e.observers, obs)
		}
	}
}

// WithPrompter sets who is asked about failures in interactive runs.
func WithPrompter(p recovery.Prompter) Option {
	return func(e *Engine) {
		e.prompter = p
	}
}

// WithLogger sets the logger used when the run context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRunIDs overrides run id generation (primarily for tests).
func WithRunIDs(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newRunID = fn
		}
	}
}

// New wires a workflow engine to the invoker that runs step commands.
func New(inv invoker.Invoker, opts ...Option) (*Engine, error) {
	if inv == nil {
		return nil, fmt.Errorf("workflow engine: invoker is required")
	}
	engine := &Engine{
		invoker:  inv,
		clock:    time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// RunOptions selects the failure policy for one run.
type RunOptions struct {
	// Interactive offers retry/substitute/skip/abort on failures. It requires
	// a prompter.
	Interactive bool
	// TestMode still runs every command but never prompts: unrecovered
	// failures are returned to the caller.
	TestMode bool
}

// Run executes def to completion. The returned report is always populated;
// the error is non-nil whenever the status is not RunStatusSucceeded.
// Cancelling ctx terminates running commands and yields RunStatusInterrupted.
func (e *Engine) Run(ctx context.Context, def workflow.Definition, opts RunOptions) (Report, error) {
	if e.logger != nil {
		ctx = logging.WithLogger(ctx, e.logger)
	}
	started := e.now()
	report := Report{
		RunID:     e.newRunID(),
		Workflow:  def.Name,
		StartedAt: started,
	}
	plan, err := resolver.Resolve(def)
	if err != nil {
		report.Status = RunStatusFailed
		report.Error = err.Error()
		return report, err
	}
	report.Workflow = plan.Definition.Name
	report.Total = plan.Total

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		engine:   e,
		plan:     plan,
		report:   &report,
		store:    results.NewStore(),
		gate:     scheduler.New(),
		recovery: recovery.New(e.prompter, opts.Interactive && !opts.TestMode),
		cancel:   cancel,
		slots:    newSlots(plan),
	}
	log := logging.FromContext(ctx).With(slog.String("run_id", report.RunID), slog.String("workflow", report.Workflow))
	log.Info("run started", slog.Int("steps", plan.Total), slog.Bool("interactive", r.recovery.Interactive()))
	r.emit(Event{Kind: EventRunStarted, Total: plan.Total})

	runErr := r.runSequence(runCtx, plan.Nodes)

	report.Status, runErr = classify(ctx, runCtx, runErr)
	report.Error = errorString(runErr)
	report.Duration = e.now().Sub(started)
	report.Steps = r.slots.reports()
	report.Results = r.store.Snapshot()

	attrs := []any{slog.String("status", string(report.Status)), slog.Duration("duration", report.Duration)}
	if runErr != nil {
		log.Warn("run finished", append(attrs, slog.Any("error", runErr))...)
	} else {
		log.Info("run finished", attrs...)
	}
	final := report
	r.emit(Event{Kind: EventRunFinished, Status: report.Status, Err: runErr, Duration: report.Duration, Report: &final})
	return report, runErr
}

func classify(parent, runCtx context.Context, err error) (RunStatus, error) {
	if errors.Is(context.Cause(runCtx), workflow.ErrAborted) {
		return RunStatusAborted, workflow.ErrAborted
	}
	if err == nil {
		return RunStatusSucceeded, nil
	}
	if parent.Err() != nil {
		return RunStatusInterrupted, fmt.Errorf("workflow engine: run interrupted: %w", context.Cause(parent))
	}
	return RunStatusFailed, err
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
