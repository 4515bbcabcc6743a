package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/stepwise/internal/logging"
	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow"
	"github.com/kingrea/stepwise/internal/workflow/recovery"
	"github.com/kingrea/stepwise/internal/workflow/resolver"
	"github.com/kingrea/stepwise/internal/workflow/scheduler"
)

// run holds the state of a single Engine.Run call.
type run struct {
	engine   *Engine
	plan     *resolver.Plan
	report   *Report
	store    *results.Store
	gate     *scheduler.Gate
	recovery *recovery.Controller
	cancel   context.CancelCauseFunc
	slots    *slots

	emitMu sync.Mutex
}

func (r *run) runSequence(ctx context.Context, nodes []*resolver.Node) error {
	for _, node := range nodes {
		if err := stopped(ctx); err != nil {
			return err
		}
		if err := r.runNode(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) runNode(ctx context.Context, node *resolver.Node) error {
	decision, err := r.gate.MayRun(ctx, node, r.store)
	if err != nil {
		var missing *workflow.MissingDependencyError
		if errors.As(err, &missing) {
			if !node.IsGroup() {
				r.slots.update(node, func(s *StepReport) {
					s.Status = StepStatusFailed
					s.Error = err.Error()
				})
			}
			r.emit(r.stepEvent(EventStepFailed, node, func(ev *Event) { ev.Err = err }))
		}
		return err
	}
	if !decision.Run {
		r.skip(ctx, node, decision.Skip)
		return nil
	}
	if node.IsGroup() {
		return r.runGroup(ctx, node)
	}
	return r.runLeaf(ctx, node)
}

// runGroup starts every child at once and waits for all of them, even after
// one has failed, so no command is left running unobserved.
func (r *run) runGroup(ctx context.Context, node *resolver.Node) error {
	logging.FromContext(ctx).Debug("group started", slog.String("group", node.Name()), slog.Int("children", len(node.Children)))
	var g errgroup.Group
	for _, child := range node.Children {
		child := child
		g.Go(func() error {
			if err := stopped(ctx); err != nil {
				return err
			}
			return r.runNode(ctx, child)
		})
	}
	if err := g.Wait(); err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, workflow.ErrAborted) {
			return cause
		}
		return err
	}
	return nil
}

// runLeaf drives one step through the failure state machine until it
// succeeds, is skipped, or ends the run.
func (r *run) runLeaf(ctx context.Context, node *resolver.Node) error {
	log := logging.FromContext(ctx).With(slog.String("step", node.Name()))
	command := node.Step.Command
	for attempt := 1; ; attempt++ {
		if err := stopped(ctx); err != nil {
			return err
		}
		r.slots.update(node, func(s *StepReport) {
			s.Command = command
			s.Attempts = attempt
		})
		r.emit(r.stepEvent(EventStepStarted, node, func(ev *Event) {
			ev.Attempt = attempt
			ev.Command = command
		}))
		log.Debug("step started", slog.Int("attempt", attempt), slog.String("command", command))

		start := r.engine.now()
		out, invokeErr := r.engine.invoker.Invoke(ctx, command)
		elapsed := r.engine.now().Sub(start)

		if invokeErr != nil && ctx.Err() != nil {
			r.slots.update(node, func(s *StepReport) {
				s.Status = StepStatusInterrupted
				s.Duration = elapsed
				s.Error = invokeErr.Error()
			})
			return context.Cause(ctx)
		}

		result := results.Result{
			Command:  command,
			ExitCode: out.ExitCode,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Duration: elapsed,
			Attempt:  attempt,
		}
		if invokeErr == nil {
			r.store.Record(node.ID(), result)
		}
		r.slots.update(node, func(s *StepReport) {
			s.ExitCode = out.ExitCode
			s.Duration = elapsed
			s.Error = errorString(invokeErr)
		})

		if invokeErr == nil && out.ExitCode == 0 {
			r.slots.update(node, func(s *StepReport) { s.Status = StepStatusSucceeded })
			r.emit(r.stepEvent(EventStepSucceeded, node, func(ev *Event) {
				ev.Attempt = attempt
				ev.Command = command
				ev.Result = result
				ev.Duration = elapsed
			}))
			log.Info("step succeeded", slog.Int("attempt", attempt), slog.Duration("duration", elapsed))
			r.branch(node, result)
			return nil
		}

		failure := recovery.Failure{
			Step:    node.Step,
			Ordinal: node.Ordinal,
			Total:   r.plan.Total,
			Attempt: attempt,
			Command: command,
			Result:  result,
			Err:     invokeErr,
		}
		r.emit(r.stepEvent(EventStepFailed, node, func(ev *Event) {
			ev.Attempt = attempt
			ev.Command = command
			ev.Result = result
			ev.Duration = elapsed
			ev.Err = invokeErr
		}))
		log.Warn("step failed", slog.Int("attempt", attempt), slog.String("reason", failure.Reason()))

		outcome := r.recovery.Decide(ctx, failure)
		log.Debug("recovery decided", slog.String("state", string(outcome.State)))
		switch outcome.State {
		case recovery.StateRetrying, recovery.StateSubstituting:
			next := outcome.Command
			r.emit(r.stepEvent(EventStepRetrying, node, func(ev *Event) {
				ev.Attempt = attempt + 1
				ev.Command = next
			}))
			command = next
		case recovery.StateSkipped:
			r.slots.update(node, func(s *StepReport) { s.Status = StepStatusAbsorbed })
			r.emit(r.stepEvent(EventStepAbsorbed, node, func(ev *Event) {
				ev.Attempt = attempt
				ev.Result = result
				ev.Err = invokeErr
			}))
			if invokeErr == nil {
				r.branch(node, result)
			}
			return nil
		case recovery.StateAborted:
			if outcome.Err != nil && ctx.Err() != nil {
				r.slots.update(node, func(s *StepReport) { s.Status = StepStatusInterrupted })
				return context.Cause(ctx)
			}
			r.slots.update(node, func(s *StepReport) { s.Status = StepStatusFailed })
			if outcome.Err != nil {
				log.Warn("recovery prompt closed; aborting", slog.Any("error", outcome.Err))
			}
			r.cancel(workflow.ErrAborted)
			return workflow.ErrAborted
		default:
			r.slots.update(node, func(s *StepReport) { s.Status = StepStatusFailed })
			return &workflow.CommandFailureError{
				Step:     node.Name(),
				Command:  command,
				ExitCode: out.ExitCode,
				Stderr:   out.Stderr,
				Err:      invokeErr,
			}
		}
	}
}

// skip marks a node, and every leaf beneath it, as not run.
func (r *run) skip(ctx context.Context, node *resolver.Node, reason scheduler.SkipReason) {
	r.slots.updateSubtree(node, func(s *StepReport) {
		s.Status = StepStatusSkipped
		s.SkipReason = string(reason.Reason)
	})
	logging.FromContext(ctx).Info("step skipped",
		slog.String("step", node.Name()),
		slog.String("reason", string(reason.Reason)),
		slog.String("detail", reason.Detail),
	)
	r.emit(r.stepEvent(EventStepSkipped, node, func(ev *Event) { ev.Skip = reason }))
}

func (r *run) branch(node *resolver.Node, result results.Result) {
	if node.Step.Callback == nil {
		return
	}
	label := node.Step.Callback(result)
	if label == "" {
		return
	}
	r.slots.update(node, func(s *StepReport) { s.Branch = label })
	r.emit(r.stepEvent(EventBranch, node, func(ev *Event) {
		ev.Label = label
		ev.Result = result
	}))
}

func (r *run) stepEvent(kind EventKind, node *resolver.Node, fill func(*Event)) Event {
	ev := Event{
		Kind:    kind,
		Step:    node.Name(),
		ID:      node.ID(),
		Group:   node.IsGroup(),
		Ordinal: node.Ordinal,
		Total:   r.plan.Total,
	}
	if fill != nil {
		fill(&ev)
	}
	return ev
}

func (r *run) emit(ev Event) {
	if len(r.engine.observers) == 0 {
		return
	}
	ev.Time = r.engine.now()
	ev.RunID = r.report.RunID
	ev.Workflow = r.report.Workflow
	if ev.Total == 0 {
		ev.Total = r.plan.Total
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	for _, obs := range r.engine.observers {
		obs.Observe(ev)
	}
}

// stopped returns the cancellation cause once the run context is done.
func stopped(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}

// slots holds one StepReport per leaf, indexed by ordinal. Each leaf only
// ever touches its own slot.
type slots struct {
	mu    sync.Mutex
	steps []StepReport
}

func newSlots(plan *resolver.Plan) *slots {
	leaves := plan.Leaves()
	s := &slots{steps: make([]StepReport, len(leaves))}
	for i, leaf := range leaves {
		s.steps[i] = StepReport{
			Ordinal: leaf.Ordinal,
			Name:    leaf.Name(),
			ID:      leaf.ID(),
			Status:  StepStatusNotRun,
			Command: leaf.Step.Command,
		}
	}
	return s
}

func (s *slots) update(node *resolver.Node, fn func(*StepReport)) {
	if node.IsGroup() || node.Ordinal < 1 || node.Ordinal > len(s.steps) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.steps[node.Ordinal-1])
}

func (s *slots) updateSubtree(node *resolver.Node, fn func(*StepReport)) {
	if !node.IsGroup() {
		s.update(node, fn)
		return
	}
	for _, child := range node.Children {
		s.updateSubtree(child, fn)
	}
}

func (s *slots) reports() []StepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StepReport, len(s.steps))
	copy(out, s.steps)
	return out
}
