package scheduler

import (
	"context"
	"log/slog"

	"github.com/kingrea/stepwise/internal/logging"
	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow"
	"github.com/kingrea/stepwise/internal/workflow/resolver"
)

// SkipReasonCode enumerates why a step was not run.
type SkipReasonCode string

const (
	SkipReasonNone           SkipReasonCode = ""
	SkipReasonConditionFalse SkipReasonCode = "condition-false"
	SkipReasonConditionError SkipReasonCode = "condition-error"
)

// SkipReason explains why a step was excluded.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
	Err    error
}

// Decision is the gate's verdict for one step.
type Decision struct {
	Run  bool
	Skip SkipReason
}

// Gate decides whether a step may run against the results recorded so far.
type Gate struct{}

// New returns a Gate.
func New() *Gate {
	return &Gate{}
}

// MayRun checks dependencies first and the condition second. A missing
// dependency is fatal and returned as *workflow.MissingDependencyError. A
// condition that fails to evaluate counts as false; the error is reported in
// the decision and logged, never returned.
func (g *Gate) MayRun(ctx context.Context, node *resolver.Node, view results.View) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if missing := missingDependencies(node.Step.DependsOn, view); len(missing) > 0 {
		return Decision{}, &workflow.MissingDependencyError{Step: node.Name(), Missing: missing}
	}
	if node.Predicate == nil {
		return Decision{Run: true}, nil
	}
	ok, err := node.Predicate(ctx, view)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decision{}, ctxErr
		}
		logging.FromContext(ctx).Warn("condition evaluation failed; skipping step",
			slog.String("step", node.Name()),
			slog.String("condition", node.ConditionSource),
			slog.Any("error", err),
		)
		return Decision{Skip: SkipReason{Reason: SkipReasonConditionError, Detail: err.Error(), Err: err}}, nil
	}
	if !ok {
		detail := node.ConditionSource
		if detail == "" {
			detail = "predicate returned false"
		}
		return Decision{Skip: SkipReason{Reason: SkipReasonConditionFalse, Detail: detail}}, nil
	}
	return Decision{Run: true}, nil
}

func missingDependencies(ids []string, view results.View) []string {
	var missing []string
	for _, id := range ids {
		if !view.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
