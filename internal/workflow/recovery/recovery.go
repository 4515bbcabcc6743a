package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow"
)

// State is a position in the per-step failure state machine.
type State string

const (
	StateRunning      State = "running"
	StateFailed       State = "failed"
	StateSkipped      State = "skipped"
	StateRetrying     State = "retrying"
	StateSubstituting State = "substituting"
	StateAborted      State = "aborted"
	StatePropagated   State = "propagated"
)

// Terminal reports whether the state ends the step's attempts.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateAborted, StatePropagated:
		return true
	}
	return false
}

// Operator choices, as typed at the prompt.
const (
	ChoiceRetry      = "1"
	ChoiceSubstitute = "2"
	ChoiceSkip       = "3"
	ChoiceAbort      = "4"
)

// Failure describes a failed attempt handed to the controller.
type Failure struct {
	Step    workflow.Step
	Ordinal int
	Total   int
	Attempt int
	// Command is what the failed attempt ran; it differs from Step.Command
	// after a substitution.
	Command string
	Result  results.Result
	// Err is set when the command could not be started.
	Err error
}

// Reason returns a one-line description of the failure.
func (f Failure) Reason() string {
	if f.Err != nil {
		return f.Err.Error()
	}
	return fmt.Sprintf("exit code %d", f.Result.ExitCode)
}

// Prompter asks an operator how to handle a failure. Returning an error
// (including io.EOF or a cancelled context) aborts the run.
type Prompter interface {
	Choose(ctx context.Context, failure Failure) (string, error)
	Replacement(ctx context.Context, failure Failure) (string, error)
}

// Outcome is the controller's verdict. Command is set for StateRetrying and
// StateSubstituting and holds the command line the next attempt runs.
type Outcome struct {
	State   State
	Command string
	// Err carries the prompt error that caused an abort, if any.
	Err error
}

// Controller applies the failure policy. Prompts from concurrent siblings
// are serialized; steps that are already running keep running.
type Controller struct {
	prompter    Prompter
	interactive bool
	mu          sync.Mutex
}

// New returns a controller. Without a prompter the controller is
// non-interactive regardless of interactive.
func New(prompter Prompter, interactive bool) *Controller {
	return &Controller{prompter: prompter, interactive: interactive && prompter != nil}
}

// Interactive reports whether failures are offered to an operator.
func (c *Controller) Interactive() bool {
	return c.interactive
}

// Decide moves a failed step to its next state.
func (c *Controller) Decide(ctx context.Context, failure Failure) Outcome {
	if !c.interactive {
		if failure.Step.Skippable {
			return Outcome{State: StateSkipped}
		}
		return Outcome{State: StatePropagated}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Outcome{State: StateAborted, Err: err}
	}
	choice, err := c.prompter.Choose(ctx, failure)
	if err != nil {
		return Outcome{State: StateAborted, Err: promptError(err)}
	}
	switch strings.TrimSpace(choice) {
	case ChoiceRetry:
		return Outcome{State: StateRetrying, Command: failure.Command}
	case ChoiceSubstitute:
		replacement, err := c.prompter.Replacement(ctx, failure)
		if err != nil {
			return Outcome{State: StateAborted, Err: promptError(err)}
		}
		replacement = strings.TrimSpace(replacement)
		if replacement == "" {
			return Outcome{State: StatePropagated}
		}
		return Outcome{State: StateSubstituting, Command: replacement}
	case ChoiceSkip:
		if failure.Step.Skippable {
			return Outcome{State: StateSkipped}
		}
		return Outcome{State: StatePropagated}
	case ChoiceAbort:
		return Outcome{State: StateAborted}
	default:
		return Outcome{State: StatePropagated}
	}
}

func promptError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("recovery: prompt: %w", err)
}
