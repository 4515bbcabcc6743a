package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAborted is the cancellation cause recorded when an operator aborts a run.
var ErrAborted = errors.New("workflow: run aborted")

// MissingDependencyError reports a step reached before the results it
// depends on were recorded. It always halts the run.
type MissingDependencyError struct {
	Step    string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("workflow: step %q depends on %s, which has no recorded result", e.Step, strings.Join(e.Missing, ", "))
}

// CommandFailureError reports a step whose command failed and was not
// recovered. Err is set when the command never started.
type CommandFailureError struct {
	Step     string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow: step %q failed: %v", e.Step, e.Err)
	}
	msg := fmt.Sprintf("workflow: step %q exited with code %d", e.Step, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

func (e *CommandFailureError) Unwrap() error {
	return e.Err
}

func lastLine(text string) string {
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return text[idx+1:]
	}
	return text
}
