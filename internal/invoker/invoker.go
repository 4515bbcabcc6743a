// Package invoker runs step commands as external processes and reports their
// exit code and captured output.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultShell interprets command lines when no shell is configured.
	DefaultShell = "sh"

	defaultWaitDelay = 5 * time.Second
)

// Output is the result of a process that ran to completion.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Invoker executes a command line.
type Invoker interface {
	Invoke(ctx context.Context, command string) (Output, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, command string) (Output, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, command string) (Output, error) {
	return f(ctx, command)
}

// SpawnError reports that a command could not be started at all, as opposed
// to a command that started and exited non-zero.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("invoker: start %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Shell runs commands through `<shell> -c`. Each command gets its own process
// group so cancellation reaches every child it spawned.
type Shell struct {
	shell     string
	dir       string
	env       []string
	waitDelay time.Duration
}

// Option customizes a Shell.
type Option func(*Shell)

// WithDir sets the working directory for spawned commands.
func WithDir(dir string) Option {
	return func(s *Shell) {
		s.dir = strings.TrimSpace(dir)
	}
}

// WithEnv appends environment entries (KEY=value) to the inherited environment.
func WithEnv(env ...string) Option {
	return func(s *Shell) {
		s.env = append(s.env, env...)
	}
}

// WithWaitDelay bounds how long a cancelled command may take to exit after
// SIGTERM before it is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(s *Shell) {
		if d > 0 {
			s.waitDelay = d
		}
	}
}

// NewShell returns a Shell invoker. An empty shell selects DefaultShell.
func NewShell(shell string, opts ...Option) *Shell {
	shell = strings.TrimSpace(shell)
	if shell == "" {
		shell = DefaultShell
	}
	s := &Shell{shell: shell, waitDelay: defaultWaitDelay}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the interpreter used for command lines.
func (s *Shell) Name() string {
	return s.shell
}

// Invoke runs command and waits for it to exit. A cancelled context
// terminates the process group and returns the context error.
func (s *Shell) Invoke(ctx context.Context, command string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	cmd := exec.CommandContext(ctx, s.shell, "-c", command)
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.WaitDelay = s.waitDelay

	if err := cmd.Start(); err != nil {
		return Output{}, &SpawnError{Command: command, Err: err}
	}
	err := cmd.Wait()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("invoker: %q interrupted: %w", command, ctxErr)
	}
	if err == nil {
		return out, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// A background child kept the output pipes open after the shell exited.
		out.ExitCode = normalizeExitCode(cmd.ProcessState.ExitCode())
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = normalizeExitCode(exitErr.ExitCode())
		return out, nil
	}
	return out, fmt.Errorf("invoker: wait %q: %w", command, err)
}

func normalizeExitCode(code int) int {
	if code < 0 {
		return 1
	}
	return code
}
