// Package tui renders workflow progress for people watching a terminal and
// asks them how to recover failed steps.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"

	"github.com/kingrea/stepwise/internal/workflow/engine"
)

const clearLine = "\r\033[K"

// Console is an engine.Observer that prints one line per step event. On a
// terminal it also keeps an elapsed-time line for the running step(s). It
// implements recovery.Prompter (see prompt.go).
type Console struct {
	out    io.Writer
	in     io.Reader
	tty    bool
	frames spinner.Spinner
	clock  func() time.Time

	mu      sync.Mutex
	active  []activeStep
	frame   int
	drawn   bool
	paused  bool
	pending []string
	stop    chan struct{}
	done    chan struct{}
}

type activeStep struct {
	ordinal int
	total   int
	name    string
	started time.Time
}

// ConsoleOption customizes a Console.
type ConsoleOption func(*Console)

// WithInput sets where prompt keystrokes are read from (default os.Stdin).
func WithInput(r io.Reader) ConsoleOption {
	return func(c *Console) {
		if r != nil {
			c.in = r
		}
	}
}

// WithTerminal forces terminal behaviour on or off.
func WithTerminal(tty bool) ConsoleOption {
	return func(c *Console) {
		c.tty = tty
	}
}

// WithConsoleClock injects the clock used for elapsed times.
func WithConsoleClock(clock func() time.Time) ConsoleOption {
	return func(c *Console) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewConsole writes progress to out.
func NewConsole(out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		out:    out,
		in:     os.Stdin,
		tty:    IsTerminal(out),
		frames: spinner.MiniDot,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe renders one engine event.
func (c *Console) Observe(ev engine.Event) {
	switch ev.Kind {
	case engine.EventRunStarted:
		c.println(accentStyle.Render("●") + fmt.Sprintf(" Running %q (%d steps)", ev.Workflow, ev.Total))
		c.startTicker()
	case engine.EventStepStarted:
		c.track(ev)
		line := accentStyle.Render(fmt.Sprintf("Step %d/%d", ev.Ordinal, ev.Total)) + " : " + ev.Step
		if ev.Attempt > 1 {
			line += hintStyle.Render(fmt.Sprintf(" (attempt %d)", ev.Attempt))
		}
		c.println(line)
		c.println(detailStyle.Render("  $ " + ev.Command))
	case engine.EventStepSucceeded:
		c.untrack(ev.Ordinal)
		c.println(successStyle.Render("✓") + fmt.Sprintf(" %s %s", ev.Step, hintStyle.Render(formatDuration(ev.Duration))))
	case engine.EventStepFailed:
		c.untrack(ev.Ordinal)
		c.println(errorStyle.Render("✗") + fmt.Sprintf(" %s: %s", ev.Step, failureReason(ev)))
		if tail := lastLines(ev.Result.Stderr, 3); tail != "" {
			c.println(detailStyle.Render(indent(tail, "  ")))
		}
	case engine.EventStepAbsorbed:
		c.println(warnStyle.Render("!") + fmt.Sprintf(" %s failed; skippable, continuing", ev.Step))
	case engine.EventStepRetrying:
		c.println(warnStyle.Render("↻") + fmt.Sprintf(" %s: running %s", ev.Step, detailStyle.Render(ev.Command)))
	case engine.EventStepSkipped:
		kind := "Step"
		if ev.Group {
			kind = "Group"
		}
		detail := string(ev.Skip.Reason)
		if ev.Skip.Detail != "" {
			detail += ": " + ev.Skip.Detail
		}
		c.println(skippedStyle.Render(fmt.Sprintf("○ %s %s skipped (%s)", kind, ev.Step, detail)))
	case engine.EventBranch:
		c.println(hintStyle.Render(fmt.Sprintf("  → %s: %s", ev.Step, ev.Label)))
	case engine.EventRunFinished:
		c.stopTicker()
		c.println(summary(ev))
	}
}

// Close stops the elapsed-time ticker if a run left it running.
func (c *Console) Close() {
	c.stopTicker()
}

func summary(ev engine.Event) string {
	var counts []string
	if ev.Report != nil {
		tally := ev.Report.Counts()
		for _, status := range []engine.StepStatus{
			engine.StepStatusSucceeded,
			engine.StepStatusAbsorbed,
			engine.StepStatusSkipped,
			engine.StepStatusFailed,
			engine.StepStatusInterrupted,
			engine.StepStatusNotRun,
		} {
			if n := tally[status]; n > 0 {
				counts = append(counts, fmt.Sprintf("%d %s", n, status))
			}
		}
	}
	line := fmt.Sprintf(" %s %s in %s", ev.Workflow, ev.Status, formatDuration(ev.Duration))
	if len(counts) > 0 {
		line += hintStyle.Render(" (" + strings.Join(counts, ", ") + ")")
	}
	switch ev.Status {
	case engine.RunStatusSucceeded:
		return successStyle.Render("✓") + line
	case engine.RunStatusInterrupted, engine.RunStatusAborted:
		return warnStyle.Render("!") + line
	default:
		if ev.Err != nil {
			line += ": " + ev.Err.Error()
		}
		return errorStyle.Render("✗") + line
	}
}

func failureReason(ev engine.Event) string {
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return fmt.Sprintf("exit code %d", ev.Result.ExitCode)
}

func (c *Console) track(ev engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = append(c.active, activeStep{ordinal: ev.Ordinal, total: ev.Total, name: ev.Step, started: c.clock()})
}

func (c *Console) untrack(ordinal int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, step := range c.active {
		if step.ordinal == ordinal {
			c.active = append(c.active[:i], c.active[i+1:]...)
			return
		}
	}
}

// println writes a full line, first erasing the status line. While a prompt
// owns the terminal, lines are held back until it closes.
func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.pending = append(c.pending, line)
		return
	}
	c.eraseLocked()
	fmt.Fprintln(c.out, line)
}

func (c *Console) eraseLocked() {
	if c.drawn {
		fmt.Fprint(c.out, clearLine)
		c.drawn = false
	}
}

func (c *Console) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eraseLocked()
	c.paused = true
}

func (c *Console) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	for _, line := range c.pending {
		fmt.Fprintln(c.out, line)
	}
	c.pending = nil
}

func (c *Console) startTicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tty || c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.tick(c.stop, c.done)
}

func (c *Console) stopTicker() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	c.mu.Lock()
	c.eraseLocked()
	c.mu.Unlock()
}

func (c *Console) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.frames.FPS)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if line := c.statusLocked(); line != "" {
				fmt.Fprint(c.out, clearLine+line)
				c.drawn = true
			}
			c.mu.Unlock()
		}
	}
}

// statusLocked renders the elapsed-time line for the latest running step.
func (c *Console) statusLocked() string {
	if c.paused || len(c.active) == 0 {
		return ""
	}
	c.frame = (c.frame + 1) % len(c.frames.Frames)
	step := c.active[len(c.active)-1]
	line := fmt.Sprintf("%s Step %d/%d : %s %s",
		accentStyle.Render(c.frames.Frames[c.frame]),
		step.ordinal, step.total, step.name,
		hintStyle.Render(formatDuration(c.clock().Sub(step.started))),
	)
	if others := len(c.active) - 1; others > 0 {
		line += hintStyle.Render(fmt.Sprintf(" (+%d running)", others))
	}
	return line
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
