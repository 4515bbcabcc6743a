package recovery

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// LinePrompter reads choices line by line. It suits pipes, CI logs and tests;
// terminals get the richer console prompt.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter reads from r and writes prompts to w.
func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(r), out: w}
}

// Choose prints the recovery menu and returns the raw answer.
func (p *LinePrompter) Choose(ctx context.Context, failure Failure) (string, error) {
	fmt.Fprintf(p.out, "\nStep %q failed (%s).\n", failure.Step.Name, failure.Reason())
	for _, line := range Menu(failure.Step.Skippable) {
		fmt.Fprintf(p.out, "  %s\n", line)
	}
	fmt.Fprint(p.out, "Choose an option [1-4]: ")
	return p.readLine(ctx)
}

// Replacement asks for the command to run instead.
func (p *LinePrompter) Replacement(ctx context.Context, failure Failure) (string, error) {
	fmt.Fprintf(p.out, "Replacement command for %q: ", failure.Step.Name)
	return p.readLine(ctx)
}

type lineResult struct {
	line string
	err  error
}

func (p *LinePrompter) readLine(ctx context.Context) (string, error) {
	done := make(chan lineResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		done <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.line, res.err
	}
}

// Menu returns the numbered recovery options.
func Menu(skippable bool) []string {
	skip := "3) Skip this step"
	if !skippable {
		skip = "3) Skip this step (not skippable: fails the run)"
	}
	return []string{
		"1) Retry the command",
		"2) Replace the command and retry",
		skip,
		"4) Abort the run",
	}
}
