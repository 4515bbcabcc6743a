package recovery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow"
)

type scriptedPrompter struct {
	choices      []string
	replacements []string
	err          error
	asked        int
}

func (p *scriptedPrompter) Choose(context.Context, Failure) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.asked++
	choice := p.choices[0]
	p.choices = p.choices[1:]
	return choice, nil
}

func (p *scriptedPrompter) Replacement(context.Context, Failure) (string, error) {
	if len(p.replacements) == 0 {
		return "", io.EOF
	}
	r := p.replacements[0]
	p.replacements = p.replacements[1:]
	return r, nil
}

func failure(skippable bool) Failure {
	step := workflow.Leaf("deploy", "./deploy.sh", workflow.WithID("deploy"))
	step.Skippable = skippable
	return Failure{Step: step, Command: step.Command, Attempt: 1, Result: results.Result{ExitCode: 2}}
}

func TestNonInteractivePolicy(t *testing.T) {
	c := New(nil, true)
	if c.Interactive() {
		t.Fatalf("controller without a prompter must be non-interactive")
	}
	if got := c.Decide(context.Background(), failure(true)); got.State != StateSkipped {
		t.Fatalf("skippable failure = %s, want skipped", got.State)
	}
	if got := c.Decide(context.Background(), failure(false)); got.State != StatePropagated {
		t.Fatalf("non-skippable failure = %s, want propagated", got.State)
	}
	prompter := &scriptedPrompter{}
	if got := New(prompter, false).Decide(context.Background(), failure(false)); got.State != StatePropagated || prompter.asked != 0 {
		t.Fatalf("disabled interactivity must not prompt")
	}
}

func TestInteractiveChoices(t *testing.T) {
	cases := []struct {
		name         string
		skippable    bool
		choice       string
		replacements []string
		want         State
		command      string
	}{
		{"retry", false, "1", nil, StateRetrying, "./deploy.sh"},
		{"substitute", false, " 2 ", []string{"  echo fixed "}, StateSubstituting, "echo fixed"},
		{"substitute empty", false, "2", []string{"   "}, StatePropagated, ""},
		{"skip allowed", true, "3", nil, StateSkipped, ""},
		{"skip refused", false, "3", nil, StatePropagated, ""},
		{"abort", false, "4", nil, StateAborted, ""},
		{"unrecognized", false, "yes", nil, StatePropagated, ""},
		{"replacement eof", false, "2", nil, StateAborted, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prompter := &scriptedPrompter{choices: []string{tc.choice}, replacements: tc.replacements}
			got := New(prompter, true).Decide(context.Background(), failure(tc.skippable))
			if got.State != tc.want || got.Command != tc.command {
				t.Fatalf("outcome = %+v, want %s %q", got, tc.want, tc.command)
			}
		})
	}
}

func TestPromptErrorsAbort(t *testing.T) {
	got := New(&scriptedPrompter{err: io.EOF}, true).Decide(context.Background(), failure(true))
	if got.State != StateAborted || !errors.Is(got.Err, io.EOF) {
		t.Fatalf("expected abort carrying EOF, got %+v", got)
	}
}

func TestTerminalStates(t *testing.T) {
	for state, want := range map[State]bool{
		StateSkipped: true, StateAborted: true, StatePropagated: true,
		StateRetrying: false, StateSubstituting: false, StateFailed: false, StateRunning: false,
	} {
		if state.Terminal() != want {
			t.Fatalf("%s.Terminal() = %v", state, !want)
		}
	}
}

type blockingPrompter struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (p *blockingPrompter) Choose(context.Context, Failure) (string, error) {
	p.mu.Lock()
	p.active++
	if p.active > p.maxSeen {
		p.maxSeen = p.active
	}
	p.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	return "4", nil
}

func (p *blockingPrompter) Replacement(context.Context, Failure) (string, error) {
	return "", nil
}

func TestPromptsAreSerialized(t *testing.T) {
	prompter := &blockingPrompter{}
	c := New(prompter, true)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Decide(context.Background(), failure(false))
		}()
	}
	wg.Wait()
	if prompter.maxSeen != 1 {
		t.Fatalf("expected one prompt at a time, saw %d", prompter.maxSeen)
	}
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("2\necho fixed\n"), &out)
	f := failure(false)
	choice, err := p.Choose(context.Background(), f)
	if err != nil || choice != "2" {
		t.Fatalf("choice = %q, %v", choice, err)
	}
	replacement, err := p.Replacement(context.Background(), f)
	if err != nil || replacement != "echo fixed" {
		t.Fatalf("replacement = %q, %v", replacement, err)
	}
	if !strings.Contains(out.String(), "not skippable") || !strings.Contains(out.String(), "exit code 2") {
		t.Fatalf("menu missing details: %q", out.String())
	}
	if _, err := p.Choose(context.Background(), f); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF once input is exhausted, got %v", err)
	}
}

func TestLinePrompterHonoursCancellation(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewLinePrompter(r, io.Discard).Choose(ctx, failure(false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
