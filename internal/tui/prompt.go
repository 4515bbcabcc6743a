package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/stepwise/internal/workflow/recovery"
)

// ErrPromptCancelled is returned when the operator dismisses a prompt.
var ErrPromptCancelled = errors.New("tui: prompt cancelled")

var menuChoices = []string{
	recovery.ChoiceRetry,
	recovery.ChoiceSubstitute,
	recovery.ChoiceSkip,
	recovery.ChoiceAbort,
}

// Choose shows the recovery menu and returns the selected choice.
func (c *Console) Choose(ctx context.Context, failure recovery.Failure) (string, error) {
	final, err := c.runPrompt(ctx, newChoiceModel(failure))
	if err != nil {
		return "", err
	}
	m := final.(*choiceModel)
	if m.cancelled {
		return "", ErrPromptCancelled
	}
	return m.choice, nil
}

// Replacement asks for the command to run in place of the failed one.
func (c *Console) Replacement(ctx context.Context, failure recovery.Failure) (string, error) {
	final, err := c.runPrompt(ctx, newReplacementModel(failure))
	if err != nil {
		return "", err
	}
	m := final.(*replacementModel)
	if m.cancelled {
		return "", ErrPromptCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}

func (c *Console) runPrompt(ctx context.Context, model tea.Model) (tea.Model, error) {
	c.pause()
	defer c.resume()
	p := tea.NewProgram(model,
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("tui: prompt: %w", err)
	}
	return final, nil
}

type choiceModel struct {
	failure   recovery.Failure
	options   []string
	cursor    int
	choice    string
	cancelled bool
}

func newChoiceModel(failure recovery.Failure) *choiceModel {
	return &choiceModel{failure: failure, options: recovery.Menu(failure.Step.Skippable)}
}

func (m *choiceModel) Init() tea.Cmd {
	return nil
}

func (m *choiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case "enter":
		m.choice = menuChoices[m.cursor]
		return m, tea.Quit
	case "1", "2", "3", "4":
		m.choice = s
		return m, tea.Quit
	case "ctrl+c", "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *choiceModel) View() string {
	if m.choice != "" || m.cancelled {
		return ""
	}
	var sb strings.Builder
	header := fmt.Sprintf(" Step %d/%d : %s failed (%s)", m.failure.Ordinal, m.failure.Total, m.failure.Step.Name, m.failure.Reason())
	sb.WriteString(errorStyle.Render("✗") + header + "\n")
	if tail := lastLines(m.failure.Result.Stderr, 5); tail != "" {
		sb.WriteString(detailStyle.Render(indent(tail, "  ")) + "\n")
	}
	for i, option := range m.options {
		if i == m.cursor {
			sb.WriteString(accentStyle.Render("› "+option) + "\n")
			continue
		}
		sb.WriteString("  " + option + "\n")
	}
	sb.WriteString(hintStyle.Render("↑/↓ select • enter confirm • 1-4 choose • esc abort") + "\n")
	return sb.String()
}

type replacementModel struct {
	failure   recovery.Failure
	input     textinput.Model
	submitted bool
	cancelled bool
}

func newReplacementModel(failure recovery.Failure) *replacementModel {
	ti := textinput.New()
	ti.Prompt = "$ "
	ti.PromptStyle = accentStyle
	ti.Placeholder = failure.Command
	ti.Focus()
	return &replacementModel{failure: failure, input: ti}
}

func (m *replacementModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replacementModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.submitted = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replacementModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(accentStyle.Render("?") + fmt.Sprintf(" Replacement command for %s\n", m.failure.Step.Name))
	sb.WriteString(m.input.View() + "\n")
	sb.WriteString(hintStyle.Render("enter run • empty keeps the failure • esc abort") + "\n")
	return sb.String()
}
