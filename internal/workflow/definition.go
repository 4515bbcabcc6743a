package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/stepwise/internal/results"
	"gopkg.in/yaml.v3"
)

// Predicate decides whether a step runs, given everything recorded so far.
// An error is treated as "do not run" by the scheduler and reported.
type Predicate func(ctx context.Context, view results.View) (bool, error)

// Callback derives an informational branch label from a finished attempt.
type Callback func(result results.Result) string

// Condition gates a step. Serialized workflows carry expression source text;
// programmatic workflows may attach a native predicate instead.
type Condition struct {
	Expr string
	Func Predicate
}

// IsZero reports whether no condition is set.
func (c Condition) IsZero() bool {
	return strings.TrimSpace(c.Expr) == "" && c.Func == nil
}

// UnmarshalYAML accepts the scalar expression form used in workflow files.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: condition must be an expression string", node.Line)
	}
	c.Expr = node.Value
	return nil
}

// MarshalYAML writes the expression form. Native predicates cannot be
// serialized and are dropped.
func (c Condition) MarshalYAML() (any, error) {
	return c.Expr, nil
}

// Definition is the root of a workflow file: a named, ordered list of steps.
type Definition struct {
	Version  string `json:"version" yaml:"version"`
	Name     string `json:"name" yaml:"name"`
	Commands []Step `json:"commands" yaml:"commands"`
}

// Step is either a leaf wrapping one command or a group whose children run
// concurrently.
type Step struct {
	Name      string    `json:"name" yaml:"name"`
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Command   string    `json:"command,omitempty" yaml:"command,omitempty"`
	Parallel  []Step    `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Skippable bool      `json:"skippable,omitempty" yaml:"skippable,omitempty"`
	Condition Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	DependsOn []string  `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Callback  Callback  `json:"-" yaml:"-"`
}

// IsGroup reports whether the step fans out into concurrent children.
func (s Step) IsGroup() bool {
	return s.Parallel != nil
}

// IsLeaf reports whether the step runs a single command.
func (s Step) IsLeaf() bool {
	return !s.IsGroup()
}

// Label returns the id when present, otherwise the display name.
func (s Step) Label() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Clone returns a deep copy of the step and its children.
func (s Step) Clone() Step {
	clone := s
	clone.DependsOn = cloneStringSlice(s.DependsOn)
	if s.Parallel != nil {
		clone.Parallel = cloneSteps(s.Parallel)
	}
	return clone
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	return Definition{
		Version:  def.Version,
		Name:     def.Name,
		Commands: cloneSteps(def.Commands),
	}
}

// Validate ensures the definition is self-consistent. Dependency targets are
// deliberately left alone: they are checked against recorded results when
// the dependent step is reached.
func (def Definition) Validate() error {
	if len(def.Commands) == 0 {
		return fmt.Errorf("workflow %s: at least one command is required", def.displayName())
	}
	seen := map[string]string{}
	for idx, step := range def.Commands {
		path := fmt.Sprintf("commands[%d]", idx)
		if err := step.validate(path, seen); err != nil {
			return fmt.Errorf("workflow %s: %w", def.displayName(), err)
		}
	}
	return nil
}

func (s Step) validate(path string, seen map[string]string) error {
	if s.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	if s.IsGroup() && s.Command != "" {
		return fmt.Errorf("%s (%s): a step cannot declare both command and parallel", path, s.Name)
	}
	if s.IsGroup() && len(s.Parallel) == 0 {
		return fmt.Errorf("%s (%s): parallel group has no steps", path, s.Name)
	}
	if s.IsLeaf() && s.Command == "" {
		return fmt.Errorf("%s (%s): command or parallel is required", path, s.Name)
	}
	if s.Condition.Func != nil && strings.TrimSpace(s.Condition.Expr) != "" {
		return fmt.Errorf("%s (%s): condition cannot be both a predicate and an expression", path, s.Name)
	}
	if s.ID != "" {
		if prior, exists := seen[s.ID]; exists {
			return fmt.Errorf("%s (%s): duplicate id %q (already used by %s)", path, s.Name, s.ID, prior)
		}
		seen[s.ID] = path
	}
	deps := append([]string{}, s.DependsOn...)
	sort.Strings(deps)
	for i := range deps {
		if deps[i] == "" {
			return fmt.Errorf("%s (%s): dependsOn contains an empty id", path, s.Name)
		}
		if i > 0 && deps[i] == deps[i-1] {
			return fmt.Errorf("%s (%s): duplicate dependency on %s", path, s.Name, deps[i])
		}
	}
	for idx, child := range s.Parallel {
		if err := child.validate(fmt.Sprintf("%s.parallel[%d]", path, idx), seen); err != nil {
			return err
		}
	}
	return nil
}

// Normalized clones the definition, trims user-provided text, and validates
// the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.Version = strings.TrimSpace(clone.Version)
	clone.Name = strings.TrimSpace(clone.Name)
	normalizeSteps(clone.Commands)
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

func normalizeSteps(steps []Step) {
	for i := range steps {
		step := &steps[i]
		step.Name = strings.TrimSpace(step.Name)
		step.ID = strings.TrimSpace(step.ID)
		step.Command = strings.TrimSpace(step.Command)
		step.Condition.Expr = strings.TrimSpace(step.Condition.Expr)
		for j, dep := range step.DependsOn {
			step.DependsOn[j] = strings.TrimSpace(dep)
		}
		normalizeSteps(step.Parallel)
	}
}

// IDs returns every declared step id in depth-first declaration order.
func (def Definition) IDs() []string {
	var ids []string
	var walk func([]Step)
	walk = func(steps []Step) {
		for _, step := range steps {
			if step.ID != "" {
				ids = append(ids, step.ID)
			}
			walk(step.Parallel)
		}
	}
	walk(def.Commands)
	return ids
}

func (def Definition) displayName() string {
	if def.Name != "" {
		return fmt.Sprintf("%q", def.Name)
	}
	return "(unnamed)"
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	clone := make([]Step, len(steps))
	for i, step := range steps {
		clone[i] = step.Clone()
	}
	return clone
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}
