package resolver

import (
	"fmt"

	"github.com/kingrea/stepwise/internal/condition"
	"github.com/kingrea/stepwise/internal/workflow"
)

// Node is a step plus everything the engine needs to run it without
// consulting the definition again.
type Node struct {
	Step workflow.Step
	// Ordinal is the 1-based position of a leaf in depth-first declaration
	// order. Groups carry 0.
	Ordinal int
	// Predicate is the compiled condition, nil when the step is ungated.
	Predicate workflow.Predicate
	// ConditionSource is the expression text, empty for native predicates.
	ConditionSource string
	Children        []*Node
}

// Name returns the step's display name.
func (n *Node) Name() string {
	return n.Step.Name
}

// ID returns the step's result key, possibly empty.
func (n *Node) ID() string {
	return n.Step.ID
}

// IsGroup reports whether the node runs its children concurrently.
func (n *Node) IsGroup() bool {
	return n.Step.IsGroup()
}

// Plan is a compiled workflow.
type Plan struct {
	Definition workflow.Definition
	Nodes      []*Node
	// Total is the number of leaves, used for "step X of N" progress.
	Total int
}

// Resolve normalizes def and compiles it into a plan. Condition expressions
// are compiled here so syntax errors surface before any command runs.
func Resolve(def workflow.Definition) (*Plan, error) {
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	plan := &Plan{Definition: normalized}
	ordinal := 0
	nodes, err := compileSteps(normalized.Commands, &ordinal)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", normalized.Name, err)
	}
	plan.Nodes = nodes
	plan.Total = ordinal
	return plan, nil
}

func compileSteps(steps []workflow.Step, ordinal *int) ([]*Node, error) {
	nodes := make([]*Node, 0, len(steps))
	for _, step := range steps {
		node := &Node{Step: step}
		switch {
		case step.Condition.Func != nil:
			node.Predicate = step.Condition.Func
		case step.Condition.Expr != "":
			expr, err := condition.Compile(step.Condition.Expr)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", step.Name, err)
			}
			node.Predicate = expr.Predicate()
			node.ConditionSource = expr.Source()
		}
		if step.IsGroup() {
			children, err := compileSteps(step.Parallel, ordinal)
			if err != nil {
				return nil, err
			}
			node.Children = children
		} else {
			*ordinal++
			node.Ordinal = *ordinal
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Leaves returns every leaf in the plan in declaration order.
func (p *Plan) Leaves() []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, node := range nodes {
			if node.IsGroup() {
				walk(node.Children)
				continue
			}
			out = append(out, node)
		}
	}
	walk(p.Nodes)
	return out
}
