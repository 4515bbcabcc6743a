// Package condition compiles and evaluates the expressions that gate steps in
// workflow files. Expressions use HCL native syntax and may only call the
// functions registered here, so evaluating one never runs arbitrary code.
package condition

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/kingrea/stepwise/internal/results"
	"github.com/kingrea/stepwise/internal/workflow"
)

// Expression is a compiled condition.
type Expression struct {
	source string
	expr   hclsyntax.Expression
}

// Compile parses source and checks that it only references known functions.
func Compile(source string) (*Expression, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("condition: expression is empty")
	}
	expr, diags := hclsyntax.ParseExpression([]byte(source), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("condition: parse %q: %w", source, diags)
	}
	if vars := expr.Variables(); len(vars) > 0 {
		names := make([]string, 0, len(vars))
		for _, traversal := range vars {
			names = append(names, traversal.RootName())
		}
		return nil, fmt.Errorf("condition: %q references unknown name(s) %s; use stdout(\"id\") and friends to read results", source, strings.Join(names, ", "))
	}
	var unknown []string
	hclsyntax.VisitAll(expr, func(node hclsyntax.Node) hcl.Diagnostics {
		if call, ok := node.(*hclsyntax.FunctionCallExpr); ok && !IsFunction(call.Name) {
			unknown = append(unknown, call.Name)
		}
		return nil
	})
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("condition: %q calls unknown function(s) %s", source, strings.Join(unknown, ", "))
	}
	return &Expression{source: source, expr: expr}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(source string) *Expression {
	expr, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return expr
}

// Source returns the trimmed expression text.
func (e *Expression) Source() string {
	return e.source
}

// Eval evaluates the expression against the recorded results. The value must
// be a known, non-null boolean.
func (e *Expression) Eval(ctx context.Context, view results.View) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	val, diags := e.expr.Value(&hcl.EvalContext{Functions: functions(view)})
	if diags.HasErrors() {
		return false, fmt.Errorf("condition: evaluate %q: %w", e.source, diags)
	}
	if !val.IsKnown() || val.IsNull() {
		return false, fmt.Errorf("condition: %q produced no value", e.source)
	}
	converted, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition: %q must produce a bool, got %s", e.source, val.Type().FriendlyName())
	}
	if converted.IsNull() {
		return false, fmt.Errorf("condition: %q produced no value", e.source)
	}
	return converted.True(), nil
}

// Predicate adapts the expression to a step predicate.
func (e *Expression) Predicate() workflow.Predicate {
	return e.Eval
}
