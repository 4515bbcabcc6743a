package condition

import (
	"context"
	"strings"
	"testing"

	"github.com/kingrea/stepwise/internal/results"
)

func seededStore() *results.Store {
	store := results.NewStore()
	store.Record("fetch", results.Result{ExitCode: 0, Stdout: "  x\n", Stderr: "note\n"})
	store.Record("lint", results.Result{ExitCode: 2, Stdout: "warnings: 3", Stderr: "E101 bad indent\n"})
	return store
}

func TestEvalExpressions(t *testing.T) {
	store := seededStore()
	cases := []struct {
		expr string
		want bool
	}{
		{`stdout("fetch") == "x"`, true},
		{`stdout("fetch") != "x"`, false},
		{`stderr("fetch") == "note\n"`, true},
		{`exit_code("lint") == 2`, true},
		{`exit_code("lint") > 0 && exit_code("fetch") == 0`, true},
		{`exit_code("missing") == 0`, false},
		{`stdout("missing") == "x"`, false},
		{`recorded("fetch") && !recorded("missing")`, true},
		{`succeeded("fetch") && !succeeded("lint")`, true},
		{`contains(stderr("lint"), "E101")`, true},
		{`startswith(stdout("lint"), "warn") || false`, true},
		{`endswith(stdout("lint"), ": 3")`, true},
		{`matches(stdout("lint"), "^warnings: [0-9]+$")`, true},
		{`upper(stdout("fetch")) == "X"`, true},
		{`lower("ABC") == "abc"`, true},
		{`trimspace("  a ") == "a"`, true},
		{`strlen(stdout("fetch")) == 1`, true},
		{`(true || false) && !(1 >= 2)`, true},
		{`"true"`, true},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			expr, err := Compile(tc.expr)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			got, err := expr.Eval(context.Background(), store)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCompileRejectsUnsafeOrInvalidExpressions(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{``, "empty"},
		{`stdout("a") ==`, "parse"},
		{`ctx == "x"`, "unknown name"},
		{`file("/etc/passwd") == ""`, "unknown function(s) file"},
		{`exec("rm -rf /") && env("HOME") == ""`, "env, exec"},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Compile(tc.expr)
			if err == nil {
				t.Fatalf("expected compile error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEvalReportsRuntimeErrors(t *testing.T) {
	store := seededStore()
	cases := []string{
		`stdout("fetch")`,
		`stdout("missing")`,
		`contains(stdout("missing"), "x")`,
		`matches("abc", "(")`,
		`1 + 1`,
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			expr, err := Compile(src)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if ok, err := expr.Eval(context.Background(), store); err == nil {
				t.Fatalf("expected evaluation error, got %v", ok)
			}
		})
	}
}

func TestEvalHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := MustCompile(`true`).Eval(ctx, results.NewStore()); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestPredicateAdapter(t *testing.T) {
	pred := MustCompile(`recorded("fetch")`).Predicate()
	ok, err := pred(context.Background(), seededStore())
	if err != nil || !ok {
		t.Fatalf("predicate = %v, %v", ok, err)
	}
}

func TestFunctionsAreAllCallable(t *testing.T) {
	for _, name := range Functions() {
		if !IsFunction(name) {
			t.Fatalf("%s listed but not callable", name)
		}
	}
	if IsFunction("file") {
		t.Fatalf("file must not be callable")
	}
}
