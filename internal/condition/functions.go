package condition

import (
	"regexp"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kingrea/stepwise/internal/results"
)

var staticFunctions = map[string]function.Function{
	"contains":   stringPairFunc("s", "substr", strings.Contains),
	"startswith": stringPairFunc("s", "prefix", strings.HasPrefix),
	"endswith":   stringPairFunc("s", "suffix", strings.HasSuffix),
	"matches":    matchesFunc,
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"trimspace":  stdlib.TrimSpaceFunc,
	"strlen":     stdlib.StrlenFunc,
}

var resultFunctionNames = []string{"stdout", "stderr", "exit_code", "recorded", "succeeded"}

// IsFunction reports whether name may be called from a condition.
func IsFunction(name string) bool {
	if _, ok := staticFunctions[name]; ok {
		return true
	}
	for _, candidate := range resultFunctionNames {
		if candidate == name {
			return true
		}
	}
	return false
}

// Functions lists every callable name.
func Functions() []string {
	names := append([]string{}, resultFunctionNames...)
	for name := range staticFunctions {
		names = append(names, name)
	}
	return names
}

func functions(view results.View) map[string]function.Function {
	fns := make(map[string]function.Function, len(staticFunctions)+len(resultFunctionNames))
	for name, fn := range staticFunctions {
		fns[name] = fn
	}
	fns["stdout"] = lookupFunc(cty.String, func(id string) (cty.Value, bool) {
		out, ok := view.Stdout(id)
		return cty.StringVal(out), ok
	})
	fns["stderr"] = lookupFunc(cty.String, func(id string) (cty.Value, bool) {
		out, ok := view.Stderr(id)
		return cty.StringVal(out), ok
	})
	fns["exit_code"] = lookupFunc(cty.Number, func(id string) (cty.Value, bool) {
		code, ok := view.ExitCode(id)
		return cty.NumberIntVal(int64(code)), ok
	})
	fns["recorded"] = idFunc(cty.Bool, func(id string) cty.Value {
		return cty.BoolVal(view.Has(id))
	})
	fns["succeeded"] = idFunc(cty.Bool, func(id string) cty.Value {
		result, ok := view.Result(id)
		return cty.BoolVal(ok && result.Succeeded())
	})
	return fns
}

// lookupFunc returns null when the id has no recorded result.
func lookupFunc(ret cty.Type, lookup func(id string) (cty.Value, bool)) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "id", Type: cty.String}},
		Type:   function.StaticReturnType(ret),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			val, ok := lookup(args[0].AsString())
			if !ok {
				return cty.NullVal(ret), nil
			}
			return val, nil
		},
	})
}

func idFunc(ret cty.Type, fn func(id string) cty.Value) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "id", Type: cty.String}},
		Type:   function.StaticReturnType(ret),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return fn(args[0].AsString()), nil
		},
	})
}

func stringPairFunc(first, second string, test func(string, string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: first, Type: cty.String},
			{Name: second, Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.BoolVal(test(args[0].AsString(), args[1].AsString())), nil
		},
	})
}

var matchesFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "s", Type: cty.String},
		{Name: "pattern", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		re, err := regexp.Compile(args[1].AsString())
		if err != nil {
			return cty.NilVal, function.NewArgError(1, err)
		}
		return cty.BoolVal(re.MatchString(args[0].AsString())), nil
	},
})
