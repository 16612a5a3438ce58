package executor

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
)

// Parameter values of the form "${expr}" are evaluated before dispatch.
// Expressions see the accumulated intermediate results as variables plus a
// small whitelist of helper functions.

// ExpressionFunctionRegistry allows registration of custom functions for
// expression evaluation.
type ExpressionFunctionRegistry struct {
	functions map[string]govaluate.ExpressionFunction
}

var globalExprFuncRegistry = &ExpressionFunctionRegistry{functions: builtinFunctions()}

// RegisterExpressionFunction allows users to register a custom function for expressions.
func RegisterExpressionFunction(name string, fn govaluate.ExpressionFunction) {
	globalExprFuncRegistry.functions[name] = fn
}

// getWhitelistedFunctions returns only whitelisted functions for security.
func getWhitelistedFunctions() map[string]govaluate.ExpressionFunction {
	whitelist := map[string]govaluate.ExpressionFunction{}
	for k, v := range globalExprFuncRegistry.functions {
		whitelist[k] = v
	}
	return whitelist
}

func builtinFunctions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"len": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("len expects exactly one argument")
			}
			switch v := args[0].(type) {
			case string:
				return float64(len(v)), nil
			case []interface{}:
				return float64(len(v)), nil
			case map[string]interface{}:
				return float64(len(v)), nil
			default:
				return nil, fmt.Errorf("len does not support %T", args[0])
			}
		},
		"coalesce": func(args ...interface{}) (interface{}, error) {
			for _, a := range args {
				if a != nil {
					return a, nil
				}
			}
			return nil, nil
		},
		"contains": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("contains expects exactly two arguments")
			}
			haystack, ok1 := args[0].(string)
			needle, ok2 := args[1].(string)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("contains expects string arguments")
			}
			return strings.Contains(haystack, needle), nil
		},
	}
}

// ValidateExpression checks whether an expression parses without evaluating it.
func ValidateExpression(expr string) error {
	_, err := govaluate.NewEvaluableExpressionWithFunctions(expr, getWhitelistedFunctions())
	return err
}

// paramResolver evaluates ${...} parameter expressions against a snapshot
// of intermediate results.
type paramResolver struct {
	source func() map[string]interface{}
}

func newParamResolver(source func() map[string]interface{}) *paramResolver {
	return &paramResolver{source: source}
}

// resolve returns a copy of params with every "${expr}" string replaced by
// its evaluated value. Non-expression values pass through untouched.
func (r *paramResolver) resolve(params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		return nil, nil
	}

	var vars map[string]interface{}
	resolved := make(map[string]interface{}, len(params))
	for key, value := range params {
		str, ok := value.(string)
		if !ok || !strings.HasPrefix(str, "${") || !strings.HasSuffix(str, "}") {
			resolved[key] = value
			continue
		}

		if vars == nil {
			if r.source != nil {
				vars = r.source()
			}
			if vars == nil {
				vars = map[string]interface{}{}
			}
		}

		expr := strings.TrimSuffix(strings.TrimPrefix(str, "${"), "}")
		evaluable, err := govaluate.NewEvaluableExpressionWithFunctions(expr, getWhitelistedFunctions())
		if err != nil {
			return nil, fmt.Errorf("invalid expression for parameter '%s': %w", key, err)
		}
		result, err := evaluable.Evaluate(vars)
		if err != nil {
			return nil, fmt.Errorf("expression evaluation failed for parameter '%s': %w", key, err)
		}
		resolved[key] = result
	}
	return resolved, nil
}
