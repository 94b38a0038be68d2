package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/shopspring/decimal"
)

// newCELEnv creates the environment rule expressions compile against.
// The evaluation context is exposed as the single map variable `input`.
func newCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compileExpression compiles a criteria expression. Expressions must be
// boolean; dyn-typed results are accepted and checked at evaluation time.
func compileExpression(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DynType {
		return nil, fmt.Errorf("expression must return bool, got %s", outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

// evalExpression runs a compiled expression against an evaluation context.
// A reference to a key the context does not have makes the expression
// false, the same as a missing field in a condition tree.
func evalExpression(program cel.Program, input map[string]any) (bool, error) {
	out, _, err := program.Eval(map[string]any{"input": celValue(input)})
	if err != nil {
		if missingKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %s, not bool", out.Type())
	}
	return bool(b), nil
}

// missingKey reports whether err is CEL's absent map key or attribute error.
func missingKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such key") || strings.Contains(msg, "no such attribute")
}

// celValue converts number representations CEL has no adapter for.
func celValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = celValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = celValue(child)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case decimal.Decimal:
		if val.IsInteger() {
			return val.IntPart()
		}
		return val.InexactFloat64()
	default:
		return v
	}
}
