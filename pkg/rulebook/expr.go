package rulebook

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// interruptCheckFrequency is how many comprehension iterations run between
// context cancellation checks.
const interruptCheckFrequency = 64

// Environments for the two kinds of expressions. applies_when sees only the
// tags so applicability stays a pure function of them. Both load the CEL
// string extensions (trim, lowerAscii, split, ...).
var (
	applyEnv = mustEnv(
		ext.Strings(),
		cel.Variable("tags", cel.ListType(cel.StringType)),
	)
	ruleEnv = mustEnv(
		ext.Strings(),
		cel.Variable("id", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.StringType)),
	)
)

func mustEnv(opts ...cel.EnvOption) *cel.Env {
	env, err := cel.NewEnv(opts...)
	if err != nil {
		panic(fmt.Sprintf("rulebook: creating CEL environment: %v", err))
	}
	return env
}

// compileBool type-checks expr in env and requires a boolean result.
func compileBool(env *cel.Env, expr string) (cel.Program, error) {
	if expr == "" {
		return nil, fmt.Errorf("expression is empty")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast, cel.InterruptCheckFrequency(interruptCheckFrequency))
	if err != nil {
		return nil, fmt.Errorf("error creating program: %w", err)
	}
	return prg, nil
}

func evalBool(ctx context.Context, prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return b, nil
}
