// Package celvalidator registers CEL expressions as named custom
// validators, so operators can add cross-field checks without shipping Go
// code. Expressions see two variables: "value", the submitted field value,
// and "submission", the full answer map.
package celvalidator

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/requirements/requirements"
)

// costLimit bounds expression evaluation so a pathological validator
// cannot stall the submission path.
const costLimit = 1_000_000

// Register compiles a CEL expression and registers it under name. The
// expression must produce a bool; compilation errors surface here, at
// startup, never per submission.
func Register(reg *requirements.ValidatorRegistry, name, expression string) error {
	prog, err := compile(expression)
	if err != nil {
		return err
	}

	return reg.Register(name, func(value any, submission map[string]any) (bool, string) {
		out, _, err := prog.Eval(map[string]any{
			"value":      value,
			"submission": submission,
		})
		if err != nil {
			return false, fmt.Sprintf("validator %s failed: %v", name, err)
		}

		passed, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Sprintf("validator %s did not produce a boolean", name)
		}
		return passed, ""
	})
}

// RegisterAll registers a name → expression map, as loaded from host
// configuration.
func RegisterAll(reg *requirements.ValidatorRegistry, exprs map[string]string) error {
	for name, expression := range exprs {
		if err := Register(reg, name, expression); err != nil {
			return fmt.Errorf("failed to register validator %s: %w", name, err)
		}
	}
	return nil
}

func compile(expression string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("submission", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return prog, nil
}
