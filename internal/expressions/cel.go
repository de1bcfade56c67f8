package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/cmdkit/pkg/schema"
)

// CELEngine evaluates Common Expression Language filters. The record is
// declared as item, a map(string, dyn), so field typos surface at evaluation.
type CELEngine struct {
	env   *cel.Env
	cache *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(ItemKey, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, cache: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Check rejects expressions that fail to type-check or whose static result
// type can never be a boolean.
func (e *CELEngine) Check(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	item, ok := data[ItemKey]
	if !ok || item == nil {
		item = map[string]any{}
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{ItemKey: item})
	if err != nil {
		return nil, evalError(e.Name(), expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	return e.cache.get(expression, func(src string) (cel.Program, error) {
		ast, issues := e.env.Compile(src)
		if err := issues.Err(); err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		if out := ast.OutputType(); !out.IsAssignableType(cel.BoolType) {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"cel filter %q has type %s, want bool", src, out).
				WithDetails(map[string]any{"expression": src})
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		return prg, nil
	})
}

var _ Engine = (*CELEngine)(nil)
