package expressions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/cmdkit/pkg/schema"
)

// ItemKey is the name under which a record is exposed to filter expressions.
const ItemKey = "item"

// NewEngine returns the filter engine registered under lang: cel, expr or jq.
func NewEngine(lang string) (Engine, error) {
	switch lang {
	case "", "expr":
		return NewExprEngine(), nil
	case "cel":
		return NewCELEngine()
	case "jq":
		return NewGoJQEngine(), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown filter language %q; available: cel, expr, jq", lang)
	}
}

// ToItem converts a record into the JSON-shaped map filters operate on.
func ToItem(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal filter item: %w", err)
	}
	var item map[string]any
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, fmt.Errorf("unmarshal filter item: %w", err)
	}
	return item, nil
}

// Match evaluates a boolean predicate against a single record.
// A non-boolean result is a validation error.
func Match(ctx context.Context, eng Engine, expression string, record any) (bool, error) {
	item, err := ToItem(record)
	if err != nil {
		return false, err
	}
	out, err := eng.Evaluate(ctx, expression, map[string]any{ItemKey: item})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"%s filter %q must evaluate to a boolean, got %T", eng.Name(), expression, out)
	}
	return b, nil
}

// Filter keeps the records for which expression holds. An empty expression
// keeps everything; a malformed one fails even when records is empty.
func Filter[T any](ctx context.Context, eng Engine, expression string, records []T) ([]T, error) {
	if expression == "" {
		return records, nil
	}
	if err := eng.Check(expression); err != nil {
		return nil, err
	}
	kept := make([]T, 0, len(records))
	for _, r := range records {
		ok, err := Match(ctx, eng, expression, r)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func emptyExpression(lang string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", lang)
}

func compileError(lang, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s compile error in %q: %s", lang, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalError(lang, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExecution,
		"%s evaluation failed for %q: %s", lang, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
