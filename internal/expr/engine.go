package expr

import (
	"fmt"

	"proctor/internal/model"
	"proctor/pkg/qti"
)

// Scope resolves variable references while an expression is
// evaluated. The session driver passes a scope bound to the item
// occurrence or test whose rules are running.
type Scope interface {
	// Lookup returns the current value of a variable, which may be a
	// typed null (nil with no error) when the variable is declared but
	// unset.
	Lookup(identifier string) (qti.Value, error)

	// CorrectResponse returns the declared correct response of a
	// response variable, nil when none was declared.
	CorrectResponse(identifier string) (qti.Value, error)
}

// Engine evaluates one expression tree against a scope. A nil value
// with a nil error is the QTI null.
type Engine interface {
	Evaluate(e *model.Expression, scope Scope) (qti.Value, error)
}

// AsCondition reduces an evaluation result to the two-valued form
// used by preconditions, branch rules, and rule conditions: null is
// false, a boolean is itself, anything else is an error.
func AsCondition(v qti.Value) (bool, error) {
	if qti.IsNull(v) {
		return false, nil
	}
	b, ok := v.(qti.Boolean)
	if !ok {
		return false, fmt.Errorf("condition evaluated to %s, want boolean", v.BaseType())
	}
	return bool(b), nil
}
