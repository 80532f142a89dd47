package expr

import (
	"fmt"

	"proctor/internal/model"
	"proctor/pkg/qti"
)

// Evaluator is the default Engine.
type Evaluator struct{}

// NewEvaluator returns a stateless evaluator, safe to share across
// sessions.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (ev *Evaluator) Evaluate(e *model.Expression, scope Scope) (qti.Value, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot evaluate a nil expression")
	}
	switch e.Kind {
	case model.ExprBaseValue:
		return e.Value, nil

	case model.ExprVariable:
		return scope.Lookup(e.Identifier)

	case model.ExprCorrect:
		return scope.CorrectResponse(e.Identifier)

	case model.ExprNull:
		return nil, nil

	case model.ExprIsNull:
		v, err := ev.Evaluate(e.Operands[0], scope)
		if err != nil {
			return nil, err
		}
		return qti.Boolean(qti.IsNull(v)), nil

	case model.ExprNot:
		v, err := ev.Evaluate(e.Operands[0], scope)
		if err != nil {
			return nil, err
		}
		if qti.IsNull(v) {
			return nil, nil
		}
		b, ok := v.(qti.Boolean)
		if !ok {
			return nil, fmt.Errorf("not wants a boolean operand, got %s", v.BaseType())
		}
		return qti.Boolean(!b), nil

	case model.ExprAnd, model.ExprOr:
		return ev.logical(e, scope)

	case model.ExprMatch:
		return ev.match(e, scope)

	case model.ExprEqual, model.ExprGT, model.ExprGTE, model.ExprLT, model.ExprLTE:
		return ev.compare(e, scope)

	case model.ExprSum:
		return ev.sum(e, scope)

	case model.ExprMember:
		return ev.member(e, scope)
	}
	return nil, fmt.Errorf("cannot evaluate expression kind %q", e.Kind)
}

// logical applies three-valued and/or: false dominates and, true
// dominates or, null dominates the rest.
func (ev *Evaluator) logical(e *model.Expression, scope Scope) (qti.Value, error) {
	sawNull := false
	for _, operand := range e.Operands {
		v, err := ev.Evaluate(operand, scope)
		if err != nil {
			return nil, err
		}
		if qti.IsNull(v) {
			sawNull = true
			continue
		}
		b, ok := v.(qti.Boolean)
		if !ok {
			return nil, fmt.Errorf("%s wants boolean operands, got %s", e.Kind, v.BaseType())
		}
		if e.Kind == model.ExprAnd && !bool(b) {
			return qti.Boolean(false), nil
		}
		if e.Kind == model.ExprOr && bool(b) {
			return qti.Boolean(true), nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return qti.Boolean(e.Kind == model.ExprAnd), nil
}

func (ev *Evaluator) match(e *model.Expression, scope Scope) (qti.Value, error) {
	a, err := ev.Evaluate(e.Operands[0], scope)
	if err != nil {
		return nil, err
	}
	b, err := ev.Evaluate(e.Operands[1], scope)
	if err != nil {
		return nil, err
	}
	if qti.IsNull(a) || qti.IsNull(b) {
		return nil, nil
	}
	if a.BaseType() == qti.BaseTypeDuration || b.BaseType() == qti.BaseTypeDuration {
		return nil, fmt.Errorf("match cannot compare durations")
	}
	if a.Cardinality() != b.Cardinality() || a.BaseType() != b.BaseType() {
		return nil, fmt.Errorf("match wants operands of one type, got %s %s and %s %s",
			a.Cardinality(), a.BaseType(), b.Cardinality(), b.BaseType())
	}
	return qti.Boolean(a.Equal(b)), nil
}

func (ev *Evaluator) compare(e *model.Expression, scope Scope) (qti.Value, error) {
	a, err := ev.Evaluate(e.Operands[0], scope)
	if err != nil {
		return nil, err
	}
	b, err := ev.Evaluate(e.Operands[1], scope)
	if err != nil {
		return nil, err
	}
	if qti.IsNull(a) || qti.IsNull(b) {
		return nil, nil
	}
	x, _, err := numericOf(e.Kind, a)
	if err != nil {
		return nil, err
	}
	y, _, err := numericOf(e.Kind, b)
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case model.ExprEqual:
		return qti.Boolean(x == y), nil
	case model.ExprGT:
		return qti.Boolean(x > y), nil
	case model.ExprGTE:
		return qti.Boolean(x >= y), nil
	case model.ExprLT:
		return qti.Boolean(x < y), nil
	}
	return qti.Boolean(x <= y), nil
}

// sum adds single numeric operands and the members of numeric
// containers. The result is an integer unless a float contributed.
func (ev *Evaluator) sum(e *model.Expression, scope Scope) (qti.Value, error) {
	var total float64
	var whole int64
	isFloat := false
	for _, operand := range e.Operands {
		v, err := ev.Evaluate(operand, scope)
		if err != nil {
			return nil, err
		}
		if qti.IsNull(v) {
			return nil, nil
		}
		members := []qti.Value{v}
		if container, ok := v.(*qti.Container); ok {
			members = container.Items()
		}
		for _, m := range members {
			f, fl, err := numericOf(e.Kind, m)
			if err != nil {
				return nil, err
			}
			total += f
			whole += int64(f)
			isFloat = isFloat || fl
		}
	}
	if isFloat {
		return qti.Float(total), nil
	}
	return qti.Integer(whole), nil
}

func (ev *Evaluator) member(e *model.Expression, scope Scope) (qti.Value, error) {
	needle, err := ev.Evaluate(e.Operands[0], scope)
	if err != nil {
		return nil, err
	}
	haystack, err := ev.Evaluate(e.Operands[1], scope)
	if err != nil {
		return nil, err
	}
	if qti.IsNull(needle) || qti.IsNull(haystack) {
		return nil, nil
	}
	if needle.Cardinality() != qti.CardinalitySingle {
		return nil, fmt.Errorf("member wants a single first operand, got %s", needle.Cardinality())
	}
	container, ok := haystack.(*qti.Container)
	if !ok {
		return nil, fmt.Errorf("member wants a container second operand, got %s", haystack.Cardinality())
	}
	if needle.BaseType() != container.BaseType() {
		return nil, fmt.Errorf("member wants operands of one base type, got %s and %s",
			needle.BaseType(), container.BaseType())
	}
	if needle.BaseType() == qti.BaseTypeDuration {
		return nil, fmt.Errorf("member cannot compare durations")
	}
	return qti.Boolean(container.Contains(needle)), nil
}

func numericOf(kind model.ExprKind, v qti.Value) (float64, bool, error) {
	switch n := v.(type) {
	case qti.Integer:
		return float64(n), false, nil
	case qti.Float:
		return float64(n), true, nil
	}
	return 0, false, fmt.Errorf("%s wants numeric operands, got %s %s", kind, v.Cardinality(), v.BaseType())
}
