package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"proctor/pkg/qti"
)

// ExprKind names an expression node type.
type ExprKind string

const (
	ExprBaseValue ExprKind = "baseValue"
	ExprVariable  ExprKind = "variable"
	ExprCorrect   ExprKind = "correct"
	ExprNull      ExprKind = "null"
	ExprIsNull    ExprKind = "isNull"
	ExprNot       ExprKind = "not"
	ExprAnd       ExprKind = "and"
	ExprOr        ExprKind = "or"
	ExprMatch     ExprKind = "match"
	ExprEqual     ExprKind = "equal"
	ExprGT        ExprKind = "gt"
	ExprGTE       ExprKind = "gte"
	ExprLT        ExprKind = "lt"
	ExprLTE       ExprKind = "lte"
	ExprSum       ExprKind = "sum"
	ExprMember    ExprKind = "member"
)

// Expression is one node of an expression tree. Exactly the fields
// relevant to Kind are set: BaseType and Value for baseValue,
// Identifier for variable and correct, Operands for operators.
type Expression struct {
	Kind       ExprKind
	BaseType   qti.BaseType
	Value      qti.Value
	Identifier string
	Operands   []*Expression
}

// arity returns the operand count an operator accepts. -1 means one
// or more.
func arity(kind ExprKind) int {
	switch kind {
	case ExprIsNull, ExprNot:
		return 1
	case ExprMatch, ExprEqual, ExprGT, ExprGTE, ExprLT, ExprLTE, ExprMember:
		return 2
	case ExprAnd, ExprOr, ExprSum:
		return -1
	default:
		return 0
	}
}

// An expression is written as a mapping with a single key naming the
// kind:
//
//	{variable: SCORE}
//	{baseValue: {type: integer, value: 3}}
//	{match: [{variable: RESPONSE}, {correct: RESPONSE}]}
func (e *Expression) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: expression wants a single-key mapping", node.Line)
	}
	kind := ExprKind(node.Content[0].Value)
	val := node.Content[1]

	e.Kind = kind
	switch kind {
	case ExprBaseValue:
		return e.decodeBaseValue(val)

	case ExprVariable, ExprCorrect:
		var id string
		if err := val.Decode(&id); err != nil {
			return err
		}
		if _, err := qti.ParseVariableID(id); err != nil {
			return fmt.Errorf("line %d: %s: %w", val.Line, kind, err)
		}
		e.Identifier = id
		return nil

	case ExprNull:
		if !val.IsZero() && val.Tag != "!!null" && len(val.Content) != 0 {
			return fmt.Errorf("line %d: null takes no value", val.Line)
		}
		return nil

	case ExprIsNull, ExprNot:
		operand := new(Expression)
		if err := val.Decode(operand); err != nil {
			return err
		}
		e.Operands = []*Expression{operand}
		return nil

	case ExprAnd, ExprOr, ExprMatch, ExprEqual,
		ExprGT, ExprGTE, ExprLT, ExprLTE, ExprSum, ExprMember:
		if err := val.Decode(&e.Operands); err != nil {
			return err
		}
		if want := arity(kind); want > 0 && len(e.Operands) != want {
			return fmt.Errorf("line %d: %s wants %d operands, got %d",
				val.Line, kind, want, len(e.Operands))
		}
		if len(e.Operands) == 0 {
			return fmt.Errorf("line %d: %s wants at least one operand", val.Line, kind)
		}
		return nil

	default:
		return fmt.Errorf("line %d: unknown expression kind %q", node.Line, kind)
	}
}

func (e *Expression) decodeBaseValue(val *yaml.Node) error {
	var raw struct {
		Type  string    `yaml:"type"`
		Value yaml.Node `yaml:"value"`
	}
	if err := val.Decode(&raw); err != nil {
		return err
	}
	bt, err := qti.ParseBaseType(raw.Type)
	if err != nil {
		return fmt.Errorf("line %d: baseValue: %w", val.Line, err)
	}
	if raw.Value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: baseValue wants a scalar value", val.Line)
	}
	// Raw node text: yaml.v3 refuses to decode unquoted numbers into
	// strings.
	v, err := qti.ParseScalar(bt, raw.Value.Value)
	if err != nil {
		return fmt.Errorf("line %d: baseValue: %w", val.Line, err)
	}
	e.BaseType = bt
	e.Value = v
	return nil
}
