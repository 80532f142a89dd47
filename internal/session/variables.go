package session

import (
	"fmt"

	"proctor/internal/model"
	"proctor/pkg/qti"
)

// VarKind tells response, outcome, and template variables apart.
// Response processing writes outcomes; candidates write responses.
type VarKind uint8

const (
	VarResponse VarKind = iota + 1
	VarOutcome
	VarTemplate
)

func (k VarKind) String() string {
	switch k {
	case VarResponse:
		return "response"
	case VarOutcome:
		return "outcome"
	case VarTemplate:
		return "template"
	}
	return "unknown"
}

// Variable pairs a declaration with its current value. A nil Value is
// the QTI null.
type Variable struct {
	Decl  *model.VariableDeclaration
	Kind  VarKind
	Value qti.Value
}

// NewVariable builds an unset variable from its declaration.
func NewVariable(decl *model.VariableDeclaration, kind VarKind) *Variable {
	return &Variable{Decl: decl, Kind: kind}
}

// ApplyDefault copies the declared default into the value, or clears
// it when the declaration has none.
func (v *Variable) ApplyDefault() {
	v.Value = v.Decl.Default
}

// Variables is a keyed container of variables preserving declaration
// order.
type Variables struct {
	names  []string
	byName map[string]*Variable
}

// NewVariables returns an empty container.
func NewVariables() *Variables {
	return &Variables{byName: make(map[string]*Variable)}
}

// Declare adds a variable built from decl. Redeclaring a name
// replaces the binding in place.
func (vs *Variables) Declare(decl *model.VariableDeclaration, kind VarKind) *Variable {
	v := NewVariable(decl, kind)
	if _, exists := vs.byName[decl.Identifier]; !exists {
		vs.names = append(vs.names, decl.Identifier)
	}
	vs.byName[decl.Identifier] = v
	return v
}

// Has reports whether name is declared.
func (vs *Variables) Has(name string) bool {
	_, ok := vs.byName[name]
	return ok
}

// Variable returns the binding for name, or nil.
func (vs *Variables) Variable(name string) *Variable {
	return vs.byName[name]
}

// Get returns the current value of name and whether name is
// declared. A declared but unset variable yields a nil value.
func (vs *Variables) Get(name string) (qti.Value, bool) {
	v, ok := vs.byName[name]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// Set assigns value to the declared variable name. The value must be
// null or agree with the declared cardinality and base type.
func (vs *Variables) Set(name string, value qti.Value) error {
	v, ok := vs.byName[name]
	if !ok {
		return fmt.Errorf("variable %q is not declared", name)
	}
	if !qti.IsNull(value) {
		if value.Cardinality() != v.Decl.Cardinality {
			return fmt.Errorf("variable %q wants %s cardinality, got %s",
				name, v.Decl.Cardinality, value.Cardinality())
		}
		if v.Decl.Cardinality != qti.CardinalityRecord && value.BaseType() != v.Decl.BaseType {
			return fmt.Errorf("variable %q wants base type %s, got %s",
				name, v.Decl.BaseType, value.BaseType())
		}
	}
	v.Value = value
	return nil
}

// Unset clears the value of the declared variable name, keeping the
// binding.
func (vs *Variables) Unset(name string) error {
	v, ok := vs.byName[name]
	if !ok {
		return fmt.Errorf("variable %q is not declared", name)
	}
	v.Value = nil
	return nil
}

// Names returns the declared names in declaration order.
func (vs *Variables) Names() []string {
	return vs.names
}

// Len returns the number of declared variables.
func (vs *Variables) Len() int {
	return len(vs.names)
}

// ApplyDefaults sets every variable to its declared default.
func (vs *Variables) ApplyDefaults() {
	for _, name := range vs.names {
		vs.byName[name].ApplyDefault()
	}
}

// ResetOutcomes sets every outcome variable back to its declared
// default, or null when the declaration has none.
func (vs *Variables) ResetOutcomes() {
	for _, name := range vs.names {
		if v := vs.byName[name]; v.Kind == VarOutcome {
			v.ApplyDefault()
		}
	}
}
