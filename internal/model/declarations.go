package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"proctor/pkg/qti"
)

// VariableDeclaration declares one variable: its identifier, shape,
// and optional default. Response declarations may carry a correct
// response; outcome declarations may carry interpretation metadata.
type VariableDeclaration struct {
	Identifier     string
	Cardinality    qti.Cardinality
	BaseType       qti.BaseType
	Default        qti.Value
	Correct        qti.Value
	Interpretation string
	NormalMaximum  *float64
	NormalMinimum  *float64
}

// literalList accepts either a single scalar or a sequence of scalars
// in a document, so `defaultValue: "0"` and `defaultValue: ["0"]` are
// both valid.
type literalList []string

func (l *literalList) UnmarshalYAML(node *yaml.Node) error {
	// Read scalar node text directly: yaml.v3 refuses to decode
	// unquoted numbers and booleans into strings.
	switch node.Kind {
	case yaml.ScalarNode:
		*l = literalList{node.Value}
		return nil
	case yaml.SequenceNode:
		list := make(literalList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: literal list wants scalars", item.Line)
			}
			list = append(list, item.Value)
		}
		*l = list
		return nil
	}
	return fmt.Errorf("line %d: want a scalar or a list of scalars", node.Line)
}

func (d *VariableDeclaration) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Identifier      string      `yaml:"identifier"`
		Cardinality     string      `yaml:"cardinality"`
		BaseType        string      `yaml:"baseType"`
		DefaultValue    literalList `yaml:"defaultValue"`
		CorrectResponse literalList `yaml:"correctResponse"`
		Interpretation  string      `yaml:"interpretation"`
		NormalMaximum   *float64    `yaml:"normalMaximum"`
		NormalMinimum   *float64    `yaml:"normalMinimum"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if !qti.IsValidIdentifier(raw.Identifier) {
		return fmt.Errorf("invalid variable identifier %q", raw.Identifier)
	}
	d.Identifier = raw.Identifier
	d.Interpretation = raw.Interpretation
	d.NormalMaximum = raw.NormalMaximum
	d.NormalMinimum = raw.NormalMinimum

	d.Cardinality = qti.CardinalitySingle
	if raw.Cardinality != "" {
		card, err := qti.ParseCardinality(raw.Cardinality)
		if err != nil {
			return fmt.Errorf("variable %q: %w", d.Identifier, err)
		}
		d.Cardinality = card
	}

	if d.Cardinality == qti.CardinalityRecord {
		d.BaseType = qti.BaseTypeNone
		if len(raw.DefaultValue) > 0 || len(raw.CorrectResponse) > 0 {
			return fmt.Errorf("variable %q: record declarations cannot carry document values", d.Identifier)
		}
		return nil
	}

	bt, err := qti.ParseBaseType(raw.BaseType)
	if err != nil {
		return fmt.Errorf("variable %q: %w", d.Identifier, err)
	}
	d.BaseType = bt

	if len(raw.DefaultValue) > 0 {
		v, err := d.buildValue(raw.DefaultValue)
		if err != nil {
			return fmt.Errorf("variable %q: defaultValue: %w", d.Identifier, err)
		}
		d.Default = v
	}
	if len(raw.CorrectResponse) > 0 {
		v, err := d.buildValue(raw.CorrectResponse)
		if err != nil {
			return fmt.Errorf("variable %q: correctResponse: %w", d.Identifier, err)
		}
		d.Correct = v
	}
	return nil
}

func (d *VariableDeclaration) buildValue(literals []string) (qti.Value, error) {
	if d.Cardinality == qti.CardinalitySingle {
		if len(literals) != 1 {
			return nil, fmt.Errorf("single cardinality wants exactly one value, got %d", len(literals))
		}
		return qti.ParseScalar(d.BaseType, literals[0])
	}
	container, err := qti.NewContainer(d.Cardinality, d.BaseType)
	if err != nil {
		return nil, err
	}
	for _, literal := range literals {
		scalar, err := qti.ParseScalar(d.BaseType, literal)
		if err != nil {
			return nil, err
		}
		if err := container.Append(scalar); err != nil {
			return nil, err
		}
	}
	return container, nil
}
