package qti

import "fmt"

// BaseType enumerates the primitive types a QTI variable can carry.
// The numeric values are stable: the binary snapshot codec writes them
// as-is, so they must never be reordered.
type BaseType uint8

const (
	BaseTypeIdentifier BaseType = iota
	BaseTypeBoolean
	BaseTypeInteger
	BaseTypeFloat
	BaseTypeString
	BaseTypePoint
	BaseTypePair
	BaseTypeDirectedPair
	BaseTypeDuration
	BaseTypeFile
	BaseTypeURI

	// BaseTypeNone marks values without a base type (records).
	BaseTypeNone BaseType = 0xFF
)

var baseTypeNames = map[BaseType]string{
	BaseTypeIdentifier:   "identifier",
	BaseTypeBoolean:      "boolean",
	BaseTypeInteger:      "integer",
	BaseTypeFloat:        "float",
	BaseTypeString:       "string",
	BaseTypePoint:        "point",
	BaseTypePair:         "pair",
	BaseTypeDirectedPair: "directedPair",
	BaseTypeDuration:     "duration",
	BaseTypeFile:         "file",
	BaseTypeURI:          "uri",
	BaseTypeNone:         "none",
}

func (b BaseType) String() string {
	if name, ok := baseTypeNames[b]; ok {
		return name
	}
	return fmt.Sprintf("baseType(%d)", uint8(b))
}

// ParseBaseType converts the textual QTI base type name used in
// assessment documents into its BaseType value.
func ParseBaseType(s string) (BaseType, error) {
	for bt, name := range baseTypeNames {
		if name == s && bt != BaseTypeNone {
			return bt, nil
		}
	}
	return 0, fmt.Errorf("unknown base type %q", s)
}

// Cardinality enumerates how many values a variable holds. The numeric
// values are stable for the same reason as BaseType.
type Cardinality uint8

const (
	CardinalitySingle Cardinality = iota
	CardinalityMultiple
	CardinalityOrdered
	CardinalityRecord
)

var cardinalityNames = map[Cardinality]string{
	CardinalitySingle:   "single",
	CardinalityMultiple: "multiple",
	CardinalityOrdered:  "ordered",
	CardinalityRecord:   "record",
}

func (c Cardinality) String() string {
	if name, ok := cardinalityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cardinality(%d)", uint8(c))
}

// ParseCardinality converts the textual QTI cardinality name used in
// assessment documents into its Cardinality value.
func ParseCardinality(s string) (Cardinality, error) {
	for c, name := range cardinalityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cardinality %q", s)
}
