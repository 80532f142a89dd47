package qti

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseScalar converts the textual form of a scalar, as it appears in
// assessment documents and candidate payloads, into a typed value.
func ParseScalar(bt BaseType, s string) (Value, error) {
	switch bt {
	case BaseTypeIdentifier:
		if !IsValidIdentifier(s) {
			return nil, fmt.Errorf("invalid identifier value %q", s)
		}
		return Identifier(s), nil
	case BaseTypeBoolean:
		switch s {
		case "true":
			return Boolean(true), nil
		case "false":
			return Boolean(false), nil
		}
		return nil, fmt.Errorf("invalid boolean value %q", s)
	case BaseTypeInteger:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid integer value %q", s)
		}
		return Integer(n), nil
	case BaseTypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float value %q", s)
		}
		return Float(f), nil
	case BaseTypeString:
		return String(s), nil
	case BaseTypePoint:
		x, y, err := splitPoint(s)
		if err != nil {
			return nil, err
		}
		return Point{X: x, Y: y}, nil
	case BaseTypePair:
		first, second, err := splitPair(s)
		if err != nil {
			return nil, err
		}
		return Pair{First: first, Second: second}, nil
	case BaseTypeDirectedPair:
		first, second, err := splitPair(s)
		if err != nil {
			return nil, err
		}
		return DirectedPair{First: first, Second: second}, nil
	case BaseTypeDuration:
		return ParseISODuration(s)
	case BaseTypeURI:
		if s == "" {
			return nil, fmt.Errorf("invalid uri value: empty")
		}
		return URI(s), nil
	case BaseTypeFile:
		return nil, fmt.Errorf("file values cannot be expressed as text")
	default:
		return nil, fmt.Errorf("cannot parse value for base type %s", bt)
	}
}

func splitPoint(s string) (int32, int32, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("invalid point value %q: want two coordinates", s)
	}
	x, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid point value %q", s)
	}
	y, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid point value %q", s)
	}
	return int32(x), int32(y), nil
}

func splitPair(s string) (string, string, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("invalid pair value %q: want two identifiers", s)
	}
	if !IsValidIdentifier(fields[0]) || !IsValidIdentifier(fields[1]) {
		return "", "", fmt.Errorf("invalid pair value %q", s)
	}
	return fields[0], fields[1], nil
}
