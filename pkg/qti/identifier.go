package qti

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedIdentifier is returned by ParseVariableID when the input
// matches none of the three accepted identifier forms.
var ErrMalformedIdentifier = errors.New("malformed variable identifier")

// IsValidIdentifier reports whether s matches the QTI identifier
// lexical form: a letter or underscore followed by letters, digits,
// underscores, or hyphens.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
		case i > 0 && (c >= '0' && c <= '9' || c == '-'):
		default:
			return false
		}
	}
	return true
}

// VariableID addresses a variable in one of three forms:
//
//	NAME            global scope
//	PREFIX.NAME     a variable of item PREFIX
//	PREFIX.N.NAME   a variable of the N-th occurrence of PREFIX, N >= 1
type VariableID struct {
	Prefix   string
	Sequence int
	Name     string
}

// ParseVariableID splits a variable identifier into its parts. Both
// PREFIX and NAME must match the QTI identifier lexical form and the
// occurrence number must be at least 1.
func ParseVariableID(s string) (VariableID, error) {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		if !IsValidIdentifier(parts[0]) {
			return VariableID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
		}
		return VariableID{Name: parts[0]}, nil
	case 2:
		if !IsValidIdentifier(parts[0]) || !IsValidIdentifier(parts[1]) {
			return VariableID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
		}
		return VariableID{Prefix: parts[0], Name: parts[1]}, nil
	case 3:
		if !isDigits(parts[1]) {
			return VariableID{}, fmt.Errorf("%w: %q: occurrence must be a positive integer", ErrMalformedIdentifier, s)
		}
		seq, err := strconv.Atoi(parts[1])
		if err != nil || seq < 1 {
			return VariableID{}, fmt.Errorf("%w: %q: occurrence must be a positive integer", ErrMalformedIdentifier, s)
		}
		if !IsValidIdentifier(parts[0]) || !IsValidIdentifier(parts[2]) {
			return VariableID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
		}
		return VariableID{Prefix: parts[0], Sequence: seq, Name: parts[2]}, nil
	default:
		return VariableID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Prefixed reports whether the identifier addresses an item scope.
func (v VariableID) Prefixed() bool { return v.Prefix != "" }

// HasSequence reports whether an explicit occurrence number is present.
func (v VariableID) HasSequence() bool { return v.Sequence > 0 }

func (v VariableID) String() string {
	switch {
	case v.Prefix == "":
		return v.Name
	case v.Sequence == 0:
		return v.Prefix + "." + v.Name
	default:
		return fmt.Sprintf("%s.%d.%s", v.Prefix, v.Sequence, v.Name)
	}
}
