package qti

import (
	"bytes"
	"fmt"
	"strconv"
)

// Value is one QTI runtime value: a scalar, a container of scalars, or
// a record. NULL is represented by a nil Value; IsNull also covers the
// QTI rule that empty strings, containers, and records count as NULL.
type Value interface {
	BaseType() BaseType
	Cardinality() Cardinality
	IsNull() bool
	// Equal reports structural equality with another value. Pair
	// comparison ignores member order; DirectedPair does not.
	// Multiple containers compare as multisets, ordered containers
	// as sequences.
	Equal(other Value) bool
	String() string
}

// IsNull reports whether v is absent or NULL-valued.
func IsNull(v Value) bool {
	return v == nil || v.IsNull()
}

// Match compares two values under QTI match semantics: NULL never
// matches anything, including another NULL.
func Match(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	return a.Equal(b)
}

// Identifier is a single identifier value.
type Identifier string

func (Identifier) BaseType() BaseType       { return BaseTypeIdentifier }
func (Identifier) Cardinality() Cardinality { return CardinalitySingle }
func (Identifier) IsNull() bool             { return false }
func (v Identifier) String() string         { return string(v) }

func (v Identifier) Equal(other Value) bool {
	w, ok := other.(Identifier)
	return ok && v == w
}

// Boolean is a single boolean value.
type Boolean bool

func (Boolean) BaseType() BaseType       { return BaseTypeBoolean }
func (Boolean) Cardinality() Cardinality { return CardinalitySingle }
func (Boolean) IsNull() bool             { return false }

func (v Boolean) String() string {
	return strconv.FormatBool(bool(v))
}

func (v Boolean) Equal(other Value) bool {
	w, ok := other.(Boolean)
	return ok && v == w
}

// Integer is a single integer value. QTI integers are 32-bit signed.
type Integer int32

func (Integer) BaseType() BaseType       { return BaseTypeInteger }
func (Integer) Cardinality() Cardinality { return CardinalitySingle }
func (Integer) IsNull() bool             { return false }
func (v Integer) String() string         { return strconv.FormatInt(int64(v), 10) }

func (v Integer) Equal(other Value) bool {
	w, ok := other.(Integer)
	return ok && v == w
}

// Float is a single float value.
type Float float64

func (Float) BaseType() BaseType       { return BaseTypeFloat }
func (Float) Cardinality() Cardinality { return CardinalitySingle }
func (Float) IsNull() bool             { return false }

func (v Float) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

func (v Float) Equal(other Value) bool {
	w, ok := other.(Float)
	return ok && v == w
}

// String is a single string value. The empty string is NULL under QTI
// semantics.
type String string

func (String) BaseType() BaseType       { return BaseTypeString }
func (String) Cardinality() Cardinality { return CardinalitySingle }
func (v String) IsNull() bool           { return v == "" }
func (v String) String() string         { return string(v) }

func (v String) Equal(other Value) bool {
	w, ok := other.(String)
	return ok && v == w
}

// Point is a single point value: two integer coordinates.
type Point struct {
	X int32
	Y int32
}

func (Point) BaseType() BaseType       { return BaseTypePoint }
func (Point) Cardinality() Cardinality { return CardinalitySingle }
func (Point) IsNull() bool             { return false }

func (v Point) String() string {
	return fmt.Sprintf("%d %d", v.X, v.Y)
}

func (v Point) Equal(other Value) bool {
	w, ok := other.(Point)
	return ok && v == w
}

// Pair is a single unordered pair of identifiers: (A B) equals (B A).
type Pair struct {
	First  string
	Second string
}

func (Pair) BaseType() BaseType       { return BaseTypePair }
func (Pair) Cardinality() Cardinality { return CardinalitySingle }
func (Pair) IsNull() bool             { return false }

func (v Pair) String() string {
	return v.First + " " + v.Second
}

func (v Pair) Equal(other Value) bool {
	w, ok := other.(Pair)
	if !ok {
		return false
	}
	return (v.First == w.First && v.Second == w.Second) ||
		(v.First == w.Second && v.Second == w.First)
}

// DirectedPair is a single ordered pair of identifiers.
type DirectedPair struct {
	First  string
	Second string
}

func (DirectedPair) BaseType() BaseType       { return BaseTypeDirectedPair }
func (DirectedPair) Cardinality() Cardinality { return CardinalitySingle }
func (DirectedPair) IsNull() bool             { return false }

func (v DirectedPair) String() string {
	return v.First + " " + v.Second
}

func (v DirectedPair) Equal(other Value) bool {
	w, ok := other.(DirectedPair)
	return ok && v == w
}

// File is a single file value captured from the candidate.
type File struct {
	Name string
	MIME string
	Data []byte
}

func (File) BaseType() BaseType       { return BaseTypeFile }
func (File) Cardinality() Cardinality { return CardinalitySingle }
func (File) IsNull() bool             { return false }
func (v File) String() string         { return v.Name }

func (v File) Equal(other Value) bool {
	w, ok := other.(File)
	return ok && v.Name == w.Name && v.MIME == w.MIME && bytes.Equal(v.Data, w.Data)
}

// URI is a single URI value.
type URI string

func (URI) BaseType() BaseType       { return BaseTypeURI }
func (URI) Cardinality() Cardinality { return CardinalitySingle }
func (URI) IsNull() bool             { return false }
func (v URI) String() string         { return string(v) }

func (v URI) Equal(other Value) bool {
	w, ok := other.(URI)
	return ok && v == w
}
