package qti

import (
	"fmt"
	"sort"
	"strings"
)

// Container holds the values of a multiple or ordered cardinality
// variable. All elements share one base type; mixed containers are
// rejected on Append. An empty container is NULL.
type Container struct {
	card  Cardinality
	elem  BaseType
	items []Value
}

// NewContainer creates an empty container of the given cardinality and
// element base type. Only multiple and ordered cardinalities are valid.
func NewContainer(card Cardinality, elem BaseType) (*Container, error) {
	if card != CardinalityMultiple && card != CardinalityOrdered {
		return nil, fmt.Errorf("container cardinality must be multiple or ordered, got %s", card)
	}
	return &Container{card: card, elem: elem}, nil
}

// MultipleOf builds a multiple container from the given scalars.
func MultipleOf(elem BaseType, items ...Value) (*Container, error) {
	return buildContainer(CardinalityMultiple, elem, items)
}

// OrderedOf builds an ordered container from the given scalars.
func OrderedOf(elem BaseType, items ...Value) (*Container, error) {
	return buildContainer(CardinalityOrdered, elem, items)
}

func buildContainer(card Cardinality, elem BaseType, items []Value) (*Container, error) {
	c, err := NewContainer(card, elem)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := c.Append(item); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) BaseType() BaseType       { return c.elem }
func (c *Container) Cardinality() Cardinality { return c.card }
func (c *Container) IsNull() bool             { return len(c.items) == 0 }
func (c *Container) Len() int                 { return len(c.items) }

// At returns the i-th element. The caller is responsible for bounds.
func (c *Container) At(i int) Value { return c.items[i] }

// Items returns the backing slice. Callers must not modify it.
func (c *Container) Items() []Value { return c.items }

// Append adds a scalar to the container. The scalar must be single
// cardinality and match the container's element base type.
func (c *Container) Append(v Value) error {
	if v == nil {
		return fmt.Errorf("cannot append nil to a %s container", c.card)
	}
	if v.Cardinality() != CardinalitySingle {
		return fmt.Errorf("containers hold scalars only, got %s cardinality", v.Cardinality())
	}
	if v.BaseType() != c.elem {
		return fmt.Errorf("container of %s cannot hold %s", c.elem, v.BaseType())
	}
	c.items = append(c.items, v)
	return nil
}

// Contains reports whether the container holds a scalar equal to v.
func (c *Container) Contains(v Value) bool {
	if IsNull(v) {
		return false
	}
	for _, item := range c.items {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

// Equal compares containers. Ordered containers compare element by
// element; multiple containers compare as multisets.
func (c *Container) Equal(other Value) bool {
	w, ok := other.(*Container)
	if !ok || w.card != c.card || w.elem != c.elem || len(w.items) != len(c.items) {
		return false
	}
	if c.card == CardinalityOrdered {
		for i, item := range c.items {
			if !item.Equal(w.items[i]) {
				return false
			}
		}
		return true
	}
	matched := make([]bool, len(w.items))
outer:
	for _, item := range c.items {
		for i, candidate := range w.items {
			if !matched[i] && item.Equal(candidate) {
				matched[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func (c *Container) String() string {
	parts := make([]string, len(c.items))
	for i, item := range c.items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

// Record maps field identifiers to scalar values of arbitrary base
// types. An empty record is NULL.
type Record struct {
	fields map[string]Value
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]Value)}
}

func (*Record) BaseType() BaseType       { return BaseTypeNone }
func (*Record) Cardinality() Cardinality { return CardinalityRecord }
func (r *Record) IsNull() bool           { return len(r.fields) == 0 }
func (r *Record) Len() int               { return len(r.fields) }

// Set stores a scalar under the given field name, replacing any
// previous value.
func (r *Record) Set(name string, v Value) error {
	if v == nil {
		return fmt.Errorf("record field %q cannot hold nil", name)
	}
	if v.Cardinality() != CardinalitySingle {
		return fmt.Errorf("record field %q must be a scalar, got %s cardinality", name, v.Cardinality())
	}
	r.fields[name] = v
	return nil
}

// Get returns the scalar stored under name.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Keys returns the field names in sorted order so iteration stays
// deterministic.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Record) Equal(other Value) bool {
	w, ok := other.(*Record)
	if !ok || len(w.fields) != len(r.fields) {
		return false
	}
	for k, v := range r.fields {
		wv, present := w.fields[k]
		if !present || !v.Equal(wv) {
			return false
		}
	}
	return true
}

func (r *Record) String() string {
	parts := make([]string, 0, len(r.fields))
	for _, k := range r.Keys() {
		parts = append(parts, k+"="+r.fields[k].String())
	}
	return "{" + strings.Join(parts, "; ") + "}"
}
