package snapshot

import (
	"fmt"

	"proctor/internal/model"
	"proctor/pkg/qti"
)

// encodeValue writes one variable value: a null flag byte, then a
// payload shaped by the declared cardinality and base type. Container
// payloads are length-prefixed; record fields carry their own base
// type because records mix them.
func encodeValue(w *writer, decl *model.VariableDeclaration, v qti.Value) error {
	if qti.IsNull(v) {
		w.u8(0)
		return nil
	}
	w.u8(1)
	switch decl.Cardinality {
	case qti.CardinalitySingle:
		return encodeScalar(w, decl.BaseType, v)
	case qti.CardinalityMultiple, qti.CardinalityOrdered:
		c, ok := v.(*qti.Container)
		if !ok {
			return fmt.Errorf("variable %s holds %T, want a container", decl.Identifier, v)
		}
		w.count(c.Len())
		for _, item := range c.Items() {
			if err := encodeScalar(w, decl.BaseType, item); err != nil {
				return fmt.Errorf("variable %s: %w", decl.Identifier, err)
			}
		}
		return nil
	case qti.CardinalityRecord:
		rec, ok := v.(*qti.Record)
		if !ok {
			return fmt.Errorf("variable %s holds %T, want a record", decl.Identifier, v)
		}
		w.count(rec.Len())
		for _, key := range rec.Keys() {
			field, _ := rec.Get(key)
			w.str(key)
			w.u8(uint8(field.BaseType()))
			if err := encodeScalar(w, field.BaseType(), field); err != nil {
				return fmt.Errorf("variable %s field %s: %w", decl.Identifier, key, err)
			}
		}
		return nil
	}
	return fmt.Errorf("variable %s has unsupported cardinality %s", decl.Identifier, decl.Cardinality)
}

// decodeValue reads one variable value shaped by decl.
func decodeValue(r *reader, decl *model.VariableDeclaration) (qti.Value, error) {
	flag, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("%w: null flag %d", ErrMalformed, flag)
	}
	switch decl.Cardinality {
	case qti.CardinalitySingle:
		return decodeScalar(r, decl.BaseType)
	case qti.CardinalityMultiple, qti.CardinalityOrdered:
		n, err := r.count()
		if err != nil {
			return nil, err
		}
		c, err := qti.NewContainer(decl.Cardinality, decl.BaseType)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			item, err := decodeScalar(r, decl.BaseType)
			if err != nil {
				return nil, err
			}
			if err := c.Append(item); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		return c, nil
	case qti.CardinalityRecord:
		n, err := r.count()
		if err != nil {
			return nil, err
		}
		rec := qti.NewRecord()
		for i := 0; i < n; i++ {
			key, err := r.str()
			if err != nil {
				return nil, err
			}
			bt, err := r.u8()
			if err != nil {
				return nil, err
			}
			field, err := decodeScalar(r, qti.BaseType(bt))
			if err != nil {
				return nil, err
			}
			if err := rec.Set(key, field); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: variable %s has unsupported cardinality %s",
		ErrMalformed, decl.Identifier, decl.Cardinality)
}

// encodeScalar writes one scalar payload. Strings and identifiers are
// length-prefixed UTF-8, integers 4 bytes signed, floats 8 bytes
// IEEE-754, booleans one byte, durations their ISO-8601 text.
func encodeScalar(w *writer, bt qti.BaseType, v qti.Value) error {
	switch bt {
	case qti.BaseTypeIdentifier:
		s, ok := v.(qti.Identifier)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(string(s))
	case qti.BaseTypeBoolean:
		b, ok := v.(qti.Boolean)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.boolean(bool(b))
	case qti.BaseTypeInteger:
		n, ok := v.(qti.Integer)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.i32(int32(n))
	case qti.BaseTypeFloat:
		f, ok := v.(qti.Float)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.f64(float64(f))
	case qti.BaseTypeString:
		s, ok := v.(qti.String)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(string(s))
	case qti.BaseTypePoint:
		p, ok := v.(qti.Point)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.i32(p.X)
		w.i32(p.Y)
	case qti.BaseTypePair:
		p, ok := v.(qti.Pair)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(p.First)
		w.str(p.Second)
	case qti.BaseTypeDirectedPair:
		p, ok := v.(qti.DirectedPair)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(p.First)
		w.str(p.Second)
	case qti.BaseTypeDuration:
		d, ok := v.(qti.Duration)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(d.ISO())
	case qti.BaseTypeFile:
		f, ok := v.(qti.File)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(f.Name)
		w.str(f.MIME)
		w.blob(f.Data)
	case qti.BaseTypeURI:
		u, ok := v.(qti.URI)
		if !ok {
			return scalarMismatch(bt, v)
		}
		w.str(string(u))
	default:
		return fmt.Errorf("unsupported base type %s", bt)
	}
	return nil
}

func scalarMismatch(bt qti.BaseType, v qti.Value) error {
	return fmt.Errorf("scalar holds %T, want %s", v, bt)
}

// decodeScalar reads one scalar payload of the given base type.
func decodeScalar(r *reader, bt qti.BaseType) (qti.Value, error) {
	switch bt {
	case qti.BaseTypeIdentifier:
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return qti.Identifier(s), nil
	case qti.BaseTypeBoolean:
		b, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return qti.Boolean(b), nil
	case qti.BaseTypeInteger:
		n, err := r.i32()
		if err != nil {
			return nil, err
		}
		return qti.Integer(n), nil
	case qti.BaseTypeFloat:
		f, err := r.f64()
		if err != nil {
			return nil, err
		}
		return qti.Float(f), nil
	case qti.BaseTypeString:
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return qti.String(s), nil
	case qti.BaseTypePoint:
		x, err := r.i32()
		if err != nil {
			return nil, err
		}
		y, err := r.i32()
		if err != nil {
			return nil, err
		}
		return qti.Point{X: x, Y: y}, nil
	case qti.BaseTypePair:
		first, second, err := decodePairMembers(r)
		if err != nil {
			return nil, err
		}
		return qti.Pair{First: first, Second: second}, nil
	case qti.BaseTypeDirectedPair:
		first, second, err := decodePairMembers(r)
		if err != nil {
			return nil, err
		}
		return qti.DirectedPair{First: first, Second: second}, nil
	case qti.BaseTypeDuration:
		iso, err := r.str()
		if err != nil {
			return nil, err
		}
		d, err := qti.ParseISODuration(iso)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return d, nil
	case qti.BaseTypeFile:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		mime, err := r.str()
		if err != nil {
			return nil, err
		}
		data, err := r.blob()
		if err != nil {
			return nil, err
		}
		return qti.File{Name: name, MIME: mime, Data: data}, nil
	case qti.BaseTypeURI:
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return qti.URI(s), nil
	}
	return nil, fmt.Errorf("%w: unsupported base type %s", ErrMalformed, bt)
}

func decodePairMembers(r *reader) (string, string, error) {
	first, err := r.str()
	if err != nil {
		return "", "", err
	}
	second, err := r.str()
	if err != nil {
		return "", "", err
	}
	return first, second, nil
}
