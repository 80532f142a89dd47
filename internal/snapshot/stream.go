package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ErrMalformed marks streams that cannot be decoded: truncated data,
// bad magic, or fields outside their valid range.
var ErrMalformed = fmt.Errorf("malformed snapshot")

// ErrVersion marks streams written by an unsupported codec version.
var ErrVersion = fmt.Errorf("unsupported snapshot version")

// writer accumulates the encoded stream. Fixed-width fields are
// big-endian; counts and lengths are unsigned varints.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *writer) boolean(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *writer) uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

func (w *writer) count(n int) {
	w.uvarint(uint64(n))
}

func (w *writer) i32(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	w.buf.Write(tmp[:])
}

func (w *writer) f64(v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	w.buf.Write(tmp[:])
}

func (w *writer) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) blob(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf.Write(b)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at offset %d, want %d more bytes", ErrMalformed, r.pos, n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) boolean() (bool, error) {
	v, err := r.u8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: boolean byte %d at offset %d", ErrMalformed, v, r.pos-1)
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at offset %d", ErrMalformed, r.pos)
	}
	r.pos += n
	return v, nil
}

// count reads a varint used as an element count and bounds it by the
// bytes left in the stream, so corrupt lengths cannot drive huge
// allocations.
func (r *reader) count() (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(r.remaining()) {
		return 0, fmt.Errorf("%w: count %d exceeds %d remaining bytes", ErrMalformed, v, r.remaining())
	}
	return int(v), nil
}

func (r *reader) i32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) f64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) str() (string, error) {
	n, err := r.count()
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) blob() ([]byte, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}
