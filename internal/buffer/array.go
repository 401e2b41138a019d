// Package buffer holds the typed numeric arrays that back accessors, and the
// little-endian packing used when they are written into binary buffers.
package buffer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the numeric kind of an Array's elements.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
	KindFloat64
)

var kindNames = map[Kind]string{
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindFloat32: "float32",
	KindFloat64: "float64",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown array kind %q", s)
}

// ByteSize returns the size in bytes of one element.
func (k Kind) ByteSize() int {
	switch k {
	case KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindFloat64:
		return 8
	}
	return 0
}

// Array is a flat typed numeric array. The set of implementations is closed.
type Array interface {
	Kind() Kind
	// Len is the number of scalar components (not items).
	Len() int
	// At returns component i widened to float64.
	At(i int) float64
	// AppendBytes appends components [start, end) little-endian.
	AppendBytes(dst []byte, start, end int) []byte
	Clone() Array
}

type (
	Int8Array    []int8
	Uint8Array   []uint8
	Int16Array   []int16
	Uint16Array  []uint16
	Int32Array   []int32
	Uint32Array  []uint32
	Float32Array []float32
	Float64Array []float64
)

func (a Int8Array) Kind() Kind          { return KindInt8 }
func (a Int8Array) Len() int            { return len(a) }
func (a Int8Array) At(i int) float64    { return float64(a[i]) }
func (a Int8Array) Clone() Array        { return append(Int8Array(nil), a...) }
func (a Uint8Array) Kind() Kind         { return KindUint8 }
func (a Uint8Array) Len() int           { return len(a) }
func (a Uint8Array) At(i int) float64   { return float64(a[i]) }
func (a Uint8Array) Clone() Array       { return append(Uint8Array(nil), a...) }
func (a Int16Array) Kind() Kind         { return KindInt16 }
func (a Int16Array) Len() int           { return len(a) }
func (a Int16Array) At(i int) float64   { return float64(a[i]) }
func (a Int16Array) Clone() Array       { return append(Int16Array(nil), a...) }
func (a Uint16Array) Kind() Kind        { return KindUint16 }
func (a Uint16Array) Len() int          { return len(a) }
func (a Uint16Array) At(i int) float64  { return float64(a[i]) }
func (a Uint16Array) Clone() Array      { return append(Uint16Array(nil), a...) }
func (a Int32Array) Kind() Kind         { return KindInt32 }
func (a Int32Array) Len() int           { return len(a) }
func (a Int32Array) At(i int) float64   { return float64(a[i]) }
func (a Int32Array) Clone() Array       { return append(Int32Array(nil), a...) }
func (a Uint32Array) Kind() Kind        { return KindUint32 }
func (a Uint32Array) Len() int          { return len(a) }
func (a Uint32Array) At(i int) float64  { return float64(a[i]) }
func (a Uint32Array) Clone() Array      { return append(Uint32Array(nil), a...) }
func (a Float32Array) Kind() Kind       { return KindFloat32 }
func (a Float32Array) Len() int         { return len(a) }
func (a Float32Array) At(i int) float64 { return float64(a[i]) }
func (a Float32Array) Clone() Array     { return append(Float32Array(nil), a...) }
func (a Float64Array) Kind() Kind       { return KindFloat64 }
func (a Float64Array) Len() int         { return len(a) }
func (a Float64Array) At(i int) float64 { return a[i] }
func (a Float64Array) Clone() Array     { return append(Float64Array(nil), a...) }

func (a Int8Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = append(dst, byte(v))
	}
	return dst
}

func (a Uint8Array) AppendBytes(dst []byte, start, end int) []byte {
	return append(dst, a[start:end]...)
}

func (a Int16Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}

func (a Uint16Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}

func (a Int32Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
	}
	return dst
}

func (a Uint32Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}

func (a Float32Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

func (a Float64Array) AppendBytes(dst []byte, start, end int) []byte {
	for _, v := range a[start:end] {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
	}
	return dst
}

// Bytes returns the whole array packed little-endian.
func Bytes(a Array) []byte {
	if a == nil {
		return nil
	}
	return a.AppendBytes(make([]byte, 0, a.Len()*a.Kind().ByteSize()), 0, a.Len())
}

// FromBytes decodes little-endian data into an Array of the given kind.
// len(b) must be a multiple of the element size.
func FromBytes(kind Kind, b []byte) (Array, error) {
	size := kind.ByteSize()
	if size == 0 {
		return nil, fmt.Errorf("invalid array kind %d", kind)
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of %s size %d", len(b), kind, size)
	}
	n := len(b) / size
	le := binary.LittleEndian
	switch kind {
	case KindInt8:
		out := make(Int8Array, n)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out, nil
	case KindUint8:
		return append(Uint8Array(nil), b...), nil
	case KindInt16:
		out := make(Int16Array, n)
		for i := range out {
			out[i] = int16(le.Uint16(b[i*2:]))
		}
		return out, nil
	case KindUint16:
		out := make(Uint16Array, n)
		for i := range out {
			out[i] = le.Uint16(b[i*2:])
		}
		return out, nil
	case KindInt32:
		out := make(Int32Array, n)
		for i := range out {
			out[i] = int32(le.Uint32(b[i*4:]))
		}
		return out, nil
	case KindUint32:
		out := make(Uint32Array, n)
		for i := range out {
			out[i] = le.Uint32(b[i*4:])
		}
		return out, nil
	case KindFloat32:
		out := make(Float32Array, n)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(b[i*4:]))
		}
		return out, nil
	default:
		out := make(Float64Array, n)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(b[i*8:]))
		}
		return out, nil
	}
}
