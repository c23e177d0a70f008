// Package hostvalue is the value model a host environment receives for a
// single element of a materialized array: null, booleans, numbers,
// strings, byte arrays and frozen ordered objects.
package hostvalue

import (
	"bytes"
	"errors"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// ErrFrozen is returned when mutating an Object.
var ErrFrozen = errors.New("hostvalue: object is frozen")

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindBytes
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindObject:
		return "object"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one host value.
type Value interface {
	Kind() Kind
	json.Marshaler
}

// Null is the host null.
type Null struct{}

func (Null) Kind() Kind                   { return KindNull }
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Bool is a host boolean.
type Bool bool

func (Bool) Kind() Kind { return KindBool }

func (b Bool) MarshalJSON() ([]byte, error) {
	return strconv.AppendBool(nil, bool(b)), nil
}

// Number is a host number. Hosts of this kind only have double precision
// floats, so every numeric type is widened to float64.
type Number float64

func (Number) Kind() Kind { return KindNumber }

// MarshalJSON writes NaN and the infinities as null, as JSON.stringify does.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// String is a host string.
type String string

func (String) Kind() Kind { return KindString }

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// Bytes is a host byte array. It never aliases decoder memory.
type Bytes []byte

func (Bytes) Kind() Kind { return KindBytes }

// MarshalJSON writes the bytes as an array of numbers, the way a typed
// byte array serializes once copied into a plain array.
func (b Bytes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, c := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(c)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Equal reports whether two values are structurally equal. NaN numbers
// compare equal to each other.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Number:
		bv := b.(Number)
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case String:
		return av == b.(String)
	case Bytes:
		return bytes.Equal(av, b.(Bytes))
	case *Object:
		bv := b.(*Object)
		if av.Len() != bv.Len() {
			return false
		}
		for i, name := range av.names {
			if bv.names[i] != name || !Equal(av.values[i], bv.values[i]) {
				return false
			}
		}
		return true
	}
	return false
}
