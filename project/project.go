// Package project converts decoded scalars into host values.
//
// The conversion is a closed match over the logical type of the scalar:
// the type decides whether a conversion exists at all, and only then is
// the validity of the value consulted. A type without a conversion is an
// error even when the value itself is null.
package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"

	"github.com/VanDung-dev/colblob/hostvalue"
	"github.com/VanDung-dev/colblob/metrics"
)

// ErrUnsupportedType is returned for scalars whose type has no host
// representation.
var ErrUnsupportedType = errors.New("project: unsupported type")

// UnsupportedTypeError names the type that could not be projected and,
// inside a struct, the path of the offending field.
type UnsupportedTypeError struct {
	Type arrow.DataType
	Path []string
}

func (e *UnsupportedTypeError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("project: unsupported type %s", e.Type)
	}
	return fmt.Sprintf("project: unsupported type %s at field %s", e.Type, strings.Join(e.Path, "."))
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// Options configures a Projector.
type Options struct {
	// WidenFloat16 converts half floats to numbers instead of rejecting
	// them.
	WidenFloat16 bool
	Metrics      *metrics.Metrics
}

// Projector converts scalars to host values. It is stateless and safe for
// concurrent use.
type Projector struct {
	widenFloat16 bool
	metrics      *metrics.Metrics
}

// New creates a Projector. A nil opts uses the zero Options.
func New(opts *Options) *Projector {
	if opts == nil {
		opts = &Options{}
	}
	return &Projector{
		widenFloat16: opts.WidenFloat16,
		metrics:      opts.Metrics,
	}
}

// Project converts s into a host value.
func (p *Projector) Project(s scalar.Scalar) (hostvalue.Value, error) {
	v, err := p.project(s, nil)
	if err != nil {
		var ute *UnsupportedTypeError
		if errors.As(err, &ute) {
			p.metrics.RecordProjectionFailure(ute.Type.String())
		}
		return nil, err
	}
	return v, nil
}

func (p *Projector) project(s scalar.Scalar, path []string) (hostvalue.Value, error) {
	dt := s.DataType()

	switch dt.ID() {
	case arrow.NULL:
		return hostvalue.Null{}, nil

	case arrow.BOOL:
		if !s.IsValid() {
			return hostvalue.Null{}, nil
		}
		return hostvalue.Bool(s.(*scalar.Boolean).Value), nil

	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.FLOAT32, arrow.FLOAT64:
		if !s.IsValid() {
			return hostvalue.Null{}, nil
		}
		return widen(s)

	case arrow.FLOAT16:
		if !p.widenFloat16 {
			return nil, unsupported(dt, path)
		}
		if !s.IsValid() {
			return hostvalue.Null{}, nil
		}
		return hostvalue.Number(s.(*scalar.Float16).Value.Float32()), nil

	case arrow.STRING, arrow.LARGE_STRING:
		if !s.IsValid() {
			return hostvalue.Null{}, nil
		}
		return hostvalue.String(s.(scalar.BinaryScalar).Data()), nil

	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY:
		if !s.IsValid() {
			return hostvalue.Null{}, nil
		}
		data := s.(scalar.BinaryScalar).Data()
		out := make([]byte, len(data))
		copy(out, data)
		return hostvalue.Bytes(out), nil

	case arrow.STRUCT:
		return p.projectStruct(s, dt.(*arrow.StructType), path)

	case arrow.EXTENSION:
		// TODO: project extension values through their storage type once
		// hosts agree on a representation for them.
		return nil, unsupported(dt, path)

	default:
		// Lists and every other logical type have no host representation.
		return nil, unsupported(dt, path)
	}
}

func (p *Projector) projectStruct(s scalar.Scalar, st *arrow.StructType, path []string) (hostvalue.Value, error) {
	ss, ok := s.(*scalar.Struct)
	if !ok || !s.IsValid() || ss.Value == nil {
		return hostvalue.Null{}, nil
	}

	names := make([]string, len(ss.Value))
	values := make([]hostvalue.Value, len(ss.Value))
	for i, child := range ss.Value {
		names[i] = st.Field(i).Name
		v, err := p.project(child, append(path[:len(path):len(path)], names[i]))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return hostvalue.NewObject(names, values), nil
}

// widen converts any primitive numeric scalar to a float64. 64-bit
// integers beyond 2^53 lose precision.
func widen(s scalar.Scalar) (hostvalue.Value, error) {
	switch v := s.(type) {
	case *scalar.Uint8:
		return hostvalue.Number(v.Value), nil
	case *scalar.Uint16:
		return hostvalue.Number(v.Value), nil
	case *scalar.Uint32:
		return hostvalue.Number(v.Value), nil
	case *scalar.Uint64:
		return hostvalue.Number(v.Value), nil
	case *scalar.Int8:
		return hostvalue.Number(v.Value), nil
	case *scalar.Int16:
		return hostvalue.Number(v.Value), nil
	case *scalar.Int32:
		return hostvalue.Number(v.Value), nil
	case *scalar.Int64:
		return hostvalue.Number(v.Value), nil
	case *scalar.Float32:
		return hostvalue.Number(v.Value), nil
	case *scalar.Float64:
		return hostvalue.Number(v.Value), nil
	}
	return nil, unsupported(s.DataType(), nil)
}

func unsupported(dt arrow.DataType, path []string) error {
	return &UnsupportedTypeError{Type: dt, Path: path}
}
