package surface

import (
	"context"
	"errors"

	"github.com/VanDung-dev/colblob/decoder"
	"github.com/VanDung-dev/colblob/pipeline"
	"github.com/VanDung-dev/colblob/project"
	"github.com/VanDung-dev/colblob/source"
)

// Errors surfaced to hosts. Match them with errors.Is.
var (
	ErrIO                = source.ErrIO
	ErrOutOfRange        = source.ErrOutOfRange
	ErrProtocolViolation = source.ErrProtocolViolation
	ErrDecode            = decoder.ErrDecode
	ErrUnsupportedType   = project.ErrUnsupportedType
	ErrIndexOutOfBounds  = pipeline.ErrIndexOutOfBounds
	ErrDrained           = pipeline.ErrDrained

	ErrUnsupportedContainer = errors.New("surface: container supports neither random access nor streaming")
)

// ErrorKind is the coarse class of a surface error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindIO
	KindDecode
	KindUnsupportedType
	KindIndexOutOfBounds
	KindProtocolViolation
	KindUnsupportedContainer
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "IOError"
	case KindDecode:
		return "DecodeError"
	case KindUnsupportedType:
		return "UnsupportedTypeError"
	case KindIndexOutOfBounds:
		return "RangeError"
	case KindProtocolViolation:
		return "ProtocolViolationError"
	case KindUnsupportedContainer:
		return "TypeError"
	case KindCanceled:
		return "AbortError"
	default:
		return "Error"
	}
}

// Classify returns the kind of err. A failed read wrapped by a decoder
// error is an I/O error, and so is a host read that timed out. A
// cancelled wait anywhere else is KindCanceled.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrProtocolViolation):
		return KindProtocolViolation
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrDecode), errors.Is(err, ErrDrained):
		return KindDecode
	case errors.Is(err, ErrUnsupportedType):
		return KindUnsupportedType
	case errors.Is(err, ErrIndexOutOfBounds):
		return KindIndexOutOfBounds
	case errors.Is(err, ErrUnsupportedContainer):
		return KindUnsupportedContainer
	}
	return KindUnknown
}
