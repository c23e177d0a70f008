// Package source exposes host byte containers to the decoders.
//
// A ByteSource turns a random-access container into an asynchronous
// byte-range read capability. Each read completes into its own one-shot
// PendingRead, so any number of reads may be in flight and finish in any
// order. Preload covers containers that can only be streamed: it copies
// the whole stream into memory once, after which a Buffer serves ranges.
// Reader adapts either to the io.ReaderAt/io.Seeker interfaces the
// decoders expect.
package source

import (
	"errors"
	"fmt"
)

// Errors returned by byte sources and preloads
var (
	// ErrIO reports a failed read of the host container.
	ErrIO = errors.New("source: i/o error")
	// ErrOutOfRange reports a byte range outside the container. It is an
	// I/O error: errors.Is(err, ErrIO) holds.
	ErrOutOfRange = fmt.Errorf("%w: range out of bounds", ErrIO)
	// ErrProtocolViolation reports a host stream that broke its contract.
	ErrProtocolViolation = errors.New("source: stream protocol violation")
	// ErrConsumed is returned by a second Await on the same PendingRead.
	ErrConsumed = errors.New("source: pending read already consumed")
)

// RangeError describes a read that does not fit inside the container.
type RangeError struct {
	Offset uint64
	Length uint64
	Size   uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("source: range [%d, +%d) outside container of %d bytes", e.Offset, e.Length, e.Size)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// checkRange validates [offset, offset+length) against size without
// overflowing.
func checkRange(offset, length, size uint64) error {
	if offset > size || length > size-offset {
		return &RangeError{Offset: offset, Length: length, Size: size}
	}
	return nil
}
