// Package host models the capability-limited byte containers a host
// environment hands to colblob, and the single cooperative loop those
// containers are confined to.
//
// This package implements:
//   - Blob, Sliceable and Streamable container capabilities
//   - BlobReader: one-shot, callback-based whole reads
//   - ByteStream: forward-only, bring-your-own-buffer reads
//   - Loop: the execution context every host object is confined to
//   - MemBlob: an in-memory container for native hosts and tests
package host

import "errors"

// Common errors for host containers
var (
	ErrInvalidSlice  = errors.New("host: invalid slice bounds")
	ErrForeignBlob   = errors.New("host: blob does not belong to this reader")
	ErrReaderUsed    = errors.New("host: reader already started a read")
	ErrStreamClosed  = errors.New("host: stream closed")
	ErrLoopStopped   = errors.New("host: loop is stopped")
	ErrNotStreamable = errors.New("host: container does not support streaming")
)

// Blob is an opaque, immutable byte container owned by the host.
//
// Size is static for the lifetime of the blob and may be called from any
// goroutine. Every other operation on a blob, its readers and its streams
// must run on the blob's Loop.
type Blob interface {
	Size() uint64
	Loop() *Loop
}

// Sliceable is a Blob that supports random access: slice a fixed
// sub-region, then read that region with a one-shot BlobReader.
type Sliceable interface {
	Blob
	// Slice returns a view of the bytes in [start, end).
	Slice(start, end uint64) (Blob, error)
	// NewReader returns a fresh reader. A reader performs one read.
	NewReader() BlobReader
}

// BlobReader reads a whole blob and reports the result through the
// callback registered with OnLoad. The callback runs at most once, on the
// loop, and never when ReadAll returns an error.
type BlobReader interface {
	OnLoad(fn func(data []byte, err error))
	ReadAll(b Blob) error
}

// Streamable is a Blob that can only be read front to back.
type Streamable interface {
	Blob
	Stream() (ByteStream, error)
}

// StreamChunk is one delivery from a ByteStream. Data aliases the view
// passed to ReadInto and is only valid until the next ReadInto.
type StreamChunk struct {
	Data []byte
	Done bool
}

// ByteStream is a pull-based stream that lands data into a caller-supplied
// buffer. Each ReadInto completes exactly once through cb, on the loop.
type ByteStream interface {
	ReadInto(view []byte, cb func(StreamChunk, error))
	Close() error
}
