package pipeline

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// IndexError reports an element index outside an array.
type IndexError struct {
	Index uint64
	Len   uint64
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("pipeline: index %d out of bounds for array of length %d", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfBounds }

// Array is a fully materialized, immutable chunked array. It is safe for
// concurrent reads.
type Array struct {
	chunked *arrow.Chunked
	schema  *arrow.Schema
	// offsets[i] is the index of the first element of chunk i.
	offsets []uint64
}

func newArray(chunked *arrow.Chunked, schema *arrow.Schema) *Array {
	offsets := make([]uint64, len(chunked.Chunks()))
	var off uint64
	for i, c := range chunked.Chunks() {
		offsets[i] = off
		off += uint64(c.Len())
	}
	return &Array{chunked: chunked, schema: schema, offsets: offsets}
}

// Len returns the total number of elements.
func (a *Array) Len() uint64 { return uint64(a.chunked.Len()) }

func (a *Array) Schema() *arrow.Schema { return a.schema }

func (a *Array) DataType() arrow.DataType { return a.chunked.DataType() }

func (a *Array) NumChunks() int { return len(a.chunked.Chunks()) }

// Chunked exposes the underlying chunked array. It must not be released
// by the caller.
func (a *Array) Chunked() *arrow.Chunked { return a.chunked }

// ScalarAt returns element i as a scalar.
func (a *Array) ScalarAt(i uint64) (scalar.Scalar, error) {
	if i >= a.Len() {
		return nil, &IndexError{Index: i, Len: a.Len()}
	}

	// Last chunk starting at or before i. It is never empty: an empty
	// chunk shares its offset with the chunk after it.
	c := sort.Search(len(a.offsets), func(k int) bool { return a.offsets[k] > i }) - 1

	return scalar.GetScalar(a.chunked.Chunks()[c], int(i-a.offsets[c]))
}

func (a *Array) Retain() { a.chunked.Retain() }

func (a *Array) Release() { a.chunked.Release() }
