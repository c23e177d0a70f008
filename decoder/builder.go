// Package decoder opens columnar containers through a byte-range read
// capability.
//
// A ReadBuilder sniffs the container format from its magic bytes and
// opens a Reader that yields the file as a sequence of struct-array
// chunks. Parquet and Arrow IPC files are supported; both are read with
// Apache Arrow for Go.
package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/VanDung-dev/colblob/source"
)

// ErrDecode is wrapped by every error a decoder returns.
var ErrDecode = errors.New("decoder: decode error")

var (
	parquetMagic = []byte("PAR1")
	arrowMagic   = []byte("ARROW1")
)

// magicLen is the number of bytes read from each end of the container.
const magicLen = 6

// Reader yields a container as struct-array chunks.
type Reader interface {
	// Schema returns the file schema. Each chunk is a struct array whose
	// fields are the schema fields.
	Schema() *arrow.Schema
	// RowCount returns the total number of rows in the file.
	RowCount() int64
	// Next returns the next chunk, or io.EOF after the last one. The
	// caller owns the returned array and must release it.
	Next(ctx context.Context) (arrow.Array, error)
	Close() error
}

// ReadBuilder opens a Reader over a RangeReader.
type ReadBuilder struct {
	src  source.RangeReader
	dctx *Context
}

// NewReadBuilder creates a builder. A nil dctx uses DefaultContext().
func NewReadBuilder(src source.RangeReader, dctx *Context) *ReadBuilder {
	return &ReadBuilder{src: src, dctx: dctx.withDefaults()}
}

// Build sniffs the format and opens the file. Reads issued by the
// returned Reader are bound to ctx.
func (b *ReadBuilder) Build(ctx context.Context) (Reader, error) {
	r, err := source.NewReader(ctx, b.src)
	if err != nil {
		return nil, decodeErr(err)
	}

	format, err := sniff(ctx, b.src, uint64(r.Size()))
	if err != nil {
		return nil, err
	}
	if !b.dctx.recognizesFormat(format) {
		return nil, fmt.Errorf("%w: format %s not enabled", ErrDecode, format)
	}

	b.dctx.Logger.Debug("Opening container", "format", format, "size", r.Size())

	switch format {
	case FormatParquet:
		return openParquet(ctx, r, b.dctx)
	default:
		return openIPC(ctx, b.src, r, b.dctx)
	}
}

// sniff issues the head and tail reads together and matches magic bytes.
func sniff(ctx context.Context, src source.RangeReader, size uint64) (Format, error) {
	if size < 2*magicLen {
		return "", fmt.Errorf("%w: container of %d bytes is too small", ErrDecode, size)
	}

	headRead := src.ReadByteRange(0, magicLen)
	tailRead := src.ReadByteRange(size-magicLen, magicLen)

	head, err := headRead.Await(ctx)
	if err != nil {
		return "", decodeErr(err)
	}
	tail, err := tailRead.Await(ctx)
	if err != nil {
		return "", decodeErr(err)
	}

	switch {
	case bytes.HasPrefix(head, parquetMagic) && bytes.HasSuffix(tail, parquetMagic):
		return FormatParquet, nil
	case bytes.Equal(head, arrowMagic) && bytes.Equal(tail, arrowMagic):
		return FormatArrowIPC, nil
	}
	return "", fmt.Errorf("%w: unrecognized container format", ErrDecode)
}

func decodeErr(err error) error {
	if errors.Is(err, ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDecode, err)
}
