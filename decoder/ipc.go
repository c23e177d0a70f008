package decoder

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/VanDung-dev/colblob/source"
)

type ipcReader struct {
	fr   *ipc.FileReader
	rows int64
	next int
}

// openIPC opens an Arrow IPC file. The footer holds no row counts, so
// they are summed from the record batch message headers without reading
// any batch body.
func openIPC(ctx context.Context, src source.RangeReader, r *source.Reader, dctx *Context) (*ipcReader, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(dctx.Allocator))
	if err != nil {
		return nil, decodeErr(err)
	}

	rows, batches, err := ipcRowCount(ctx, src, uint64(r.Size()))
	if err != nil {
		fr.Close()
		return nil, err
	}
	if batches != fr.NumRecords() {
		fr.Close()
		return nil, fmt.Errorf("%w: footer lists %d record batches, reader found %d", ErrDecode, batches, fr.NumRecords())
	}

	return &ipcReader{fr: fr, rows: rows}, nil
}

func (p *ipcReader) Schema() *arrow.Schema { return p.fr.Schema() }

func (p *ipcReader) RowCount() int64 { return p.rows }

func (p *ipcReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.next >= p.fr.NumRecords() {
		return nil, io.EOF
	}

	rec, err := p.fr.RecordAt(p.next)
	if err != nil {
		return nil, decodeErr(err)
	}
	p.next++
	defer rec.Release()

	return array.RecordToStructArray(rec), nil
}

func (p *ipcReader) Close() error {
	return p.fr.Close()
}
