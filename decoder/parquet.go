package decoder

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/VanDung-dev/colblob/source"
)

type parquetReader struct {
	pf     *file.Reader
	rr     pqarrow.RecordReader
	schema *arrow.Schema
	rows   int64
}

func openParquet(ctx context.Context, r *source.Reader, dctx *Context) (*parquetReader, error) {
	pf, err := file.NewParquetReader(r, file.WithReadProps(parquet.NewReaderProperties(dctx.Allocator)))
	if err != nil {
		return nil, decodeErr(err)
	}

	if err := checkCodecs(pf, dctx); err != nil {
		pf.Close()
		return nil, err
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: dctx.BatchSize}, dctx.Allocator)
	if err != nil {
		pf.Close()
		return nil, decodeErr(err)
	}
	schema, err := fr.Schema()
	if err != nil {
		pf.Close()
		return nil, decodeErr(err)
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		pf.Close()
		return nil, decodeErr(err)
	}

	return &parquetReader{
		pf:     pf,
		rr:     rr,
		schema: schema,
		rows:   pf.NumRows(),
	}, nil
}

// checkCodecs rejects files with a column chunk compressed by a codec
// the context does not recognize.
func checkCodecs(pf *file.Reader, dctx *Context) error {
	md := pf.MetaData()
	for rg := 0; rg < pf.NumRowGroups(); rg++ {
		rgmd := md.RowGroup(rg)
		for col := 0; col < rgmd.NumColumns(); col++ {
			cc, err := rgmd.ColumnChunk(col)
			if err != nil {
				return decodeErr(err)
			}
			if !dctx.recognizesCodec(cc.Compression()) {
				return fmt.Errorf("%w: column %d in row group %d uses unrecognized codec %s",
					ErrDecode, col, rg, cc.Compression())
			}
		}
	}
	return nil
}

func (p *parquetReader) Schema() *arrow.Schema { return p.schema }

func (p *parquetReader) RowCount() int64 { return p.rows }

func (p *parquetReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.rr.Next() {
		if err := p.rr.Err(); err != nil && err != io.EOF {
			return nil, decodeErr(err)
		}
		return nil, io.EOF
	}
	return array.RecordToStructArray(p.rr.Record()), nil
}

func (p *parquetReader) Close() error {
	p.rr.Release()
	return p.pf.Close()
}
