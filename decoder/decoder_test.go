package decoder

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet/compress"

	"github.com/VanDung-dev/colblob/internal/fixture"
	"github.com/VanDung-dev/colblob/source"
)

func readAllChunks(t *testing.T, r Reader) []arrow.Array {
	t.Helper()
	var chunks []arrow.Array
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func TestBuildParquet(t *testing.T) {
	data, err := fixture.WriteParquet(fixture.Events(100), 40, compress.Codecs.Zstd)
	if err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	dctx := DefaultContext()
	dctx.BatchSize = 25
	r, err := NewReadBuilder(source.NewBuffer(data), dctx).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	if r.RowCount() != 100 {
		t.Errorf("Expected 100 rows, got %d", r.RowCount())
	}
	if r.Schema().NumFields() != fixture.EventSchema().NumFields() {
		t.Errorf("Expected %d fields, got %d", fixture.EventSchema().NumFields(), r.Schema().NumFields())
	}

	chunks := readAllChunks(t, r)
	defer func() {
		for _, c := range chunks {
			c.Release()
		}
	}()

	var rows int
	want := arrow.StructOf(r.Schema().Fields()...)
	for _, c := range chunks {
		if !arrow.TypeEqual(c.DataType(), want) {
			t.Errorf("Chunk type %s does not match schema", c.DataType())
		}
		rows += c.Len()
	}
	if rows != 100 {
		t.Errorf("Expected 100 rows across chunks, got %d", rows)
	}
	if len(chunks) < 2 {
		t.Errorf("Expected multiple chunks, got %d", len(chunks))
	}
}

func TestBuildIPC(t *testing.T) {
	data, err := fixture.WriteIPC(fixture.Events(95), 30)
	if err != nil {
		t.Fatalf("WriteIPC failed: %v", err)
	}

	r, err := NewReadBuilder(source.NewBuffer(data), nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	if r.RowCount() != 95 {
		t.Errorf("Expected 95 rows, got %d", r.RowCount())
	}

	chunks := readAllChunks(t, r)
	defer func() {
		for _, c := range chunks {
			c.Release()
		}
	}()

	wantLens := []int{30, 30, 30, 5}
	if len(chunks) != len(wantLens) {
		t.Fatalf("Expected %d chunks, got %d", len(wantLens), len(chunks))
	}
	for i, c := range chunks {
		if c.Len() != wantLens[i] {
			t.Errorf("Chunk %d: expected %d rows, got %d", i, wantLens[i], c.Len())
		}
	}

	first := chunks[0].(*array.Struct)
	ids := first.Field(0).(*array.String)
	if ids.Value(0) != "entity-000" {
		t.Errorf("Expected entity-000, got %s", ids.Value(0))
	}

	if _, err := r.Next(context.Background()); err != io.EOF {
		t.Errorf("Expected io.EOF after last chunk, got %v", err)
	}
}

// countingSource records the bytes requested through it.
type countingSource struct {
	source.RangeReader

	mu    sync.Mutex
	bytes uint64
	reads int
}

func (c *countingSource) ReadByteRange(offset, length uint64) *source.PendingRead {
	c.mu.Lock()
	c.bytes += length
	c.reads++
	c.mu.Unlock()
	return c.RangeReader.ReadByteRange(offset, length)
}

func TestBuildIPCReadsMetadataOnly(t *testing.T) {
	data, err := fixture.WriteIPC(fixture.Events(4000), 500)
	if err != nil {
		t.Fatalf("WriteIPC failed: %v", err)
	}

	src := &countingSource{RangeReader: source.NewBuffer(data)}
	r, err := NewReadBuilder(src, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	if r.RowCount() != 4000 {
		t.Errorf("Expected 4000 rows, got %d", r.RowCount())
	}
	if src.bytes*10 > uint64(len(data)) {
		t.Errorf("Build read %d of %d bytes, expected metadata only", src.bytes, len(data))
	}
}

func TestBuildIPCCorruptBatchMetadata(t *testing.T) {
	data, err := fixture.WriteIPC(fixture.Events(60), 20)
	if err != nil {
		t.Fatalf("WriteIPC failed: %v", err)
	}

	n := len(data)
	footerLen := int(binary.LittleEndian.Uint32(data[n-ipcFooterTail:]))
	blocks, err := footerBlocks(data[n-ipcFooterTail-footerLen : n-ipcFooterTail])
	if err != nil || len(blocks) != 3 {
		t.Fatalf("Expected 3 record batch blocks, got %d (%v)", len(blocks), err)
	}

	cases := []struct {
		name   string
		mutate func(meta []byte)
	}{
		{"root offset out of range", func(meta []byte) {
			binary.LittleEndian.PutUint32(meta[8:], 0x7ffffff0)
		}},
		{"zeroed message", func(meta []byte) {
			for i := 8; i < len(meta); i++ {
				meta[i] = 0
			}
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			corrupt := append([]byte(nil), data...)
			b := blocks[1]
			c.mutate(corrupt[b.offset : b.offset+int64(b.meta)])

			_, err := NewReadBuilder(source.NewBuffer(corrupt), nil).Build(context.Background())
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestBatchLengthRejectsOtherMessages(t *testing.T) {
	// Message table with header_type 1 (Schema) and no header.
	meta := []byte{
		0xff, 0xff, 0xff, 0xff, 0x14, 0x00, 0x00, 0x00, // continuation, size
		0x0c, 0x00, 0x00, 0x00, // root table at 12
		0x08, 0x00, 0x08, 0x00, 0x00, 0x00, 0x04, 0x00, // vtable: version absent, header_type at +4
		0x08, 0x00, 0x00, 0x00, // table: vtable 8 bytes back
		0x01, 0x00, 0x00, 0x00, // header_type
	}
	if _, err := batchLength(meta); err == nil {
		t.Error("Expected an error for a non record batch message")
	}
}

func TestBuildRejectsUnknownFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"too small", []byte("PAR1")},
		{"garbage", []byte("this is not a columnar container")},
		{"head only", append([]byte("PAR1"), make([]byte, 20)...)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewReadBuilder(source.NewBuffer(c.data), nil).Build(context.Background())
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestBuildRejectsDisabledFormat(t *testing.T) {
	data, err := fixture.WriteIPC(fixture.Events(5), 5)
	if err != nil {
		t.Fatalf("WriteIPC failed: %v", err)
	}

	dctx := DefaultContext()
	dctx.Formats = []Format{FormatParquet}
	if _, err := NewReadBuilder(source.NewBuffer(data), dctx).Build(context.Background()); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestBuildRejectsUnrecognizedCodec(t *testing.T) {
	data, err := fixture.WriteParquet(fixture.Events(10), 10, compress.Codecs.Gzip)
	if err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	dctx := DefaultContext()
	dctx.Codecs = []compress.Compression{compress.Codecs.Uncompressed, compress.Codecs.Snappy}
	_, err = NewReadBuilder(source.NewBuffer(data), dctx).Build(context.Background())
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestBuildCorruptFooter(t *testing.T) {
	data, err := fixture.WriteParquet(fixture.Events(10), 10, compress.Codecs.Uncompressed)
	if err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	// Overwrite the footer length, keeping both magics intact.
	corrupt := append([]byte(nil), data...)
	n := len(corrupt)
	copy(corrupt[n-8:n-4], []byte{0xff, 0xff, 0xff, 0x7f})

	_, err = NewReadBuilder(source.NewBuffer(corrupt), nil).Build(context.Background())
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestContextWithDefaults(t *testing.T) {
	var nilCtx *Context
	c := nilCtx.withDefaults()
	if c.BatchSize != DefaultBatchSize || c.Allocator == nil || c.Logger == nil {
		t.Errorf("Nil context should take every default, got %+v", c)
	}

	partial := (&Context{BatchSize: 7}).withDefaults()
	if partial.BatchSize != 7 {
		t.Errorf("Expected batch size 7 to be kept, got %d", partial.BatchSize)
	}
	if !partial.recognizesFormat(FormatArrowIPC) {
		t.Error("Default formats should include arrow-ipc")
	}
}
