package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/VanDung-dev/colblob/decoder"
	"github.com/VanDung-dev/colblob/internal/fixture"
	"github.com/VanDung-dev/colblob/metrics"
	"github.com/VanDung-dev/colblob/source"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "n", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// fakeReader yields one int32 chunk per entry of sizes, whatever schema
// it declares. The chunk at failAt fails instead.
type fakeReader struct {
	mem     memory.Allocator
	schema  *arrow.Schema
	sizes   []int
	failAt  int
	rows    int64
	next    int
	closed  bool
	readErr error
}

func newFakeReader(mem memory.Allocator, sizes ...int) *fakeReader {
	var rows int64
	for _, s := range sizes {
		rows += int64(s)
	}
	return &fakeReader{mem: mem, schema: testSchema, sizes: sizes, failAt: -1, rows: rows}
}

func (r *fakeReader) Schema() *arrow.Schema { return r.schema }
func (r *fakeReader) RowCount() int64       { return r.rows }
func (r *fakeReader) Close() error          { r.closed = true; return nil }

func (r *fakeReader) Next(ctx context.Context) (arrow.Array, error) {
	if r.next >= len(r.sizes) {
		return nil, io.EOF
	}
	if r.next == r.failAt {
		r.next++
		return nil, r.readErr
	}

	start := 0
	for _, s := range r.sizes[:r.next] {
		start += s
	}

	b := array.NewInt32Builder(r.mem)
	defer b.Release()
	for i := 0; i < r.sizes[r.next]; i++ {
		b.Append(int32(start + i))
	}
	col := b.NewArray()
	defer col.Release()

	rec := array.NewRecord(testSchema, []arrow.Array{col}, int64(col.Len()))
	defer rec.Release()

	r.next++
	return array.RecordToStructArray(rec), nil
}

type fakeBuilder struct {
	reader decoder.Reader
	err    error
}

func (b fakeBuilder) Build(ctx context.Context) (decoder.Reader, error) {
	return b.reader, b.err
}

func TestMaterialize(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	reader := newFakeReader(mem, 3, 0, 4, 2)
	p, err := Open(context.Background(), fakeBuilder{reader: reader}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	if p.RowCount() != 9 {
		t.Errorf("Expected row count 9, got %d", p.RowCount())
	}

	arr, err := p.Materialize(context.Background())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	defer arr.Release()

	if arr.Len() != 9 {
		t.Fatalf("Expected length 9, got %d", arr.Len())
	}
	if arr.NumChunks() != 4 {
		t.Errorf("Expected 4 chunks, got %d", arr.NumChunks())
	}

	for i := uint64(0); i < arr.Len(); i++ {
		s, err := arr.ScalarAt(i)
		if err != nil {
			t.Fatalf("ScalarAt(%d) failed: %v", i, err)
		}
		n := s.(*scalar.Struct).Value[0].(*scalar.Int32).Value
		if uint64(n) != i {
			t.Errorf("ScalarAt(%d): expected %d, got %d", i, i, n)
		}
	}
}

func TestScalarAtOutOfBounds(t *testing.T) {
	reader := newFakeReader(memory.DefaultAllocator, 5)
	p, err := Open(context.Background(), fakeBuilder{reader: reader}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	arr, err := p.Materialize(context.Background())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	defer arr.Release()

	for _, i := range []uint64{5, 6, 1 << 40} {
		_, err := arr.ScalarAt(i)
		if !errors.Is(err, ErrIndexOutOfBounds) {
			t.Errorf("ScalarAt(%d): expected ErrIndexOutOfBounds, got %v", i, err)
		}
		var ie *IndexError
		if !errors.As(err, &ie) || ie.Len != 5 {
			t.Errorf("Expected IndexError with length 5, got %v", err)
		}
	}
}

func TestMaterializeEmpty(t *testing.T) {
	p, err := Open(context.Background(), fakeBuilder{reader: newFakeReader(memory.DefaultAllocator)}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	arr, err := p.Materialize(context.Background())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	defer arr.Release()

	if arr.Len() != 0 {
		t.Errorf("Expected empty array, got %d", arr.Len())
	}
	if _, err := arr.ScalarAt(0); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("Expected ErrIndexOutOfBounds, got %v", err)
	}
}

func TestMaterializeFailsMidway(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	readErr := errors.New("corrupt page")
	reader := newFakeReader(mem, 4, 4, 4)
	reader.failAt = 1
	reader.readErr = readErr

	p, err := Open(context.Background(), fakeBuilder{reader: reader}, &Options{Metrics: m})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	arr, err := p.Materialize(context.Background())
	if !errors.Is(err, readErr) {
		t.Errorf("Expected read error, got %v", err)
	}
	if arr != nil {
		t.Error("No partial array may be returned")
	}
	if reader.next != 2 {
		t.Errorf("Materialize should stop at the failing chunk, next = %d", reader.next)
	}
	if got := testutil.ToFloat64(m.MaterializationsFailed); got != 1 {
		t.Errorf("Expected 1 failed materialization, got %v", got)
	}
}

func TestMaterializeRowCountMismatch(t *testing.T) {
	reader := newFakeReader(memory.DefaultAllocator, 2, 2)
	reader.rows = 10

	p, err := Open(context.Background(), fakeBuilder{reader: reader}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := p.Materialize(context.Background()); !errors.Is(err, decoder.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestMaterializeTypeMismatch(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	reader := newFakeReader(mem, 2, 3)
	reader.schema = arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)

	p, err := Open(context.Background(), fakeBuilder{reader: reader}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	arr, err := p.Materialize(context.Background())
	if !errors.Is(err, decoder.ErrDecode) {
		t.Fatalf("Expected ErrDecode, got %v", err)
	}
	if arr != nil {
		t.Error("Expected no array after a type mismatch")
	}
	if !strings.Contains(err.Error(), "chunk 0 has type") || !strings.Contains(err.Error(), "int32") {
		t.Errorf("Expected the rejected chunk type in the error, got %v", err)
	}
}

func TestMaterializeTwice(t *testing.T) {
	p, err := Open(context.Background(), fakeBuilder{reader: newFakeReader(memory.DefaultAllocator, 1)}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	arr, err := p.Materialize(context.Background())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	defer arr.Release()

	if _, err := p.Materialize(context.Background()); !errors.Is(err, ErrDrained) {
		t.Errorf("Expected ErrDrained, got %v", err)
	}
}

func TestOpenPropagatesBuildError(t *testing.T) {
	buildErr := errors.New("no footer")
	if _, err := Open(context.Background(), fakeBuilder{err: buildErr}, nil); !errors.Is(err, buildErr) {
		t.Errorf("Expected build error, got %v", err)
	}
}

func TestMaterializeIPCContainer(t *testing.T) {
	events := fixture.Events(70)
	data, err := fixture.WriteIPC(events, 32)
	if err != nil {
		t.Fatalf("WriteIPC failed: %v", err)
	}

	p, err := Open(context.Background(), decoder.NewReadBuilder(source.NewBuffer(data), nil), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	arr, err := p.Materialize(context.Background())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	defer arr.Release()

	if arr.Len() != 70 || arr.NumChunks() != 3 {
		t.Fatalf("Expected 70 rows in 3 chunks, got %d in %d", arr.Len(), arr.NumChunks())
	}

	s, err := arr.ScalarAt(64)
	if err != nil {
		t.Fatalf("ScalarAt failed: %v", err)
	}
	seq := s.(*scalar.Struct).Value[3].(*scalar.Int64).Value
	if seq != events[64].Sequence {
		t.Errorf("Expected sequence %d, got %d", events[64].Sequence, seq)
	}
}
