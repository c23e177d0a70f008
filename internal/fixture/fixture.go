// Package fixture writes small Parquet and Arrow IPC containers for tests
// and for the example blob server.
package fixture

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// EventSchema returns the schema of the event fixture.
//
// Fields:
//   - entity_id: string - Entity identifier
//   - event: string (nullable) - Event type name
//   - timestamp: float64 - Unix timestamp
//   - sequence: int64 - Position in the entity's history
//   - level: uint8 - Severity
//   - flagged: bool (nullable)
//   - data: binary (nullable) - Raw event payload
//   - origin: struct<source: string, attempt: int32> - Delivery metadata
func EventSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "entity_id", Type: arrow.BinaryTypes.String},
			{Name: "event", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "timestamp", Type: arrow.PrimitiveTypes.Float64},
			{Name: "sequence", Type: arrow.PrimitiveTypes.Int64},
			{Name: "level", Type: arrow.PrimitiveTypes.Uint8},
			{Name: "flagged", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
			{Name: "data", Type: arrow.BinaryTypes.Binary, Nullable: true},
			{Name: "origin", Type: arrow.StructOf(originFields()...)},
		},
		nil,
	)
}

func originFields() []arrow.Field {
	return []arrow.Field{
		{Name: "source", Type: arrow.BinaryTypes.String},
		{Name: "attempt", Type: arrow.PrimitiveTypes.Int32},
	}
}

// Event is one row of the event fixture. Nil pointers and nil Data are
// written as nulls.
type Event struct {
	EntityID  string
	Event     *string
	Timestamp float64
	Sequence  int64
	Level     uint8
	Flagged   *bool
	Data      []byte
	Source    string
	Attempt   int32
}

// Events returns n deterministic events. Every third event has a null
// name, every fourth a null flag and every fifth null data.
func Events(n int) []Event {
	names := []string{"created", "updated", "archived"}
	events := make([]Event, n)
	for i := range events {
		e := Event{
			EntityID:  fmt.Sprintf("entity-%03d", i%17),
			Timestamp: 1.7e9 + float64(i)*0.25,
			Sequence:  int64(i) - 5,
			Level:     uint8(i % 6),
			Data:      []byte{byte(i), byte(i >> 8), 0xff},
			Source:    fmt.Sprintf("node-%d", i%3),
			Attempt:   int32(i % 4),
		}
		if i%3 != 0 {
			name := names[i%len(names)]
			e.Event = &name
		}
		if i%4 != 0 {
			flag := i%2 == 0
			e.Flagged = &flag
		}
		if i%5 == 0 {
			e.Data = nil
		}
		events[i] = e
	}
	return events
}

// BuildRecord builds one record batch of events. The caller must release
// it.
func BuildRecord(mem memory.Allocator, events []Event) arrow.RecordBatch {
	b := array.NewRecordBuilder(mem, EventSchema())
	defer b.Release()

	entity := b.Field(0).(*array.StringBuilder)
	name := b.Field(1).(*array.StringBuilder)
	ts := b.Field(2).(*array.Float64Builder)
	seq := b.Field(3).(*array.Int64Builder)
	level := b.Field(4).(*array.Uint8Builder)
	flagged := b.Field(5).(*array.BooleanBuilder)
	data := b.Field(6).(*array.BinaryBuilder)
	origin := b.Field(7).(*array.StructBuilder)
	source := origin.FieldBuilder(0).(*array.StringBuilder)
	attempt := origin.FieldBuilder(1).(*array.Int32Builder)

	for _, e := range events {
		entity.Append(e.EntityID)
		if e.Event != nil {
			name.Append(*e.Event)
		} else {
			name.AppendNull()
		}
		ts.Append(e.Timestamp)
		seq.Append(e.Sequence)
		level.Append(e.Level)
		if e.Flagged != nil {
			flagged.Append(*e.Flagged)
		} else {
			flagged.AppendNull()
		}
		if e.Data != nil {
			data.Append(e.Data)
		} else {
			data.AppendNull()
		}
		origin.Append(true)
		source.Append(e.Source)
		attempt.Append(e.Attempt)
	}

	return b.NewRecordBatch()
}

// WriteParquet writes events as a Parquet file with at most rowGroupRows
// rows per row group, compressed with codec.
func WriteParquet(events []Event, rowGroupRows int64, codec compress.Compression) ([]byte, error) {
	rec := BuildRecord(memory.DefaultAllocator, events)
	defer rec.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithMaxRowGroupLength(rowGroupRows),
	)

	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(rec.Schema(), &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteIPC writes events as an Arrow IPC file with batchRows rows per
// record batch.
func WriteIPC(events []Event, batchRows int) ([]byte, error) {
	if batchRows <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchRows)
	}

	var records []arrow.RecordBatch
	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()
	for start := 0; start < len(events); start += batchRows {
		end := min(start+batchRows, len(events))
		records = append(records, BuildRecord(memory.DefaultAllocator, events[start:end]))
	}

	return WriteIPCRecords(EventSchema(), records...)
}

// WriteIPCRecords writes arbitrary record batches as an Arrow IPC file.
func WriteIPCRecords(schema *arrow.Schema, records ...arrow.RecordBatch) ([]byte, error) {
	var buf bytes.Buffer

	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to create ipc writer: %w", err)
	}
	for i, rec := range records {
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}
