package decoder

import (
	"context"
	"encoding/binary"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/VanDung-dev/colblob/source"
)

// Arrow IPC file layout constants.
const (
	// ipcFooterTail is the footer length field followed by the magic.
	ipcFooterTail = 4 + magicLen

	ipcContinuation  = 0xFFFFFFFF
	ipcBlockSize     = 24
	ipcHeaderBatches = 3

	// vtable slots
	footerRecordBatches = 10
	messageHeaderType   = 6
	messageHeader       = 8
	recordBatchLength   = 4
)

type ipcBlock struct {
	offset int64
	meta   int32
}

// ipcRowCount sums the lengths recorded in each record batch message
// header. Only the footer and the message metadata are read; batch
// bodies are not.
func ipcRowCount(ctx context.Context, src source.RangeReader, size uint64) (rows int64, batches int, err error) {
	if size < ipcFooterTail+magicLen {
		return 0, 0, fmt.Errorf("%w: ipc file of %d bytes is too small", ErrDecode, size)
	}

	tail, err := src.ReadByteRange(size-ipcFooterTail, ipcFooterTail).Await(ctx)
	if err != nil {
		return 0, 0, decodeErr(err)
	}
	footerLen := uint64(binary.LittleEndian.Uint32(tail[:4]))
	if footerLen == 0 || footerLen+ipcFooterTail+magicLen > size {
		return 0, 0, fmt.Errorf("%w: ipc footer length %d inconsistent with file size %d", ErrDecode, footerLen, size)
	}

	footer, err := src.ReadByteRange(size-ipcFooterTail-footerLen, footerLen).Await(ctx)
	if err != nil {
		return 0, 0, decodeErr(err)
	}

	var blocks []ipcBlock
	if gerr := guardFlatbuffer(func() { blocks, err = footerBlocks(footer) }); gerr != nil {
		return 0, 0, gerr
	}
	if err != nil {
		return 0, 0, fmt.Errorf("%w: ipc footer: %w", ErrDecode, err)
	}

	reads := make([]*source.PendingRead, len(blocks))
	for i, b := range blocks {
		if b.offset < 0 || b.meta < 8 || uint64(b.offset)+uint64(b.meta) > size {
			return 0, 0, fmt.Errorf("%w: record batch %d metadata [%d, +%d) outside file", ErrDecode, i, b.offset, b.meta)
		}
		reads[i] = src.ReadByteRange(uint64(b.offset), uint64(b.meta))
	}

	for i, rd := range reads {
		meta, err := rd.Await(ctx)
		if err != nil {
			return 0, 0, decodeErr(err)
		}
		var n int64
		if gerr := guardFlatbuffer(func() { n, err = batchLength(meta) }); gerr != nil {
			return 0, 0, gerr
		}
		if err != nil {
			return 0, 0, fmt.Errorf("%w: record batch %d: %w", ErrDecode, i, err)
		}
		rows += n
	}
	return rows, len(blocks), nil
}

func footerBlocks(buf []byte) ([]ipcBlock, error) {
	t := rootTable(buf)
	o := flatbuffers.UOffsetT(t.Offset(footerRecordBatches))
	if o == 0 {
		return nil, nil
	}
	vec := t.Vector(o)
	n := t.VectorLen(o)
	if uint64(vec)+uint64(n)*ipcBlockSize > uint64(len(buf)) {
		return nil, fmt.Errorf("%d record batch blocks overrun a footer of %d bytes", n, len(buf))
	}

	blocks := make([]ipcBlock, n)
	for j := range blocks {
		pos := vec + flatbuffers.UOffsetT(j*ipcBlockSize)
		blocks[j] = ipcBlock{offset: t.GetInt64(pos), meta: t.GetInt32(pos + 8)}
	}
	return blocks, nil
}

// batchLength reads the row count of one encapsulated record batch
// message.
func batchLength(meta []byte) (int64, error) {
	prefix := 4
	if binary.LittleEndian.Uint32(meta) == ipcContinuation {
		prefix = 8
	}

	msg := rootTable(meta[prefix:])
	var kind byte
	if o := flatbuffers.UOffsetT(msg.Offset(messageHeaderType)); o != 0 {
		kind = msg.GetByte(o + msg.Pos)
	}
	if kind != ipcHeaderBatches {
		return 0, fmt.Errorf("message header type %d is not a record batch", kind)
	}

	o := flatbuffers.UOffsetT(msg.Offset(messageHeader))
	if o == 0 {
		return 0, fmt.Errorf("record batch message has no header")
	}
	var hdr flatbuffers.Table
	msg.Union(&hdr, o)

	var n int64
	if o := flatbuffers.UOffsetT(hdr.Offset(recordBatchLength)); o != 0 {
		n = hdr.GetInt64(o + hdr.Pos)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative length %d", n)
	}
	return n, nil
}

func rootTable(buf []byte) flatbuffers.Table {
	return flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}
}

// guardFlatbuffer turns an out-of-range access in corrupt metadata into
// a decode error.
func guardFlatbuffer(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: corrupt ipc metadata: %v", ErrDecode, r)
		}
	}()
	fn()
	return nil
}
