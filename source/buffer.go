package source

import "context"

// Buffer serves byte ranges from memory. Reads resolve before
// ReadByteRange returns.
type Buffer struct {
	data []byte
}

var _ RangeReader = (*Buffer)(nil)

// NewBuffer wraps data. The caller must not modify data afterwards.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Size(ctx context.Context) (uint64, error) {
	return uint64(len(b.data)), nil
}

func (b *Buffer) ReadByteRange(offset, length uint64) *PendingRead {
	p := newPendingRead(offset, length)
	if err := checkRange(offset, length, uint64(len(b.data))); err != nil {
		p.resolve(nil, err)
		return p
	}

	out := make([]byte, length)
	copy(out, b.data[offset:offset+length])
	p.resolve(out, nil)
	return p
}
