package host

import (
	"fmt"
)

// DefaultStreamChunkSize is the largest delivery a MemBlob stream makes.
const DefaultStreamChunkSize = 16 * 1024

// MemOption configures a MemBlob.
type MemOption func(*MemBlob)

// WithStreamChunkSize caps how many bytes each stream delivery carries.
func WithStreamChunkSize(n int) MemOption {
	return func(b *MemBlob) {
		if n > 0 {
			b.chunkSize = n
		}
	}
}

// MemBlob is an in-memory container. Reads complete asynchronously on the
// blob's loop, the same way a browser delivers FileReader events.
type MemBlob struct {
	loop      *Loop
	data      []byte
	chunkSize int
}

var (
	_ Sliceable  = (*MemBlob)(nil)
	_ Streamable = (*MemBlob)(nil)
)

// NewMemBlob wraps data. The caller must not modify data afterwards.
func NewMemBlob(loop *Loop, data []byte, opts ...MemOption) *MemBlob {
	b := &MemBlob{
		loop:      loop,
		data:      data,
		chunkSize: DefaultStreamChunkSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemBlob) Size() uint64 { return uint64(len(b.data)) }

func (b *MemBlob) Loop() *Loop { return b.loop }

// Slice returns a view over [start, end). No bytes are copied.
func (b *MemBlob) Slice(start, end uint64) (Blob, error) {
	if start > end || end > b.Size() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrInvalidSlice, start, end, b.Size())
	}
	return &MemBlob{
		loop:      b.loop,
		data:      b.data[start:end:end],
		chunkSize: b.chunkSize,
	}, nil
}

func (b *MemBlob) NewReader() BlobReader {
	return &memReader{loop: b.loop}
}

func (b *MemBlob) Stream() (ByteStream, error) {
	return &memStream{blob: b}, nil
}

// memReader is the FileReader analogue for MemBlob.
type memReader struct {
	loop   *Loop
	onLoad func([]byte, error)
	used   bool
}

func (r *memReader) OnLoad(fn func([]byte, error)) {
	r.onLoad = fn
}

func (r *memReader) ReadAll(b Blob) error {
	if r.used {
		return ErrReaderUsed
	}
	mb, ok := b.(*MemBlob)
	if !ok {
		return ErrForeignBlob
	}
	r.used = true

	cb := r.onLoad
	return r.loop.Post(func() {
		if cb != nil {
			cb(mb.data, nil)
		}
	})
}

// memStream delivers a MemBlob front to back in chunkSize pieces. A read
// after the last byte reports Done with no data.
type memStream struct {
	blob   *MemBlob
	offset int
	closed bool
}

func (s *memStream) ReadInto(view []byte, cb func(StreamChunk, error)) {
	err := s.blob.loop.Post(func() {
		if s.closed {
			cb(StreamChunk{}, ErrStreamClosed)
			return
		}
		if s.offset >= len(s.blob.data) {
			cb(StreamChunk{Done: true}, nil)
			return
		}

		n := len(view)
		if n > s.blob.chunkSize {
			n = s.blob.chunkSize
		}
		n = copy(view[:n], s.blob.data[s.offset:])
		s.offset += n
		cb(StreamChunk{Data: view[:n]}, nil)
	})
	if err != nil {
		cb(StreamChunk{}, err)
	}
}

func (s *memStream) Close() error {
	s.closed = true
	return nil
}

// streamOnly hides the random-access capability of a blob.
type streamOnly struct {
	b *MemBlob
}

// StreamOnly exposes b as a forward-only container, the way hosts without
// slicing support present their data.
func StreamOnly(b *MemBlob) Streamable {
	return streamOnly{b: b}
}

func (s streamOnly) Size() uint64 { return s.b.Size() }

func (s streamOnly) Loop() *Loop { return s.b.Loop() }

func (s streamOnly) Stream() (ByteStream, error) { return s.b.Stream() }
