package source

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Reader adapts a RangeReader to io.Reader, io.ReaderAt and io.Seeker.
// Every ReadAt is one range read awaited under the context the Reader was
// created with, since the io interfaces carry none of their own.
//
// ReadAt is safe for concurrent use. Read and Seek share a cursor.
type Reader struct {
	ctx  context.Context
	rr   RangeReader
	size int64

	mu  sync.Mutex
	pos int64
}

var (
	_ io.ReadSeeker = (*Reader)(nil)
	_ io.ReaderAt   = (*Reader)(nil)
)

// NewReader queries the size of rr and returns a Reader positioned at 0.
func NewReader(ctx context.Context, rr RangeReader) (*Reader, error) {
	size, err := rr.Size(ctx)
	if err != nil {
		return nil, err
	}
	if int64(size) < 0 {
		return nil, &RangeError{Size: size}
	}
	return &Reader{ctx: ctx, rr: rr, size: int64(size)}, nil
}

// Size returns the size of the underlying bytes.
func (r *Reader) Size() int64 { return r.size }

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("source: negative offset")
	}
	if off >= r.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	n := int64(len(p))
	if rem := r.size - off; n > rem {
		n = rem
	}
	data, err := r.rr.ReadByteRange(uint64(off), uint64(n)).Await(r.ctx)
	if err != nil {
		return 0, err
	}
	copied := copy(p, data)
	if copied < len(p) {
		return copied, io.EOF
	}
	return copied, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= r.size {
		return 0, io.EOF
	}
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errors.New("source: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("source: negative position")
	}
	r.pos = abs
	return abs, nil
}
