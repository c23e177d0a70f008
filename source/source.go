package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/metrics"
)

// RangeReader is the byte-read capability handed to the decoders.
type RangeReader interface {
	// ReadByteRange starts a read of [offset, offset+length) and returns
	// immediately. It may be called from any goroutine.
	ReadByteRange(offset, length uint64) *PendingRead
	// Size returns the total size of the underlying bytes.
	Size(ctx context.Context) (uint64, error)
}

// Options configures a ByteSource.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// ByteSource serves byte ranges out of a random-access host container.
type ByteSource struct {
	blob    host.Sliceable
	loop    *host.Loop
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ RangeReader = (*ByteSource)(nil)

// NewByteSource creates a byte source over blob. Reads run on the blob's
// loop. A nil opts uses slog.Default() and records no metrics.
func NewByteSource(blob host.Sliceable, opts *Options) *ByteSource {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ByteSource{
		blob:    blob,
		loop:    blob.Loop(),
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Size returns the container size. It never fails.
func (s *ByteSource) Size(ctx context.Context) (uint64, error) {
	return s.blob.Size(), nil
}

// ReadByteRange slices the container, reads the slice with a fresh
// one-shot reader and resolves the returned PendingRead with a copy of
// the bytes. Reads are independent of each other.
func (s *ByteSource) ReadByteRange(offset, length uint64) *PendingRead {
	p := newPendingRead(offset, length)

	if err := checkRange(offset, length, s.blob.Size()); err != nil {
		s.metrics.RecordRangeRead(0, 0, err)
		p.resolve(nil, err)
		return p
	}
	if length == 0 {
		p.resolve([]byte{}, nil)
		return p
	}

	start := time.Now()
	finish := func(data []byte, err error) {
		s.metrics.RecordRangeRead(len(data), time.Since(start), err)
		if err != nil {
			s.logger.Debug("Range read failed", "offset", offset, "length", length, "error", err)
		}
		p.resolve(data, err)
	}

	if err := s.loop.Post(func() { s.issue(offset, length, finish) }); err != nil {
		finish(nil, fmt.Errorf("%w: %w", ErrIO, err))
		return p
	}
	s.metrics.UpdateLoop(s.loop.Stats().Pending)
	return p
}

// issue runs on the loop.
func (s *ByteSource) issue(offset, length uint64, finish func([]byte, error)) {
	sub, err := s.blob.Slice(offset, offset+length)
	if err != nil {
		finish(nil, fmt.Errorf("%w: slice [%d, %d): %w", ErrIO, offset, offset+length, err))
		return
	}

	r := s.blob.NewReader()
	r.OnLoad(func(data []byte, err error) {
		if err != nil {
			finish(nil, fmt.Errorf("%w: read [%d, %d): %w", ErrIO, offset, offset+length, err))
			return
		}
		if uint64(len(data)) != length {
			finish(nil, fmt.Errorf("%w: read [%d, %d) returned %d bytes", ErrIO, offset, offset+length, len(data)))
			return
		}
		buf := make([]byte, length)
		copy(buf, data)
		finish(buf, nil)
	})

	if err := r.ReadAll(sub); err != nil {
		finish(nil, fmt.Errorf("%w: read [%d, %d): %w", ErrIO, offset, offset+length, err))
	}
}
