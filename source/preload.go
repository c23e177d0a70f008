package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/metrics"
)

// DefaultPreloadChunkSize is the landing buffer size used by Preload.
const DefaultPreloadChunkSize = 64 * 1024

// PreloadOptions configures Preload.
type PreloadOptions struct {
	ChunkSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// DefaultPreloadOptions returns the default preload configuration.
func DefaultPreloadOptions() *PreloadOptions {
	return &PreloadOptions{
		ChunkSize: DefaultPreloadChunkSize,
		Logger:    slog.Default(),
	}
}

type streamResult struct {
	chunk host.StreamChunk
	err   error
}

// Preload copies a forward-only stream of exactly size bytes into one
// freshly allocated buffer. Each read lands into a reused buffer on loop
// and is copied to the target at the current offset.
//
// An empty delivery that is not the end of the stream, or a delivery past
// size, is a protocol violation. A stream that ends early is an I/O error
// wrapping io.ErrUnexpectedEOF.
func Preload(ctx context.Context, loop *host.Loop, stream host.ByteStream, size uint64, opts *PreloadOptions) ([]byte, error) {
	if opts == nil {
		opts = DefaultPreloadOptions()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultPreloadChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if size > math.MaxInt {
		return nil, fmt.Errorf("%w: container of %d bytes does not fit in memory", ErrIO, size)
	}
	target := make([]byte, size)
	view := make([]byte, chunkSize)
	results := make(chan streamResult, 1)

	var offset uint64
	for offset < size {
		err := loop.Post(func() {
			stream.ReadInto(view, func(c host.StreamChunk, err error) {
				results <- streamResult{chunk: c, err: err}
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}

		var res streamResult
		select {
		case res = <-results:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if res.err != nil {
			return nil, fmt.Errorf("%w: stream read at %d: %w", ErrIO, offset, res.err)
		}

		n := uint64(len(res.chunk.Data))
		if n > size-offset {
			return nil, fmt.Errorf("%w: %d bytes delivered at offset %d of %d", ErrProtocolViolation, n, offset, size)
		}
		if n == 0 && !res.chunk.Done {
			return nil, fmt.Errorf("%w: empty chunk before end of stream at offset %d", ErrProtocolViolation, offset)
		}

		copy(target[offset:], res.chunk.Data)
		offset += n
		opts.Metrics.RecordPreload(int(n))

		if res.chunk.Done {
			break
		}
	}

	if offset < size {
		return nil, fmt.Errorf("%w: stream ended after %d of %d bytes: %w", ErrIO, offset, size, io.ErrUnexpectedEOF)
	}

	logger.Debug("Preloaded container", "bytes", size)
	return target, nil
}
