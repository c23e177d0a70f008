package source

import (
	"context"
	"sync/atomic"
)

type readResult struct {
	data []byte
	err  error
}

// PendingRead is the completion cell of one byte-range read. It is
// resolved exactly once by the read and consumed at most once by Await.
type PendingRead struct {
	offset uint64
	length uint64

	ch       chan readResult
	resolved atomic.Bool
	consumed atomic.Bool
}

func newPendingRead(offset, length uint64) *PendingRead {
	return &PendingRead{
		offset: offset,
		length: length,
		ch:     make(chan readResult, 1),
	}
}

// Offset returns the first byte of the requested range.
func (p *PendingRead) Offset() uint64 { return p.offset }

// Len returns the length of the requested range.
func (p *PendingRead) Len() uint64 { return p.length }

// resolve stores the outcome of the read. It never blocks.
func (p *PendingRead) resolve(data []byte, err error) {
	if !p.resolved.CompareAndSwap(false, true) {
		panic("source: pending read resolved twice")
	}
	p.ch <- readResult{data: data, err: err}
}

// Await waits for the read to finish and returns its bytes. The returned
// slice is owned by the caller.
//
// If ctx ends first Await returns ctx.Err(). The read is not cancelled; it
// still completes, and its result is discarded.
func (p *PendingRead) Await(ctx context.Context) ([]byte, error) {
	if !p.consumed.CompareAndSwap(false, true) {
		return nil, ErrConsumed
	}

	select {
	case r := <-p.ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
