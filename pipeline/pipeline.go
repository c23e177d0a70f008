// Package pipeline materializes a decoded container into one chunked
// array and serves random access into it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/samber/lo"

	"github.com/VanDung-dev/colblob/decoder"
	"github.com/VanDung-dev/colblob/metrics"
)

// Errors returned by the pipeline
var (
	ErrIndexOutOfBounds = errors.New("pipeline: index out of bounds")
	ErrDrained          = errors.New("pipeline: reader already materialized")
)

// Builder opens a decoder.Reader. decoder.ReadBuilder is the production
// implementation.
type Builder interface {
	Build(ctx context.Context) (decoder.Reader, error)
}

// Options configures a Pipeline.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline drives one decoder reader to completion.
type Pipeline struct {
	reader  decoder.Reader
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	drained bool
}

// Open builds the reader. The schema and row count are available as soon
// as Open returns.
func Open(ctx context.Context, b Builder, opts *Options) (*Pipeline, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		reader:  r,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

func (p *Pipeline) Schema() *arrow.Schema { return p.reader.Schema() }

func (p *Pipeline) RowCount() int64 { return p.reader.RowCount() }

// DataType returns the struct type every chunk has.
func (p *Pipeline) DataType() arrow.DataType {
	return arrow.StructOf(p.reader.Schema().Fields()...)
}

// Close releases the reader.
func (p *Pipeline) Close() error { return p.reader.Close() }

// Materialize pulls every chunk, one at a time and in order, and returns
// them as one Array. Any failure is terminal: the chunks read so far are
// released and no partial array is returned. A pipeline materializes at
// most once; later calls return ErrDrained.
func (p *Pipeline) Materialize(ctx context.Context) (*Array, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drained {
		return nil, ErrDrained
	}
	p.drained = true

	start := time.Now()
	arr, err := p.materialize(ctx)
	p.metrics.RecordMaterialize(p.reader.RowCount(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Materialized array", "rows", arr.Len(), "chunks", arr.NumChunks())
	return arr, nil
}

func (p *Pipeline) materialize(ctx context.Context) (*Array, error) {
	dt := p.DataType()

	var chunks []arrow.Array
	release := func() {
		for _, c := range chunks {
			c.Release()
		}
	}

	for {
		chunk, err := p.reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			release()
			return nil, err
		}
		p.metrics.RecordChunk()
		p.logger.Debug("Loaded chunk", "len", chunk.Len())

		if !arrow.TypeEqual(chunk.DataType(), dt) {
			err := fmt.Errorf("%w: chunk %d has type %s, expected %s",
				decoder.ErrDecode, len(chunks), chunk.DataType(), dt)
			chunk.Release()
			release()
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	rows := lo.SumBy(chunks, func(c arrow.Array) int { return c.Len() })
	if int64(rows) != p.reader.RowCount() {
		release()
		return nil, fmt.Errorf("%w: decoded %d rows, file declares %d",
			decoder.ErrDecode, rows, p.reader.RowCount())
	}

	chunked := arrow.NewChunked(dt, chunks)
	release()
	return newArray(chunked, p.reader.Schema()), nil
}
