// Package surface is the entry point hosts use: open a container, print
// its schema, materialize it and read single elements as host values.
//
// A container with random access is read lazily through byte ranges. A
// container that can only be streamed is preloaded into memory first.
package surface

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/samber/lo"

	"github.com/VanDung-dev/colblob/decoder"
	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/hostvalue"
	"github.com/VanDung-dev/colblob/metrics"
	"github.com/VanDung-dev/colblob/pipeline"
	"github.com/VanDung-dev/colblob/project"
	"github.com/VanDung-dev/colblob/source"
)

// Config holds surface configuration.
type Config struct {
	Decoder   *decoder.Context
	Projector *project.Options
	// PreloadChunkSize is the landing buffer size for streamed containers.
	PreloadChunkSize int
	// ForcePreload streams the container into memory even when it
	// supports random access.
	ForcePreload bool
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Decoder:          decoder.DefaultContext(),
		Projector:        &project.Options{},
		PreloadChunkSize: source.DefaultPreloadChunkSize,
		Logger:           slog.Default(),
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Decoder == nil {
		out.Decoder = def.Decoder
	}
	if out.Projector == nil {
		out.Projector = def.Projector
	}
	if out.PreloadChunkSize <= 0 {
		out.PreloadChunkSize = def.PreloadChunkSize
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Decoder.Logger == nil {
		dctx := *out.Decoder
		dctx.Logger = out.Logger
		out.Decoder = &dctx
	}
	if out.Projector.Metrics == nil && out.Metrics != nil {
		popts := *out.Projector
		popts.Metrics = out.Metrics
		out.Projector = &popts
	}
	return &out
}

// File is an opened container.
type File struct {
	src       source.RangeReader
	size      uint64
	preloaded bool
	cfg       *Config
	logger    *slog.Logger
}

// FromContainer opens c. Random access is preferred; a stream-only
// container is preloaded. A container with neither capability fails with
// ErrUnsupportedContainer.
func FromContainer(ctx context.Context, c host.Blob, cfg *Config) (*File, error) {
	cfg = cfg.withDefaults()
	f := &File{
		size:   c.Size(),
		cfg:    cfg,
		logger: cfg.Logger,
	}

	sl, sliceable := c.(host.Sliceable)
	st, streamable := c.(host.Streamable)

	switch {
	case sliceable && (!cfg.ForcePreload || !streamable):
		f.src = source.NewByteSource(sl, &source.Options{Logger: cfg.Logger, Metrics: cfg.Metrics})
	case streamable:
		data, err := preload(ctx, st, cfg)
		if err != nil {
			return nil, err
		}
		f.src = source.NewBuffer(data)
		f.preloaded = true
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedContainer, c)
	}

	f.logger.Info("Opened container", "size", f.size, "preloaded", f.preloaded)
	return f, nil
}

func preload(ctx context.Context, c host.Streamable, cfg *Config) ([]byte, error) {
	loop := c.Loop()

	var stream host.ByteStream
	err := loop.Do(ctx, func() error {
		var err error
		stream, err = c.Stream()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %w", ErrIO, err)
	}
	defer func() {
		_ = loop.Post(func() { _ = stream.Close() })
	}()

	return source.Preload(ctx, loop, stream, c.Size(), &source.PreloadOptions{
		ChunkSize: cfg.PreloadChunkSize,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
}

// Size returns the container size in bytes.
func (f *File) Size() uint64 { return f.size }

// Preloaded reports whether the container was copied into memory.
func (f *File) Preloaded() bool { return f.preloaded }

// SchemaInfo describes a container without materializing it.
type SchemaInfo struct {
	DataType arrow.DataType
	RowCount int64
	Fields   []string
}

// Describe opens a decoder and returns the container's logical type and
// row count.
func (f *File) Describe(ctx context.Context) (*SchemaInfo, error) {
	r, err := decoder.NewReadBuilder(f.src, f.cfg.Decoder).Build(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	schema := r.Schema()
	return &SchemaInfo{
		DataType: arrow.StructOf(schema.Fields()...),
		RowCount: r.RowCount(),
		Fields:   lo.Map(schema.Fields(), func(f arrow.Field, _ int) string { return f.Name }),
	}, nil
}

// PrintSchema logs the container's logical type and row count.
func (f *File) PrintSchema(ctx context.Context) error {
	info, err := f.Describe(ctx)
	if err != nil {
		return err
	}
	f.logger.Info("Schema",
		"dtype", info.DataType.String(),
		"row_count", info.RowCount,
		"fields", info.Fields,
	)
	return nil
}

// Materialize decodes the whole container into an Array. Each call opens
// a fresh decoder.
func (f *File) Materialize(ctx context.Context) (*Array, error) {
	p, err := pipeline.Open(ctx, decoder.NewReadBuilder(f.src, f.cfg.Decoder), &pipeline.Options{
		Logger:  f.logger,
		Metrics: f.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	defer p.Close()

	inner, err := p.Materialize(ctx)
	if err != nil {
		return nil, err
	}

	return &Array{
		inner:     inner,
		projector: project.New(f.cfg.Projector),
	}, nil
}

// Array is a materialized container. It is safe for concurrent Get calls.
type Array struct {
	inner     *pipeline.Array
	projector *project.Projector
}

// Len returns the number of elements.
func (a *Array) Len() uint64 { return a.inner.Len() }

func (a *Array) DataType() arrow.DataType { return a.inner.DataType() }

// Get returns element index as a host value.
func (a *Array) Get(index uint64) (hostvalue.Value, error) {
	s, err := a.inner.ScalarAt(index)
	if err != nil {
		return nil, err
	}
	if r, ok := s.(scalar.Releasable); ok {
		defer r.Release()
	}
	return a.projector.Project(s)
}

// Release frees the decoded buffers. The array must not be used after.
func (a *Array) Release() { a.inner.Release() }
