package decoder

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/samber/lo"
)

// Format is a recognized container format.
type Format string

const (
	FormatParquet  Format = "parquet"
	FormatArrowIPC Format = "arrow-ipc"
)

// DefaultBatchSize is the number of rows per Parquet chunk.
const DefaultBatchSize = 64 * 1024

// Context tells the decoders which encodings they may accept.
type Context struct {
	// Formats lists the container formats that may be opened.
	Formats []Format
	// Codecs lists the Parquet column compressions that may be decoded.
	Codecs []compress.Compression
	// Allocator backs all decoded buffers.
	Allocator memory.Allocator
	// BatchSize is the number of rows per chunk for Parquet files.
	BatchSize int64
	Logger    *slog.Logger
}

// DefaultContext returns a context that recognizes every format and
// codec the decoders support.
func DefaultContext() *Context {
	return &Context{
		Formats: []Format{FormatParquet, FormatArrowIPC},
		Codecs: []compress.Compression{
			compress.Codecs.Uncompressed,
			compress.Codecs.Snappy,
			compress.Codecs.Gzip,
			compress.Codecs.Brotli,
			compress.Codecs.Zstd,
			compress.Codecs.Lz4Raw,
		},
		Allocator: memory.DefaultAllocator,
		BatchSize: DefaultBatchSize,
		Logger:    slog.Default(),
	}
}

func (c *Context) recognizesFormat(f Format) bool {
	return lo.Contains(c.Formats, f)
}

func (c *Context) recognizesCodec(codec compress.Compression) bool {
	return lo.Contains(c.Codecs, codec)
}

// withDefaults fills zero fields from DefaultContext.
func (c *Context) withDefaults() *Context {
	def := DefaultContext()
	if c == nil {
		return def
	}
	out := *c
	if out.Formats == nil {
		out.Formats = def.Formats
	}
	if out.Codecs == nil {
		out.Codecs = def.Codecs
	}
	if out.Allocator == nil {
		out.Allocator = def.Allocator
	}
	if out.BatchSize <= 0 {
		out.BatchSize = def.BatchSize
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	return &out
}
