// Package network serves containers over ZeroMQ and exposes remote
// containers as random-access host blobs.
//
// This package implements:
//   - ContainerServer: ROUTER socket answering stat and range requests
//   - Client: DEALER socket multiplexing concurrent requests
//   - RemoteBlob: a host.Sliceable whose reads are network round trips
//
// Frames are MessagePack encoded. Range payloads may be zstd compressed.
package network

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the maximum allowed frame size (50MB).
const MaxFrameSize = 50 * 1024 * 1024

// frameOverhead is reserved for the envelope around a range payload.
const frameOverhead = 1024

// MaxRangeLength is the largest range a single request may ask for.
const MaxRangeLength = MaxFrameSize - frameOverhead

// Common errors for network operations
var (
	ErrFrameTooLarge = errors.New("network: frame too large")
	ErrEmptyFrame    = errors.New("network: empty frame")
	ErrServerBusy    = errors.New("network: server busy")
	ErrClientClosed  = errors.New("network: client is closed")
	ErrRemote        = errors.New("network: remote error")
)

// Op is a request operation.
type Op string

const (
	OpStat Op = "stat"
	OpRead Op = "read"
)

// Request asks the server about one container.
type Request struct {
	ID       uint64 `msgpack:"id"`
	Op       Op     `msgpack:"op"`
	Name     string `msgpack:"name"`
	Offset   uint64 `msgpack:"offset,omitempty"`
	Length   uint64 `msgpack:"length,omitempty"`
	Compress bool   `msgpack:"compress,omitempty"`
	Token    string `msgpack:"token,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID         uint64 `msgpack:"id"`
	Size       uint64 `msgpack:"size,omitempty"`
	Data       []byte `msgpack:"data,omitempty"`
	Compressed bool   `msgpack:"compressed,omitempty"`
	Error      string `msgpack:"error,omitempty"`
}

// EncodeFrame serializes v, rejecting frames above MaxFrameSize.
func EncodeFrame(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFrameTooLarge, len(data), MaxFrameSize)
	}
	return data, nil
}

func decodeFrame(data []byte, v interface{}) error {
	if len(data) == 0 {
		return ErrEmptyFrame
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFrameTooLarge, len(data), MaxFrameSize)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}

// DecodeRequest parses a request frame.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := decodeFrame(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeResponse parses a response frame.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := decodeFrame(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// codec compresses range payloads with zstd. EncodeAll and DecodeAll are
// safe for concurrent use.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec() (*codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameSize))
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &codec{encoder: encoder, decoder: decoder}, nil
}

func (c *codec) compress(data []byte) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *codec) decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}

func (c *codec) close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}
