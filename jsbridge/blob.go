//go:build js && wasm

// Package jsbridge connects colblob to a browser: JS Blobs become host
// containers, host values become JS values, and the colblob API is
// published as Promise-returning functions.
package jsbridge

import (
	"errors"
	"fmt"
	"syscall/js"

	"github.com/VanDung-dev/colblob/host"
)

// ErrNotBlob is returned when a JS value is not a Blob.
var ErrNotBlob = errors.New("jsbridge: value is not a Blob")

// Blob is a JS Blob (or File) confined to a loop.
type Blob struct {
	v    js.Value
	loop *host.Loop
	size uint64
}

var (
	_ host.Sliceable  = (*Blob)(nil)
	_ host.Streamable = (*Blob)(nil)
)

// NewBlob wraps v, which must be an instance of Blob.
func NewBlob(v js.Value, loop *host.Loop) (*Blob, error) {
	if v.Type() != js.TypeObject || !v.InstanceOf(js.Global().Get("Blob")) {
		return nil, ErrNotBlob
	}
	return &Blob{v: v, loop: loop, size: uint64(v.Get("size").Float())}, nil
}

func (b *Blob) Size() uint64 { return b.size }

func (b *Blob) Loop() *host.Loop { return b.loop }

// Slice calls Blob.slice. It must run on the loop.
func (b *Blob) Slice(start, end uint64) (host.Blob, error) {
	if start > end || end > b.size {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", host.ErrInvalidSlice, start, end, b.size)
	}
	return &Blob{
		v:    b.v.Call("slice", float64(start), float64(end)),
		loop: b.loop,
		size: end - start,
	}, nil
}

func (b *Blob) NewReader() host.BlobReader {
	return &fileReader{loop: b.loop}
}

// Stream opens a BYOB reader over Blob.stream().
func (b *Blob) Stream() (host.ByteStream, error) {
	stream := b.v.Call("stream")
	reader := stream.Call("getReader", map[string]interface{}{"mode": "byob"})
	if reader.IsUndefined() || reader.IsNull() {
		return nil, host.ErrNotStreamable
	}
	return &byobStream{reader: reader, loop: b.loop}, nil
}

// fileReader reads a blob with FileReader.readAsArrayBuffer.
type fileReader struct {
	loop   *host.Loop
	onLoad func([]byte, error)
	used   bool
}

func (r *fileReader) OnLoad(fn func([]byte, error)) { r.onLoad = fn }

func (r *fileReader) ReadAll(blob host.Blob) error {
	if r.used {
		return host.ErrReaderUsed
	}
	jb, ok := blob.(*Blob)
	if !ok {
		return host.ErrForeignBlob
	}
	r.used = true

	fr := js.Global().Get("FileReader").New()
	cb := r.onLoad

	var onload, onerror js.Func
	release := func() {
		onload.Release()
		onerror.Release()
	}

	onload = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		release()
		data := copyBytes(js.Global().Get("Uint8Array").New(fr.Get("result")))
		if cb != nil {
			_ = r.loop.Post(func() { cb(data, nil) })
		}
		return nil
	})
	onerror = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		release()
		err := jsError(fr.Get("error"))
		if cb != nil {
			_ = r.loop.Post(func() { cb(nil, err) })
		}
		return nil
	})

	fr.Set("onload", onload)
	fr.Set("onerror", onerror)
	fr.Call("readAsArrayBuffer", jb.v)
	return nil
}

// byobStream lands stream reads in a JS buffer and copies them out. The
// buffer returned by one read is reused for the next, as BYOB readers
// transfer ownership of it on every read.
type byobStream struct {
	reader js.Value
	loop   *host.Loop
	buf    js.Value
	closed bool
}

func (s *byobStream) ReadInto(view []byte, cb func(host.StreamChunk, error)) {
	if s.closed {
		cb(host.StreamChunk{}, host.ErrStreamClosed)
		return
	}

	if s.buf.IsUndefined() || s.buf.Get("byteLength").Int() != len(view) {
		s.buf = js.Global().Get("Uint8Array").New(len(view))
	}

	var then, catch js.Func
	release := func() {
		then.Release()
		catch.Release()
	}

	then = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		release()
		result := args[0]
		done := result.Get("done").Truthy()
		value := result.Get("value")

		var n int
		if !value.IsUndefined() {
			n = js.CopyBytesToGo(view, value)
			s.buf = js.Global().Get("Uint8Array").New(value.Get("buffer"))
		}
		_ = s.loop.Post(func() { cb(host.StreamChunk{Data: view[:n], Done: done}, nil) })
		return nil
	})
	catch = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		release()
		err := jsError(args[0])
		_ = s.loop.Post(func() { cb(host.StreamChunk{}, err) })
		return nil
	})

	s.reader.Call("read", s.buf).Call("then", then).Call("catch", catch)
}

func (s *byobStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.reader.Call("releaseLock")
	return nil
}

func copyBytes(u8 js.Value) []byte {
	out := make([]byte, u8.Get("byteLength").Int())
	js.CopyBytesToGo(out, u8)
	return out
}

func jsError(v js.Value) error {
	if v.IsUndefined() || v.IsNull() {
		return errors.New("jsbridge: unknown error")
	}
	if msg := v.Get("message"); msg.Type() == js.TypeString {
		return fmt.Errorf("jsbridge: %s: %s", v.Get("name").String(), msg.String())
	}
	return fmt.Errorf("jsbridge: %s", v.String())
}
