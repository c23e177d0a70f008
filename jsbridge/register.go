//go:build js && wasm

package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/surface"
)

// GlobalName is the property the API is published under.
const GlobalName = "colblob"

// ErrAlreadyRegistered is returned by a second Register on one global.
var ErrAlreadyRegistered = errors.New("jsbridge: already registered")

// Bridge publishes surface operations to JS.
type Bridge struct {
	loop *host.Loop
	cfg  *surface.Config
}

// Register installs colblob.File.fromBlob on global.
func Register(global js.Value, loop *host.Loop, cfg *surface.Config) (*Bridge, error) {
	if global.Get(GlobalName).Truthy() {
		return nil, ErrAlreadyRegistered
	}

	b := &Bridge{loop: loop, cfg: cfg}
	file := js.Global().Get("Object").New()
	file.Set("fromBlob", js.FuncOf(b.fromBlob))

	api := js.Global().Get("Object").New()
	api.Set("File", file)
	global.Set(GlobalName, api)
	return b, nil
}

func (b *Bridge) fromBlob(this js.Value, args []js.Value) interface{} {
	return Promise(func() (js.Value, error) {
		if len(args) < 1 {
			return js.Undefined(), fmt.Errorf("%w: fromBlob expects a Blob", surface.ErrUnsupportedContainer)
		}
		blob, err := NewBlob(args[0], b.loop)
		if err != nil {
			return js.Undefined(), fmt.Errorf("%w: %w", surface.ErrUnsupportedContainer, err)
		}

		f, err := surface.FromContainer(context.Background(), blob, b.cfg)
		if err != nil {
			return js.Undefined(), err
		}
		return b.fileHandle(f), nil
	})
}

// fileHandle exposes printSchema, collect and free on a JS object.
func (b *Bridge) fileHandle(f *surface.File) js.Value {
	h := js.Global().Get("Object").New()
	h.Set("size", float64(f.Size()))

	funcs := []js.Func{
		js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			return Promise(func() (js.Value, error) {
				return js.Undefined(), f.PrintSchema(context.Background())
			})
		}),
		js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			return Promise(func() (js.Value, error) {
				arr, err := f.Materialize(context.Background())
				if err != nil {
					return js.Undefined(), err
				}
				return arrayHandle(arr), nil
			})
		}),
	}
	h.Set("printSchema", funcs[0])
	h.Set("collect", funcs[1])
	h.Set("free", freeFunc(funcs, nil))
	return h
}

// arrayHandle exposes length, get and free on a JS object.
func arrayHandle(arr *surface.Array) js.Value {
	h := js.Global().Get("Object").New()
	h.Set("length", float64(arr.Len()))

	get := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return Promise(func() (js.Value, error) {
			index, err := indexArg(args)
			if err != nil {
				return js.Undefined(), err
			}
			v, err := arr.Get(index)
			if err != nil {
				return js.Undefined(), err
			}
			return ToJS(v), nil
		})
	})
	h.Set("get", get)
	h.Set("free", freeFunc([]js.Func{get}, arr.Release))
	return h
}

func indexArg(args []js.Value) (uint64, error) {
	if len(args) < 1 || args[0].Type() != js.TypeNumber {
		return 0, fmt.Errorf("%w: index must be a number", surface.ErrIndexOutOfBounds)
	}
	f := args[0].Float()
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("%w: index %v is not a non-negative integer", surface.ErrIndexOutOfBounds, f)
	}
	return uint64(f), nil
}

// freeFunc releases funcs and runs onFree once.
func freeFunc(funcs []js.Func, onFree func()) js.Func {
	freed := false
	var free js.Func
	free = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if freed {
			return nil
		}
		freed = true
		for _, fn := range funcs {
			fn.Release()
		}
		if onFree != nil {
			onFree()
		}
		free.Release()
		return nil
	})
	return free
}
