//go:build js && wasm

package jsbridge

import (
	"errors"
	"syscall/js"

	"github.com/VanDung-dev/colblob/hostvalue"
	"github.com/VanDung-dev/colblob/surface"
)

// ToJS converts a host value. Objects are frozen, byte arrays are fresh
// Uint8Array copies.
func ToJS(v hostvalue.Value) js.Value {
	switch v := v.(type) {
	case hostvalue.Bool:
		return js.ValueOf(bool(v))
	case hostvalue.Number:
		return js.ValueOf(float64(v))
	case hostvalue.String:
		return js.ValueOf(string(v))
	case hostvalue.Bytes:
		u8 := js.Global().Get("Uint8Array").New(len(v))
		js.CopyBytesToJS(u8, v)
		return u8
	case *hostvalue.Object:
		entries := make([]interface{}, 0, v.Len())
		v.Range(func(name string, field hostvalue.Value) bool {
			entries = append(entries, []interface{}{name, ToJS(field)})
			return true
		})
		object := js.Global().Get("Object")
		return object.Call("freeze", object.Call("fromEntries", entries))
	default:
		return js.Null()
	}
}

// ErrorToJS converts err into a JS Error whose name is the error kind.
func ErrorToJS(err error) js.Value {
	e := js.Global().Get("Error").New(err.Error())
	e.Set("name", surface.Classify(err).String())
	return e
}

var errPanic = errors.New("jsbridge: internal error")

// Promise runs fn on a goroutine and settles a JS Promise with its
// result.
func Promise(fn func() (js.Value, error)) js.Value {
	var executor js.Func
	executor = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		executor.Release()
		resolve, reject := args[0], args[1]

		go func() {
			defer func() {
				if r := recover(); r != nil {
					reject.Invoke(ErrorToJS(errPanic))
				}
			}()

			v, err := fn()
			if err != nil {
				reject.Invoke(ErrorToJS(err))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(executor)
}
