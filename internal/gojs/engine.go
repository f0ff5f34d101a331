// Package gojs runs the bridge on the goja ECMAScript engine.
package gojs

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/dop251/goja"

	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
)

// Options configures a goja runtime.
type Options struct {
	// MaxCallStackSize bounds script recursion. Zero keeps goja's default.
	MaxCallStackSize int
}

// Engine adapts a goja runtime to jsvm.Engine. goja values are garbage
// collected, so Dup and Free are no-ops.
type Engine struct {
	rt *goja.Runtime
}

var _ jsvm.Engine[goja.Value] = (*Engine)(nil)

// New creates a fresh goja runtime.
func New(opts Options) *Engine {
	rt := goja.New()
	if opts.MaxCallStackSize > 0 {
		rt.SetMaxCallStackSize(opts.MaxCallStackSize)
	}
	return &Engine{rt: rt}
}

// Runtime exposes the underlying goja runtime.
func (e *Engine) Runtime() *goja.Runtime { return e.rt }

// wrap turns a goja failure into the jsvm convention.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &jsvm.Thrown[goja.Value]{Value: exc.Value(), Message: exc.Error()}
	}
	return err
}

func (e *Engine) try(fn func()) error {
	if exc := e.rt.Try(fn); exc != nil {
		return wrap(exc)
	}
	return nil
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}

func (e *Engine) Eval(code, filename string) (goja.Value, error) {
	v, err := e.rt.RunScript(filename, code)
	if err != nil {
		return nil, wrap(err)
	}
	return orUndefined(v), nil
}

func (e *Engine) Global() (goja.Value, error) { return e.rt.GlobalObject(), nil }

func (e *Engine) Undefined() goja.Value { return goja.Undefined() }
func (e *Engine) Null() goja.Value      { return goja.Null() }

func (e *Engine) IsUndefined(v goja.Value) bool { return v == nil || goja.IsUndefined(v) }
func (e *Engine) IsNull(v goja.Value) bool      { return v != nil && goja.IsNull(v) }

func (e *Engine) StrictEquals(a, b goja.Value) bool {
	return orUndefined(a).StrictEquals(orUndefined(b))
}

func (e *Engine) Get(obj goja.Value, key string) (v goja.Value, err error) {
	err = e.try(func() {
		v = obj.ToObject(e.rt).Get(key)
	})
	return orUndefined(v), err
}

func (e *Engine) Set(obj goja.Value, key string, val goja.Value) error {
	var serr error
	if err := e.try(func() {
		serr = obj.ToObject(e.rt).Set(key, val)
	}); err != nil {
		return err
	}
	return wrap(serr)
}

func (e *Engine) GetIndex(obj goja.Value, idx uint32) (goja.Value, error) {
	return e.Get(obj, strconv.FormatUint(uint64(idx), 10))
}

func (e *Engine) SetIndex(obj goja.Value, idx uint32, val goja.Value) error {
	return e.Set(obj, strconv.FormatUint(uint64(idx), 10), val)
}

func (e *Engine) Call(fn, this goja.Value, args []goja.Value) (goja.Value, error) {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, &jsvm.Thrown[goja.Value]{
			Value:   e.rt.NewTypeError("value is not a function"),
			Message: "value is not a function",
		}
	}
	v, err := call(orUndefined(this), args...)
	if err != nil {
		return nil, wrap(err)
	}
	return orUndefined(v), nil
}

func (e *Engine) Construct(ctor goja.Value, args []goja.Value) (goja.Value, error) {
	obj, err := e.rt.New(ctor, args...)
	if err != nil {
		return nil, wrap(err)
	}
	return obj, nil
}

func (e *Engine) NewBool(b bool) goja.Value      { return e.rt.ToValue(b) }
func (e *Engine) NewNumber(f float64) goja.Value { return e.rt.ToValue(f) }

func (e *Engine) NewBigInt(i int64) (goja.Value, error) {
	return e.rt.ToValue(big.NewInt(i)), nil
}

func (e *Engine) NewString(s string) (goja.Value, error) { return e.rt.ToValue(s), nil }

func (e *Engine) ToBool(v goja.Value) bool { return v != nil && v.ToBoolean() }

func (e *Engine) ToNumber(v goja.Value) (f float64, err error) {
	err = e.try(func() {
		f = v.ToFloat()
	})
	return f, err
}

func (e *Engine) ToBigInt(v goja.Value) (int64, error) {
	if b, ok := v.Export().(*big.Int); ok {
		if !b.IsInt64() {
			return 0, fmt.Errorf("bigint %s overflows int64", b)
		}
		return b.Int64(), nil
	}
	var i int64
	err := e.try(func() {
		i = v.ToInteger()
	})
	return i, err
}

func (e *Engine) ToString(v goja.Value) (s string, err error) {
	err = e.try(func() {
		s = v.String()
	})
	return s, err
}

func (e *Engine) NewArrayBuffer(data []byte) (goja.Value, error) {
	return e.rt.ToValue(e.rt.NewArrayBuffer(data)), nil
}

func (e *Engine) ArrayBufferData(v goja.Value) ([]byte, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, errors.New("value is not an ArrayBuffer")
	}
	ab, ok := obj.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, errors.New("value is not an ArrayBuffer")
	}
	return ab.Bytes(), nil
}

func (e *Engine) NewFunction(name string, fn jsvm.HostFunc[goja.Value]) (goja.Value, error) {
	native := func(call goja.FunctionCall) goja.Value {
		ret, err := fn(call.This, call.Arguments)
		if err != nil {
			var t *jsvm.Thrown[goja.Value]
			if errors.As(err, &t) {
				panic(t.Value)
			}
			panic(e.rt.NewGoError(err))
		}
		return orUndefined(ret)
	}
	obj := e.rt.ToValue(native).(*goja.Object)
	if err := obj.DefineDataProperty("name", e.rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, wrap(err)
	}
	return obj, nil
}

func (e *Engine) Dup(v goja.Value) goja.Value { return v }
func (e *Engine) Free(goja.Value)             {}

// Close interrupts any script still running on the runtime.
func (e *Engine) Close() error {
	e.rt.Interrupt("runtime closed")
	return nil
}
