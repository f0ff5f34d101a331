package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
)

// Options configures a QuickJS engine.
type Options struct {
	// MemoryLimit caps the QuickJS heap in bytes. Zero means unlimited.
	MemoryLimit uint32
	// MaxStackSize caps the interpreter stack in bytes. Zero keeps the default.
	MaxStackSize uint32
	// Log receives console output. Nil discards it.
	Log func(msg string)
}

// Engine adapts one QuickJS runtime and context to jsvm.Engine. Values are
// pointers to heap-allocated JSValues in WASM memory.
type Engine struct {
	b      *Bridge
	goCtx  context.Context
	rtPtr  uint32
	ctxPtr uint32

	funcIDs []uint32
	thrower uint32 // function (v) { throw v }
	eq      uint32 // function (a, b) { return a === b }
}

var _ jsvm.Engine[uint32] = (*Engine)(nil)

// NewEngine instantiates wasmBytes and creates a runtime and context.
func NewEngine(ctx context.Context, wasmBytes []byte, opts Options) (*Engine, error) {
	b, err := New(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize QuickJS bridge: %w", err)
	}
	b.SetLogFunc(opts.Log)

	rtPtr, err := b.NewRuntime(ctx)
	if err != nil {
		b.Close(ctx)
		return nil, fmt.Errorf("failed to create QuickJS runtime: %w", err)
	}
	if opts.MemoryLimit > 0 {
		if err := b.SetMemoryLimit(ctx, rtPtr, opts.MemoryLimit); err != nil {
			b.Close(ctx)
			return nil, err
		}
	}
	if opts.MaxStackSize > 0 {
		if err := b.SetMaxStackSize(ctx, rtPtr, opts.MaxStackSize); err != nil {
			b.Close(ctx)
			return nil, err
		}
	}

	ctxPtr, err := b.NewContext(ctx, rtPtr)
	if err != nil {
		_ = b.FreeRuntime(ctx, rtPtr)
		b.Close(ctx)
		return nil, fmt.Errorf("failed to create JavaScript context: %w", err)
	}
	if err := b.AddConsole(ctx, ctxPtr); err != nil {
		_ = b.FreeContext(ctx, ctxPtr)
		_ = b.FreeRuntime(ctx, rtPtr)
		b.Close(ctx)
		return nil, fmt.Errorf("failed to add console support: %w", err)
	}

	e := &Engine{b: b, goCtx: ctx, rtPtr: rtPtr, ctxPtr: ctxPtr}
	if e.thrower, err = e.Eval("(function (v) { throw v; })", "<bridge>"); err != nil {
		e.Close()
		return nil, err
	}
	if e.eq, err = e.Eval("(function (a, b) { return a === b; })", "<bridge>"); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// check converts an exception result into a *jsvm.Thrown.
func (e *Engine) check(valPtr uint32, err error) (uint32, error) {
	if err != nil {
		return 0, err
	}
	isExc, err := e.b.IsException(e.goCtx, valPtr)
	if err != nil {
		return 0, err
	}
	if !isExc {
		return valPtr, nil
	}
	_ = e.b.FreeValue(e.goCtx, e.ctxPtr, valPtr)
	return 0, e.pending()
}

// pending takes the context's pending exception.
func (e *Engine) pending() error {
	excPtr, err := e.b.GetException(e.goCtx, e.ctxPtr)
	if err != nil {
		return err
	}
	msg, _ := e.b.GetErrorMessage(e.goCtx, e.ctxPtr, excPtr)
	if msg == "" {
		msg = "JavaScript exception"
	}
	return &jsvm.Thrown[uint32]{Value: excPtr, Message: msg}
}

func (e *Engine) Eval(code, filename string) (uint32, error) {
	return e.check(e.b.Eval(e.goCtx, e.ctxPtr, code, filename))
}

func (e *Engine) Global() (uint32, error) {
	return e.b.GetGlobalObject(e.goCtx, e.ctxPtr)
}

func (e *Engine) Undefined() uint32 {
	v, _ := e.b.NewUndefined(e.goCtx)
	return v
}

func (e *Engine) Null() uint32 {
	v, _ := e.b.NewNull(e.goCtx)
	return v
}

func (e *Engine) IsUndefined(v uint32) bool {
	ok, _ := e.b.IsUndefined(e.goCtx, v)
	return ok
}

func (e *Engine) IsNull(v uint32) bool {
	ok, _ := e.b.IsNull(e.goCtx, v)
	return ok
}

func (e *Engine) StrictEquals(a, b uint32) bool {
	undef := e.Undefined()
	defer e.Free(undef)
	r, err := e.Call(e.eq, undef, []uint32{a, b})
	if err != nil {
		return false
	}
	defer e.Free(r)
	return e.ToBool(r)
}

func (e *Engine) Get(obj uint32, key string) (uint32, error) {
	return e.check(e.b.GetProperty(e.goCtx, e.ctxPtr, obj, key))
}

func (e *Engine) Set(obj uint32, key string, val uint32) error {
	err := e.b.SetProperty(e.goCtx, e.ctxPtr, obj, key, val)
	if errors.Is(err, errPropertyWrite) {
		return e.pending()
	}
	return err
}

func (e *Engine) GetIndex(obj uint32, idx uint32) (uint32, error) {
	return e.check(e.b.GetPropertyUint32(e.goCtx, e.ctxPtr, obj, idx))
}

func (e *Engine) SetIndex(obj uint32, idx uint32, val uint32) error {
	err := e.b.SetPropertyUint32(e.goCtx, e.ctxPtr, obj, idx, val)
	if errors.Is(err, errPropertyWrite) {
		return e.pending()
	}
	return err
}

func (e *Engine) Call(fn, this uint32, args []uint32) (uint32, error) {
	return e.check(e.b.Call(e.goCtx, e.ctxPtr, fn, this, args))
}

func (e *Engine) Construct(ctor uint32, args []uint32) (uint32, error) {
	return e.check(e.b.CallConstructor(e.goCtx, e.ctxPtr, ctor, args))
}

func (e *Engine) NewBool(v bool) uint32 {
	p, _ := e.b.NewBool(e.goCtx, v)
	return p
}

func (e *Engine) NewNumber(f float64) uint32 {
	p, _ := e.b.NewFloat64(e.goCtx, f)
	return p
}

func (e *Engine) NewBigInt(i int64) (uint32, error) {
	return e.check(e.b.NewBigInt64(e.goCtx, e.ctxPtr, i))
}

func (e *Engine) NewString(s string) (uint32, error) {
	return e.check(e.b.NewString(e.goCtx, e.ctxPtr, s))
}

func (e *Engine) ToBool(v uint32) bool {
	ok, _ := e.b.ToBool(e.goCtx, e.ctxPtr, v)
	return ok
}

func (e *Engine) ToNumber(v uint32) (float64, error) {
	return e.b.ToFloat64(e.goCtx, e.ctxPtr, v)
}

func (e *Engine) ToBigInt(v uint32) (int64, error) {
	return e.b.ToBigInt64(e.goCtx, e.ctxPtr, v)
}

func (e *Engine) ToString(v uint32) (string, error) {
	return e.b.ToString(e.goCtx, e.ctxPtr, v)
}

func (e *Engine) NewArrayBuffer(data []byte) (uint32, error) {
	return e.check(e.b.NewArrayBuffer(e.goCtx, e.ctxPtr, data))
}

func (e *Engine) ArrayBufferData(v uint32) ([]byte, error) {
	return e.b.ArrayBufferView(e.goCtx, e.ctxPtr, v)
}

// NewFunction registers fn with the bridge. A *jsvm.Thrown error is raised
// by calling the thrower helper, whose exception result QuickJS propagates.
func (e *Engine) NewFunction(name string, fn jsvm.HostFunc[uint32]) (uint32, error) {
	cb := func(ctxPtr uint32, args []uint32) uint32 {
		undef := e.Undefined()
		ret, err := fn(undef, args)
		if err == nil {
			e.Free(undef)
			return ret
		}
		var exc uint32
		var t *jsvm.Thrown[uint32]
		if errors.As(err, &t) {
			exc = t.Value
		} else {
			exc, _ = e.NewString(err.Error())
		}
		r, _ := e.b.Call(e.goCtx, e.ctxPtr, e.thrower, undef, []uint32{exc})
		e.Free(exc)
		e.Free(undef)
		return r
	}
	id := e.b.RegisterGoFunc(cb)
	ptr, err := e.b.NewCFunction(e.goCtx, e.ctxPtr, id, name, -1)
	if err != nil {
		e.b.UnregisterGoFunc(id)
		return 0, err
	}
	e.funcIDs = append(e.funcIDs, id)
	return ptr, nil
}

func (e *Engine) Dup(v uint32) uint32 {
	p, _ := e.b.DupValue(e.goCtx, e.ctxPtr, v)
	return p
}

func (e *Engine) Free(v uint32) {
	if v != 0 {
		_ = e.b.FreeValue(e.goCtx, e.ctxPtr, v)
	}
}

// RunGC triggers a QuickJS garbage collection.
func (e *Engine) RunGC() error { return e.b.RunGC(e.goCtx, e.rtPtr) }

// ExecutePendingJobs drains the promise job queue.
func (e *Engine) ExecutePendingJobs() (int, error) {
	n, err := e.b.ExecutePendingJobs(e.goCtx, e.rtPtr)
	return int(n), err
}

func (e *Engine) Close() error {
	for _, id := range e.funcIDs {
		e.b.UnregisterGoFunc(id)
	}
	e.funcIDs = nil
	e.Free(e.thrower)
	e.Free(e.eq)
	_ = e.b.FreeContext(e.goCtx, e.ctxPtr)
	_ = e.b.FreeRuntime(e.goCtx, e.rtPtr)
	return e.b.Close(e.goCtx)
}
