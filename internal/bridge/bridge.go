// Package bridge provides low-level bindings to a QuickJS-ng WASM module
// running under wazero.
package bridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Global compilation cache shared across all Bridge instances.
var (
	globalCache     wazero.CompilationCache
	globalCacheOnce sync.Once
)

func initGlobalCache() {
	globalCache = wazero.NewCompilationCache()
}

// Buffer pool for small temporary buffers.
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 256)
		return &buf
	},
}

func getBuffer() *[]byte {
	return bufPool.Get().(*[]byte)
}

func putBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufPool.Put(buf)
}

// errPropertyWrite is returned when QuickJS reports a failed property write.
// The exception is left pending in the context.
var errPropertyWrite = errors.New("failed to set property")

// GoFunc is a Go function that can be called from JavaScript.
// It receives the context pointer and the arguments as JSValue pointers.
type GoFunc func(ctxPtr uint32, args []uint32) uint32

// Bridge manages the WASM runtime and gives access to the QuickJS-ng exports.
type Bridge struct {
	wasmRuntime wazero.Runtime
	module      api.Module
	memory      api.Memory
	mu          sync.Mutex
	logFunc     func(msg string)

	callbacks  map[uint32]GoFunc
	nextFuncID uint32
	callbackMu sync.RWMutex

	fnAlloc              api.Function
	fnFree               api.Function
	fnNewRuntime         api.Function
	fnFreeRuntime        api.Function
	fnNewContext         api.Function
	fnFreeContext        api.Function
	fnEval               api.Function
	fnIsException        api.Function
	fnIsUndefined        api.Function
	fnIsNull             api.Function
	fnToBool             api.Function
	fnToFloat64          api.Function
	fnToCString          api.Function
	fnFreeCString        api.Function
	fnNewUndefined       api.Function
	fnNewNull            api.Function
	fnNewBool            api.Function
	fnNewFloat64         api.Function
	fnNewStringLen       api.Function
	fnGetProperty        api.Function
	fnSetProperty        api.Function
	fnGetPropertyUint32  api.Function
	fnSetPropertyUint32  api.Function
	fnGetGlobalObject    api.Function
	fnCall               api.Function
	fnCallConstructor    api.Function
	fnGetException       api.Function
	fnDupValue           api.Function
	fnFreeValue          api.Function
	fnRunGC              api.Function
	fnExecutePendingJobs api.Function
	fnNewBigInt64        api.Function
	fnToBigInt64         api.Function
	fnNewArrayBuffer     api.Function
	fnGetArrayBuffer     api.Function
	fnStdAddConsole      api.Function
	fnNewCFunction       api.Function
	fnSetMemoryLimit     api.Function
	fnSetMaxStackSize    api.Function
	fnGetErrorMessage    api.Function
}

// New compiles and instantiates the QuickJS-ng module in wasmBytes.
func New(ctx context.Context, wasmBytes []byte) (*Bridge, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.New("empty QuickJS WASM module")
	}
	b := &Bridge{
		logFunc: func(msg string) {
			fmt.Print(msg)
		},
		callbacks:  make(map[uint32]GoFunc),
		nextFuncID: 1,
	}

	globalCacheOnce.Do(initGlobalCache)

	runtimeConfig := wazero.NewRuntimeConfig().
		WithCompilationCache(globalCache).
		WithDebugInfoEnabled(false)

	b.wasmRuntime = wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	wasi_snapshot_preview1.MustInstantiate(ctx, b.wasmRuntime)

	_, err := b.wasmRuntime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(b.hostLog).
		Export("host_log").
		NewFunctionBuilder().
		WithFunc(b.hostCallGo).
		Export("host_call_go").
		Instantiate(ctx)
	if err != nil {
		b.wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	compiled, err := b.wasmRuntime.CompileModule(ctx, wasmBytes)
	if err != nil {
		b.wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}

	b.module, err = b.wasmRuntime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		b.wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
	}

	b.memory = b.module.Memory()
	if b.memory == nil {
		b.wasmRuntime.Close(ctx)
		return nil, errors.New("WASM module has no memory")
	}

	if err := b.initFunctions(); err != nil {
		b.wasmRuntime.Close(ctx)
		return nil, err
	}

	return b, nil
}

func (b *Bridge) initFunctions() error {
	exports := []struct {
		name string
		dst  *api.Function
	}{
		{"qjs_alloc", &b.fnAlloc},
		{"qjs_free", &b.fnFree},
		{"qjs_new_runtime", &b.fnNewRuntime},
		{"qjs_free_runtime", &b.fnFreeRuntime},
		{"qjs_new_context", &b.fnNewContext},
		{"qjs_free_context", &b.fnFreeContext},
		{"qjs_eval", &b.fnEval},
		{"qjs_is_exception", &b.fnIsException},
		{"qjs_is_undefined", &b.fnIsUndefined},
		{"qjs_is_null", &b.fnIsNull},
		{"qjs_to_bool", &b.fnToBool},
		{"qjs_to_float64", &b.fnToFloat64},
		{"qjs_to_cstring", &b.fnToCString},
		{"qjs_free_cstring", &b.fnFreeCString},
		{"qjs_new_undefined", &b.fnNewUndefined},
		{"qjs_new_null", &b.fnNewNull},
		{"qjs_new_bool", &b.fnNewBool},
		{"qjs_new_float64", &b.fnNewFloat64},
		{"qjs_new_string_len", &b.fnNewStringLen},
		{"qjs_get_property", &b.fnGetProperty},
		{"qjs_set_property", &b.fnSetProperty},
		{"qjs_get_property_uint32", &b.fnGetPropertyUint32},
		{"qjs_set_property_uint32", &b.fnSetPropertyUint32},
		{"qjs_get_global_object", &b.fnGetGlobalObject},
		{"qjs_call", &b.fnCall},
		{"qjs_call_constructor", &b.fnCallConstructor},
		{"qjs_get_exception", &b.fnGetException},
		{"qjs_dup_value", &b.fnDupValue},
		{"qjs_free_value", &b.fnFreeValue},
		{"qjs_run_gc", &b.fnRunGC},
		{"qjs_execute_pending_jobs", &b.fnExecutePendingJobs},
		{"qjs_new_big_int64", &b.fnNewBigInt64},
		{"qjs_to_big_int64", &b.fnToBigInt64},
		{"qjs_new_array_buffer", &b.fnNewArrayBuffer},
		{"qjs_get_array_buffer", &b.fnGetArrayBuffer},
		{"qjs_std_add_console", &b.fnStdAddConsole},
		{"qjs_new_c_function", &b.fnNewCFunction},
		{"qjs_set_memory_limit", &b.fnSetMemoryLimit},
		{"qjs_set_max_stack_size", &b.fnSetMaxStackSize},
		{"qjs_get_error_message", &b.fnGetErrorMessage},
	}
	for _, e := range exports {
		fn := b.module.ExportedFunction(e.name)
		if fn == nil {
			return fmt.Errorf("function %s not found in WASM module", e.name)
		}
		*e.dst = fn
	}
	return nil
}

// Close releases all resources.
func (b *Bridge) Close(ctx context.Context) error {
	return b.wasmRuntime.Close(ctx)
}

// SetLogFunc sets the function used for console output from JavaScript.
func (b *Bridge) SetLogFunc(fn func(msg string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logFunc = fn
}

// Host function implementations

func (b *Bridge) hostLog(ctx context.Context, m api.Module, bufPtr, bufLen uint32) {
	buf, ok := m.Memory().Read(bufPtr, bufLen)
	if !ok {
		return
	}
	b.mu.Lock()
	logFunc := b.logFunc
	b.mu.Unlock()
	if logFunc != nil {
		logFunc(string(buf))
	}
}

func (b *Bridge) hostCallGo(ctx context.Context, m api.Module, ctxPtr, funcID uint32, argc int32, argvPtr uint32) uint32 {
	b.callbackMu.RLock()
	fn, ok := b.callbacks[funcID]
	b.callbackMu.RUnlock()

	if !ok {
		undef, _ := b.NewUndefined(ctx)
		return undef
	}

	args := make([]uint32, argc)
	if argc > 0 && argvPtr != 0 {
		buf, ok := m.Memory().Read(argvPtr, uint32(argc)*4)
		if !ok {
			undef, _ := b.NewUndefined(ctx)
			return undef
		}
		for i := range args {
			args[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
	}

	return fn(ctxPtr, args)
}

// ============================================================================
// Memory
// ============================================================================

// Alloc allocates memory in the WASM heap and returns the pointer.
func (b *Bridge) Alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.fnAlloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.New("WASM allocation failed")
	}
	return ptr, nil
}

// Free frees memory in the WASM heap.
func (b *Bridge) Free(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	_, err := b.fnFree.Call(ctx, uint64(ptr))
	return err
}

// WriteString copies s into the WASM heap with a trailing NUL.
func (b *Bridge) WriteString(ctx context.Context, s string) (ptr uint32, err error) {
	sLen := len(s)
	ptr, err = b.Alloc(ctx, uint32(sLen+1))
	if err != nil {
		return 0, err
	}

	if sLen < 256 {
		bufPtr := getBuffer()
		*bufPtr = append((*bufPtr)[:0], s...)
		*bufPtr = append(*bufPtr, 0)
		ok := b.memory.Write(ptr, *bufPtr)
		putBuffer(bufPtr)
		if !ok {
			b.Free(ctx, ptr)
			return 0, errors.New("failed to write string to WASM memory")
		}
		return ptr, nil
	}
	if !b.memory.WriteString(ptr, s) || !b.memory.WriteByte(ptr+uint32(sLen), 0) {
		b.Free(ctx, ptr)
		return 0, errors.New("failed to write string to WASM memory")
	}
	return ptr, nil
}

// WriteBytes copies data into the WASM heap.
func (b *Bridge) WriteBytes(ctx context.Context, data []byte) (ptr uint32, err error) {
	ptr, err = b.Alloc(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if !b.memory.Write(ptr, data) {
		b.Free(ctx, ptr)
		return 0, errors.New("failed to write bytes to WASM memory")
	}
	return ptr, nil
}

// ReadCString reads a NUL-terminated string starting at ptr.
func (b *Bridge) ReadCString(ptr uint32) string {
	size := b.memory.Size()
	if ptr >= size {
		return ""
	}
	buf, ok := b.memory.Read(ptr, size-ptr)
	if !ok {
		return ""
	}
	if idx := bytes.IndexByte(buf, 0); idx >= 0 {
		return string(buf[:idx])
	}
	return string(buf)
}

// View returns length bytes at ptr without copying. The slice aliases WASM
// memory and is invalidated by the next allocation that grows memory.
func (b *Bridge) View(ptr, length uint32) []byte {
	buf, ok := b.memory.Read(ptr, length)
	if !ok {
		return nil
	}
	return buf
}

// readScalar allocates size bytes, runs fn with the pointer and returns the
// bytes fn stored there.
func (b *Bridge) readScalar(ctx context.Context, size uint32, name string, fn func(outPtr uint32) ([]uint64, error)) ([]byte, error) {
	outPtr, err := b.Alloc(ctx, size)
	if err != nil {
		return nil, err
	}
	defer b.Free(ctx, outPtr)

	results, err := fn(outPtr)
	if err != nil {
		return nil, err
	}
	if int32(results[0]) != 0 {
		return nil, fmt.Errorf("%s conversion failed", name)
	}
	buf, ok := b.memory.Read(outPtr, size)
	if !ok {
		return nil, errors.New("failed to read result from WASM memory")
	}
	out := make([]byte, size)
	copy(out, buf)
	return out, nil
}

// writeArgs stores argument pointers as a C array. The returned pointer must
// be released with Free.
func (b *Bridge) writeArgs(ctx context.Context, args []uint32) (uint32, error) {
	if len(args) == 0 {
		return 0, nil
	}
	argBuf := make([]byte, len(args)*4)
	for i, arg := range args {
		binary.LittleEndian.PutUint32(argBuf[i*4:], arg)
	}
	return b.WriteBytes(ctx, argBuf)
}

// ============================================================================
// Runtime and Context Management
// ============================================================================

// NewRuntime creates a new JavaScript runtime.
func (b *Bridge) NewRuntime(ctx context.Context) (uint32, error) {
	results, err := b.fnNewRuntime.Call(ctx)
	if err != nil {
		return 0, err
	}
	rtPtr := uint32(results[0])
	if rtPtr == 0 {
		return 0, errors.New("failed to create JavaScript runtime")
	}
	return rtPtr, nil
}

// FreeRuntime frees a JavaScript runtime.
func (b *Bridge) FreeRuntime(ctx context.Context, rtPtr uint32) error {
	_, err := b.fnFreeRuntime.Call(ctx, uint64(rtPtr))
	return err
}

// NewContext creates a new JavaScript context.
func (b *Bridge) NewContext(ctx context.Context, rtPtr uint32) (uint32, error) {
	results, err := b.fnNewContext.Call(ctx, uint64(rtPtr))
	if err != nil {
		return 0, err
	}
	ctxPtr := uint32(results[0])
	if ctxPtr == 0 {
		return 0, errors.New("failed to create JavaScript context")
	}
	return ctxPtr, nil
}

// FreeContext frees a JavaScript context.
func (b *Bridge) FreeContext(ctx context.Context, ctxPtr uint32) error {
	_, err := b.fnFreeContext.Call(ctx, uint64(ctxPtr))
	return err
}

// AddConsole adds console.log and print to the context.
func (b *Bridge) AddConsole(ctx context.Context, ctxPtr uint32) error {
	_, err := b.fnStdAddConsole.Call(ctx, uint64(ctxPtr))
	return err
}

func (b *Bridge) SetMemoryLimit(ctx context.Context, rtPtr, limit uint32) error {
	_, err := b.fnSetMemoryLimit.Call(ctx, uint64(rtPtr), uint64(limit))
	return err
}

func (b *Bridge) SetMaxStackSize(ctx context.Context, rtPtr, stackSize uint32) error {
	_, err := b.fnSetMaxStackSize.Call(ctx, uint64(rtPtr), uint64(stackSize))
	return err
}

func (b *Bridge) RunGC(ctx context.Context, rtPtr uint32) error {
	_, err := b.fnRunGC.Call(ctx, uint64(rtPtr))
	return err
}

func (b *Bridge) ExecutePendingJobs(ctx context.Context, rtPtr uint32) (int32, error) {
	results, err := b.fnExecutePendingJobs.Call(ctx, uint64(rtPtr))
	if err != nil {
		return -1, err
	}
	return int32(results[0]), nil
}

// ============================================================================
// Evaluation and Exceptions
// ============================================================================

// Eval evaluates JavaScript code in global scope.
func (b *Bridge) Eval(ctx context.Context, ctxPtr uint32, code, filename string) (uint32, error) {
	codePtr, err := b.WriteString(ctx, code)
	if err != nil {
		return 0, err
	}
	defer b.Free(ctx, codePtr)

	var filenamePtr uint32
	if filename != "" {
		filenamePtr, err = b.WriteString(ctx, filename)
		if err != nil {
			return 0, err
		}
		defer b.Free(ctx, filenamePtr)
	}

	results, err := b.fnEval.Call(ctx, uint64(ctxPtr), uint64(codePtr), uint64(len(code)), uint64(filenamePtr), 0)
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

func (b *Bridge) IsException(ctx context.Context, valPtr uint32) (bool, error) {
	return b.predicate(ctx, b.fnIsException, uint64(valPtr))
}

func (b *Bridge) GetException(ctx context.Context, ctxPtr uint32) (uint32, error) {
	return b.value(ctx, b.fnGetException, uint64(ctxPtr))
}

// GetErrorMessage renders an exception value, truncated to 1 KiB.
func (b *Bridge) GetErrorMessage(ctx context.Context, ctxPtr, errPtr uint32) (string, error) {
	const bufSize = 1024
	bufPtr, err := b.Alloc(ctx, bufSize)
	if err != nil {
		return "", err
	}
	defer b.Free(ctx, bufPtr)

	results, err := b.fnGetErrorMessage.Call(ctx, uint64(ctxPtr), uint64(errPtr), uint64(bufPtr), bufSize)
	if err != nil {
		return "", err
	}
	msgLen := min(uint32(results[0]), bufSize-1)
	return string(b.View(bufPtr, msgLen)), nil
}

// ============================================================================
// Type Checking and Conversion
// ============================================================================

func (b *Bridge) predicate(ctx context.Context, fn api.Function, params ...uint64) (bool, error) {
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return false, err
	}
	return int32(results[0]) > 0, nil
}

func (b *Bridge) value(ctx context.Context, fn api.Function, params ...uint64) (uint32, error) {
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

func (b *Bridge) IsUndefined(ctx context.Context, valPtr uint32) (bool, error) {
	return b.predicate(ctx, b.fnIsUndefined, uint64(valPtr))
}

func (b *Bridge) IsNull(ctx context.Context, valPtr uint32) (bool, error) {
	return b.predicate(ctx, b.fnIsNull, uint64(valPtr))
}

func (b *Bridge) ToBool(ctx context.Context, ctxPtr, valPtr uint32) (bool, error) {
	return b.predicate(ctx, b.fnToBool, uint64(ctxPtr), uint64(valPtr))
}

func (b *Bridge) ToFloat64(ctx context.Context, ctxPtr, valPtr uint32) (float64, error) {
	buf, err := b.readScalar(ctx, 8, "ToFloat64", func(out uint32) ([]uint64, error) {
		return b.fnToFloat64.Call(ctx, uint64(ctxPtr), uint64(valPtr), uint64(out))
	})
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

func (b *Bridge) ToBigInt64(ctx context.Context, ctxPtr, valPtr uint32) (int64, error) {
	buf, err := b.readScalar(ctx, 8, "ToBigInt64", func(out uint32) ([]uint64, error) {
		return b.fnToBigInt64.Call(ctx, uint64(ctxPtr), uint64(valPtr), uint64(out))
	})
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

func (b *Bridge) ToString(ctx context.Context, ctxPtr, valPtr uint32) (string, error) {
	results, err := b.fnToCString.Call(ctx, uint64(ctxPtr), uint64(valPtr))
	if err != nil {
		return "", err
	}
	strPtr := uint32(results[0])
	if strPtr == 0 {
		return "", errors.New("ToString conversion failed")
	}
	str := b.ReadCString(strPtr)
	_, _ = b.fnFreeCString.Call(ctx, uint64(ctxPtr), uint64(strPtr))
	return str, nil
}

// ============================================================================
// Value Creation
// ============================================================================

func (b *Bridge) NewUndefined(ctx context.Context) (uint32, error) {
	return b.value(ctx, b.fnNewUndefined)
}

func (b *Bridge) NewNull(ctx context.Context) (uint32, error) {
	return b.value(ctx, b.fnNewNull)
}

func (b *Bridge) NewBool(ctx context.Context, val bool) (uint32, error) {
	var v uint64
	if val {
		v = 1
	}
	return b.value(ctx, b.fnNewBool, v)
}

func (b *Bridge) NewFloat64(ctx context.Context, val float64) (uint32, error) {
	return b.value(ctx, b.fnNewFloat64, math.Float64bits(val))
}

func (b *Bridge) NewBigInt64(ctx context.Context, ctxPtr uint32, val int64) (uint32, error) {
	return b.value(ctx, b.fnNewBigInt64, uint64(ctxPtr), uint64(val))
}

func (b *Bridge) NewString(ctx context.Context, ctxPtr uint32, s string) (uint32, error) {
	strPtr, err := b.WriteString(ctx, s)
	if err != nil {
		return 0, err
	}
	defer b.Free(ctx, strPtr)
	return b.value(ctx, b.fnNewStringLen, uint64(ctxPtr), uint64(strPtr), uint64(len(s)))
}

// NewArrayBuffer copies data into a new ArrayBuffer.
func (b *Bridge) NewArrayBuffer(ctx context.Context, ctxPtr uint32, data []byte) (uint32, error) {
	var dataPtr uint32
	if len(data) > 0 {
		var err error
		dataPtr, err = b.WriteBytes(ctx, data)
		if err != nil {
			return 0, err
		}
		defer b.Free(ctx, dataPtr)
	}
	return b.value(ctx, b.fnNewArrayBuffer, uint64(ctxPtr), uint64(dataPtr), uint64(len(data)))
}

// ArrayBufferView returns the bytes of an ArrayBuffer without copying.
func (b *Bridge) ArrayBufferView(ctx context.Context, ctxPtr, valPtr uint32) ([]byte, error) {
	lenPtr, err := b.Alloc(ctx, 4)
	if err != nil {
		return nil, err
	}
	defer b.Free(ctx, lenPtr)

	bufPtr, err := b.value(ctx, b.fnGetArrayBuffer, uint64(ctxPtr), uint64(valPtr), uint64(lenPtr))
	if err != nil {
		return nil, err
	}
	lenBuf, ok := b.memory.Read(lenPtr, 4)
	if !ok {
		return nil, errors.New("failed to read length")
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length == 0 {
		return []byte{}, nil
	}
	if bufPtr == 0 {
		return nil, errors.New("not an ArrayBuffer")
	}
	return b.View(bufPtr, length), nil
}

// ============================================================================
// Properties
// ============================================================================

func (b *Bridge) GetProperty(ctx context.Context, ctxPtr, objPtr uint32, prop string) (uint32, error) {
	propPtr, err := b.WriteString(ctx, prop)
	if err != nil {
		return 0, err
	}
	defer b.Free(ctx, propPtr)
	return b.value(ctx, b.fnGetProperty, uint64(ctxPtr), uint64(objPtr), uint64(propPtr))
}

func (b *Bridge) SetProperty(ctx context.Context, ctxPtr, objPtr uint32, prop string, valPtr uint32) error {
	propPtr, err := b.WriteString(ctx, prop)
	if err != nil {
		return err
	}
	defer b.Free(ctx, propPtr)
	results, err := b.fnSetProperty.Call(ctx, uint64(ctxPtr), uint64(objPtr), uint64(propPtr), uint64(valPtr))
	if err != nil {
		return err
	}
	if int32(results[0]) < 0 {
		return errPropertyWrite
	}
	return nil
}

func (b *Bridge) GetPropertyUint32(ctx context.Context, ctxPtr, objPtr, idx uint32) (uint32, error) {
	return b.value(ctx, b.fnGetPropertyUint32, uint64(ctxPtr), uint64(objPtr), uint64(idx))
}

func (b *Bridge) SetPropertyUint32(ctx context.Context, ctxPtr, objPtr, idx, valPtr uint32) error {
	results, err := b.fnSetPropertyUint32.Call(ctx, uint64(ctxPtr), uint64(objPtr), uint64(idx), uint64(valPtr))
	if err != nil {
		return err
	}
	if int32(results[0]) < 0 {
		return errPropertyWrite
	}
	return nil
}

func (b *Bridge) GetGlobalObject(ctx context.Context, ctxPtr uint32) (uint32, error) {
	return b.value(ctx, b.fnGetGlobalObject, uint64(ctxPtr))
}

// ============================================================================
// Function Calling
// ============================================================================

func (b *Bridge) Call(ctx context.Context, ctxPtr, funcPtr, thisPtr uint32, args []uint32) (uint32, error) {
	argvPtr, err := b.writeArgs(ctx, args)
	if err != nil {
		return 0, err
	}
	defer b.Free(ctx, argvPtr)
	return b.value(ctx, b.fnCall, uint64(ctxPtr), uint64(funcPtr), uint64(thisPtr), uint64(len(args)), uint64(argvPtr))
}

func (b *Bridge) CallConstructor(ctx context.Context, ctxPtr, funcPtr uint32, args []uint32) (uint32, error) {
	argvPtr, err := b.writeArgs(ctx, args)
	if err != nil {
		return 0, err
	}
	defer b.Free(ctx, argvPtr)
	return b.value(ctx, b.fnCallConstructor, uint64(ctxPtr), uint64(funcPtr), uint64(len(args)), uint64(argvPtr))
}

// ============================================================================
// Value Management
// ============================================================================

func (b *Bridge) DupValue(ctx context.Context, ctxPtr, valPtr uint32) (uint32, error) {
	return b.value(ctx, b.fnDupValue, uint64(ctxPtr), uint64(valPtr))
}

func (b *Bridge) FreeValue(ctx context.Context, ctxPtr, valPtr uint32) error {
	_, err := b.fnFreeValue.Call(ctx, uint64(ctxPtr), uint64(valPtr))
	return err
}

// ============================================================================
// Go Function Binding
// ============================================================================

// RegisterGoFunc registers a Go function and returns its function ID.
func (b *Bridge) RegisterGoFunc(fn GoFunc) uint32 {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()

	funcID := b.nextFuncID
	b.nextFuncID++
	b.callbacks[funcID] = fn
	return funcID
}

// UnregisterGoFunc removes a registered Go function.
func (b *Bridge) UnregisterGoFunc(funcID uint32) {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()
	delete(b.callbacks, funcID)
}

// NewCFunction creates a JavaScript function that calls back into Go.
func (b *Bridge) NewCFunction(ctx context.Context, ctxPtr, funcID uint32, name string, argCount int32) (uint32, error) {
	namePtr, err := b.WriteString(ctx, name)
	if err != nil {
		return 0, err
	}
	defer b.Free(ctx, namePtr)
	return b.value(ctx, b.fnNewCFunction, uint64(ctxPtr), uint64(funcID), uint64(namePtr), uint64(uint32(argCount)))
}
