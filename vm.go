// Package ffibridge moves native typed values across a handle-based foreign
// runtime environment.
//
// A VM wraps an abi.VM. Goroutines attach to obtain an Env, the thread-affine
// gateway through which Serialize and Deserialize build and read foreign
// object graphs. Two runtimes are bundled: goja (NewGojaVM) and QuickJS-ng
// running under wazero (NewQuickJSVM).
package ffibridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/ffibridge/abi"
	"github.com/Gaurav-Gosain/ffibridge/internal/bridge"
	"github.com/Gaurav-Gosain/ffibridge/internal/gojs"
	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
	"github.com/Gaurav-Gosain/ffibridge/wasm"
)

// Option configures a VM.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	localCapacity  int
	loopQueueSize  int
	workerCapacity int64
	maxCallStack   int
	memoryLimit    uint32
	quickjsModule  []byte
}

func defaultOptions() options {
	return options{
		localCapacity: 64,
		loopQueueSize: 256,
	}
}

// WithLogger sets the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLocalCapacity sets the initial capacity of each goroutine's local
// reference table.
func WithLocalCapacity(n int) Option {
	return func(o *options) { o.localCapacity = n }
}

// WithLoopQueueSize sets how many jobs the VM's event loop buffers.
func WithLoopQueueSize(n int) Option {
	return func(o *options) { o.loopQueueSize = n }
}

// WithWorkerCapacity bounds how many fire-and-forget callbacks may block at
// once. It only takes effect before the worker first starts.
func WithWorkerCapacity(n int64) Option {
	return func(o *options) { o.workerCapacity = n }
}

// WithMaxCallStackSize bounds script recursion on the goja runtime.
func WithMaxCallStackSize(n int) Option {
	return func(o *options) { o.maxCallStack = n }
}

// WithMemoryLimit caps the QuickJS heap in bytes.
func WithMemoryLimit(n uint32) Option {
	return func(o *options) { o.memoryLimit = n }
}

// WithQuickJSModule supplies the QuickJS-ng WebAssembly binary. Without it
// NewQuickJSVM falls back to wasm.Load.
func WithQuickJSModule(b []byte) Option {
	return func(o *options) { o.quickjsModule = b }
}

// VM is a process-wide handle to a foreign runtime.
type VM struct {
	raw  abi.VM
	opts options
	loop *EventLoop

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// NewVM wraps raw. It fails when the runtime speaks another ABI version.
func NewVM(raw abi.VM, opts ...Option) (*VM, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if o.workerCapacity > 0 && !SetWorkerCapacity(o.workerCapacity) {
		Logger().Warn("worker already running, capacity unchanged",
			zap.Int64("capacity", o.workerCapacity))
	}

	if err := checkVersion(raw); err != nil {
		return nil, err
	}
	vm := &VM{raw: raw, opts: o}
	vm.loop = newEventLoop(vm, o.loopQueueSize)
	return vm, nil
}

func checkVersion(raw abi.VM) error {
	env, st := raw.GetEnv(abi.Version)
	switch st {
	case abi.OK:
	case abi.NotFound:
		if env, st = raw.AttachCurrentThread(abi.Version); st != abi.OK {
			return newError(EnvironmentError, "attach").status(st).build()
		}
		defer raw.DetachCurrentThread()
	default:
		return newError(EnvironmentError, "get env").status(st).build()
	}
	if v := env.GetVersion(); v != abi.Version {
		return newError(EnvironmentError, "check version").status(abi.InvalidVersion).
			detail("runtime speaks ABI %d, want %d", v, abi.Version).build()
	}
	return nil
}

// NewGojaVM starts a VM on a fresh goja runtime.
func NewGojaVM(opts ...Option) (*VM, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	eng := gojs.New(gojs.Options{MaxCallStackSize: o.maxCallStack})
	raw, err := jsvm.New[goja.Value](eng, jsvm.Config{LocalCapacity: o.localCapacity})
	if err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("failed to start goja runtime: %w", err)
	}
	return wrapVM(raw, opts)
}

// NewQuickJSVM starts a VM on QuickJS-ng. The module comes from
// WithQuickJSModule or, failing that, wasm.Load.
func NewQuickJSVM(ctx context.Context, opts ...Option) (*VM, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	module := o.quickjsModule
	if module == nil {
		var err error
		if module, err = wasm.Load(); err != nil {
			return nil, err
		}
	}
	eng, err := bridge.NewEngine(ctx, module, bridge.Options{
		MemoryLimit: o.memoryLimit,
		Log: func(msg string) {
			Logger().Info("console", zap.String("msg", msg))
		},
	})
	if err != nil {
		return nil, err
	}
	raw, err := jsvm.New[uint32](eng, jsvm.Config{LocalCapacity: o.localCapacity})
	if err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("failed to start QuickJS runtime: %w", err)
	}
	return wrapVM(raw, opts)
}

// wrapVM is NewVM for a runtime the caller created; raw is destroyed when
// wrapping fails.
func wrapVM(raw abi.VM, opts []Option) (*VM, error) {
	vm, err := NewVM(raw, opts...)
	if err != nil {
		raw.DestroyVM()
		return nil, err
	}
	return vm, nil
}

// Raw returns the wrapped abi.VM.
func (vm *VM) Raw() abi.VM { return vm.raw }

// Loop returns the VM's owner event loop.
func (vm *VM) Loop() *EventLoop { return vm.loop }

// Close stops the event loop and destroys the runtime. Every environment
// becomes invalid.
func (vm *VM) Close() error {
	vm.closeOnce.Do(func() {
		vm.loop.Stop()
		vm.closed.Store(true)
		if st := vm.raw.DestroyVM(); st != abi.OK {
			vm.closeErr = newError(EnvironmentError, "destroy vm").status(st).build()
		}
	})
	return vm.closeErr
}

// Env returns the environment of the calling goroutine. It fails with a
// ThreadStateError when the goroutine is not attached.
func (vm *VM) Env() (*Env, error) {
	raw, st := vm.raw.GetEnv(abi.Version)
	if st != abi.OK {
		return nil, newError(ThreadStateError, "get env").status(st).
			detail("goroutine is not attached").build()
	}
	return &Env{raw: raw, vm: vm}, nil
}

// AttachedEnv is an environment guard. Close detaches the goroutine only if
// this guard attached it.
type AttachedEnv struct {
	*Env
	attached bool
	once     sync.Once
}

// Attach returns the calling goroutine's environment, attaching it first
// when needed. The guard must be closed on the same goroutine.
func (vm *VM) Attach() (*AttachedEnv, error) {
	if raw, st := vm.raw.GetEnv(abi.Version); st == abi.OK {
		return &AttachedEnv{Env: &Env{raw: raw, vm: vm}}, nil
	}
	raw, st := vm.raw.AttachCurrentThread(abi.Version)
	if st != abi.OK {
		return nil, newError(ThreadStateError, "attach").status(st).build()
	}
	Logger().Debug("attached", goroutineFields()...)
	return &AttachedEnv{Env: &Env{raw: raw, vm: vm}, attached: true}, nil
}

// Attached reports whether Close will detach.
func (a *AttachedEnv) Attached() bool { return a.attached }

// Close detaches the goroutine if the guard attached it.
func (a *AttachedEnv) Close() error {
	var err error
	a.once.Do(func() {
		if !a.attached {
			return
		}
		if st := a.vm.raw.DetachCurrentThread(); st != abi.OK {
			err = newError(ThreadStateError, "detach").status(st).build()
			return
		}
		Logger().Debug("detached", goroutineFields()...)
	})
	return err
}

// WithEnv runs fn with the calling goroutine's environment, attaching and
// detaching around it as needed. The goroutine is detached even if fn
// panics.
func (vm *VM) WithEnv(fn func(*Env) error) (err error) {
	a, err := vm.Attach()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(a.Env)
}

var defaultVM atomic.Pointer[VM]

// ErrDefaultVMSet is returned when SetDefaultVM is called twice.
var ErrDefaultVMSet = errors.New("ffibridge: default VM already set")

// SetDefaultVM records vm as the process-wide VM. It can be set once.
func SetDefaultVM(vm *VM) error {
	if vm == nil {
		return errors.New("ffibridge: nil VM")
	}
	if !defaultVM.CompareAndSwap(nil, vm) {
		return ErrDefaultVMSet
	}
	return nil
}

// DefaultVM returns the process-wide VM, if set.
func DefaultVM() (*VM, bool) {
	vm := defaultVM.Load()
	return vm, vm != nil
}
