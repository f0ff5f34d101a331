package jsvm

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Gaurav-Gosain/ffibridge/abi"
	"github.com/Gaurav-Gosain/ffibridge/internal/goid"
)

// Config tunes a VM.
type Config struct {
	// LocalCapacity is the initial capacity of each goroutine's local
	// handle table.
	LocalCapacity int
}

// VM implements abi.VM over one engine instance. Every environment call
// holds the engine lock; the global reference table is only touched with
// that lock held.
type VM[V any] struct {
	eng Engine[V]
	lk  engineLock
	pre *prelude[V]
	cfg Config

	globals globalTable[V]

	mu     sync.Mutex // guards envs and closed
	envs   map[uint64]*Env[V]
	closed bool
}

var _ abi.VM = (*VM[int])(nil)

// New loads the prelude into eng and returns a VM owning it.
func New[V any](eng Engine[V], cfg Config) (*VM[V], error) {
	if cfg.LocalCapacity <= 0 {
		cfg.LocalCapacity = 64
	}
	vm := &VM[V]{
		eng:  eng,
		cfg:  cfg,
		envs: make(map[uint64]*Env[V]),
	}

	vm.lk.lock()
	defer vm.lk.unlock()
	pre, err := loadPrelude(eng)
	if err != nil {
		return nil, err
	}
	vm.pre = pre
	return vm, nil
}

func (vm *VM[V]) GetEnv(version uint32) (abi.Env, abi.Status) {
	if version != abi.Version {
		return nil, abi.InvalidVersion
	}
	e := vm.envOf(goid.ID())
	if e == nil {
		return nil, abi.NotFound
	}
	return e, abi.OK
}

func (vm *VM[V]) AttachCurrentThread(version uint32) (abi.Env, abi.Status) {
	if version != abi.Version {
		return nil, abi.InvalidVersion
	}
	gid := goid.ID()

	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return nil, abi.Error
	}
	if _, ok := vm.envs[gid]; ok {
		vm.mu.Unlock()
		return nil, abi.AlreadyBinded
	}
	e := &Env[V]{
		vm:     vm,
		gid:    gid,
		locals: make([]V, 0, vm.cfg.LocalCapacity),
	}
	vm.envs[gid] = e
	vm.mu.Unlock()

	runtime.LockOSThread()
	return e, abi.OK
}

func (vm *VM[V]) DetachCurrentThread() abi.Status {
	gid := goid.ID()

	vm.mu.Lock()
	e, ok := vm.envs[gid]
	if !ok {
		vm.mu.Unlock()
		return abi.NotFound
	}
	delete(vm.envs, gid)
	vm.mu.Unlock()

	vm.lk.lock()
	e.release()
	vm.lk.unlock()

	runtime.UnlockOSThread()
	return abi.OK
}

func (vm *VM[V]) DestroyVM() abi.Status {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return abi.Error
	}
	vm.closed = true
	envs := vm.envs
	vm.envs = make(map[uint64]*Env[V])
	vm.mu.Unlock()

	vm.lk.lock()
	defer vm.lk.unlock()
	for _, e := range envs {
		e.release()
	}
	vm.globals.each(vm.eng.Free)
	vm.globals = globalTable[V]{}
	vm.pre.free(vm.eng)
	if err := vm.eng.Close(); err != nil {
		return abi.Error
	}
	return abi.OK
}

// GlobalCount reports the number of live global references.
func (vm *VM[V]) GlobalCount() int {
	vm.lk.lock()
	defer vm.lk.unlock()
	return vm.globals.live
}

func (vm *VM[V]) envOf(gid uint64) *Env[V] {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.envs[gid]
}

// hostFunc adapts a native function to the engine's callback convention.
// The call runs in a fresh local scope of the calling goroutine's env.
func (vm *VM[V]) hostFunc(name string, fn abi.NativeFunc) HostFunc[V] {
	return func(this V, args []V) (V, error) {
		var zero V
		e := vm.envOf(goid.ID())
		if e == nil {
			return zero, fmt.Errorf("native function %s called without an attached environment", name)
		}
		e.pushFrame()
		defer e.popFrame()

		thisRef := e.push(vm.eng.Dup(this))
		refs := make([]abi.Ref, len(args))
		for i, a := range args {
			refs[i] = e.push(vm.eng.Dup(a))
		}

		ret := fn(e, thisRef, refs)

		if e.hasPending {
			exc := e.takePending()
			return zero, &Thrown[V]{Value: exc, Message: name}
		}
		if ret.IsNil() {
			return vm.eng.Undefined(), nil
		}
		v, st := e.resolve(ret)
		if st != abi.OK {
			return zero, errors.New("native function " + name + " returned " + st.String())
		}
		return vm.eng.Dup(v), nil
	}
}

// globalTable is a slot table with a free list.
type globalTable[V any] struct {
	slots []V
	used  []bool
	free  []uint32
	live  int
}

func (t *globalTable[V]) put(v V) uint32 {
	t.live++
	if n := len(t.free); n > 0 {
		i := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[i] = v
		t.used[i] = true
		return i
	}
	t.slots = append(t.slots, v)
	t.used = append(t.used, true)
	return uint32(len(t.slots) - 1)
}

func (t *globalTable[V]) get(i uint32) (V, bool) {
	if int(i) >= len(t.slots) || !t.used[i] {
		var zero V
		return zero, false
	}
	return t.slots[i], true
}

func (t *globalTable[V]) take(i uint32) (V, bool) {
	v, ok := t.get(i)
	if !ok {
		return v, false
	}
	var zero V
	t.slots[i] = zero
	t.used[i] = false
	t.free = append(t.free, i)
	t.live--
	return v, true
}

func (t *globalTable[V]) each(fn func(V)) {
	for i, v := range t.slots {
		if t.used[i] {
			fn(v)
		}
	}
}
