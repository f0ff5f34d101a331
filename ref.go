package ffibridge

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

// Ref is a foreign reference. A local Ref is valid for the local scope that
// produced it; a global Ref until it is released.
type Ref = abi.Ref

// RefFromHandle wraps a raw handle without validation.
func RefFromHandle(raw uint32) Ref { return Ref(raw) }

// GlobalRef owns a process-wide reference and releases it exactly once.
// A GlobalRef collected without Release is released in the background and
// reported as a leak.
type GlobalRef struct {
	vm       *VM
	ref      Ref
	once     sync.Once
	released atomic.Bool
	cleanup  runtime.Cleanup
}

// Promote creates a global reference to r.
func (e *Env) Promote(r Ref) (*GlobalRef, error) {
	g, st := e.raw.GlobalReferenceCreate(r)
	if st != abi.OK {
		return nil, newError(EnvironmentError, "create global ref").name(r.String()).status(st).build()
	}
	gr := &GlobalRef{vm: e.vm, ref: g}
	gr.cleanup = runtime.AddCleanup(gr, releaseLeaked, leakedRef{vm: e.vm, ref: g})
	return gr, nil
}

type leakedRef struct {
	vm  *VM
	ref Ref
}

// releaseLeaked runs on the runtime's cleanup goroutine, which must not
// block on the engine lock.
func releaseLeaked(l leakedRef) {
	if l.vm.closed.Load() {
		return
	}
	Logger().Warn("global reference leaked", zap.Stringer("ref", l.ref))
	go func() {
		err := l.vm.WithEnv(func(env *Env) error {
			return env.DeleteGlobalRef(l.ref)
		})
		if err != nil {
			Logger().Warn("failed to release leaked global reference",
				goroutineFields(zap.Stringer("ref", l.ref), zap.Error(err))...)
		}
	}()
}

// Ref returns the global handle. It is usable from any attached goroutine
// until Release.
func (g *GlobalRef) Ref() Ref { return g.ref }

// Released reports whether Release has run.
func (g *GlobalRef) Released() bool { return g.released.Load() }

// Release deletes the global reference. It attaches the calling goroutine
// when needed and detaches again afterwards. Later calls do nothing.
// Failures are logged.
func (g *GlobalRef) Release() {
	g.once.Do(func() {
		g.cleanup.Stop()
		g.released.Store(true)
		err := g.vm.WithEnv(func(env *Env) error {
			return env.DeleteGlobalRef(g.ref)
		})
		if err != nil {
			Logger().Warn("failed to release global reference",
				goroutineFields(zap.Stringer("ref", g.ref), zap.Error(err))...)
		}
	})
}

// RefEqual compares two references through the calling goroutine's
// environment. Without one the references are reported unequal.
func RefEqual(vm *VM, a, b Ref) bool {
	env, err := vm.Env()
	if err != nil {
		return false
	}
	return env.Equal(a, b)
}
