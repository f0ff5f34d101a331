package ffibridge

import (
	"testing"
)

// newTestVM starts a goja-backed VM and attaches the test goroutine.
func newTestVM(t testing.TB, opts ...Option) (*VM, *Env) {
	t.Helper()
	vm, err := NewGojaVM(opts...)
	if err != nil {
		t.Fatalf("NewGojaVM() error = %v", err)
	}
	a, err := vm.Attach()
	if err != nil {
		vm.Close()
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("detach: %v", err)
		}
		if err := vm.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return vm, a.Env
}

// subtestEnv attaches the goroutine t.Run started for a subtest. Local
// references of the parent test's Env do not resolve in it.
func subtestEnv(t *testing.T, vm *VM) *Env {
	t.Helper()
	a, err := vm.Attach()
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("detach: %v", err)
		}
	})
	return a.Env
}

func mustEval(t testing.TB, env *Env, code string) Ref {
	t.Helper()
	r, err := env.Eval(code, "test.js")
	if err != nil {
		t.Fatalf("Eval(%q) error = %v", code, err)
	}
	return r
}

func evalString(t testing.TB, env *Env, code string) string {
	t.Helper()
	s, err := env.GetString(mustEval(t, env, code))
	if err != nil {
		t.Fatalf("GetString(%q) error = %v", code, err)
	}
	return s
}

type globalCounter interface{ GlobalCount() int }

type localCounter interface{ LocalCount() int }

func globalCount(t testing.TB, vm *VM) int {
	t.Helper()
	gc, ok := vm.Raw().(globalCounter)
	if !ok {
		t.Fatalf("%T does not count globals", vm.Raw())
	}
	return gc.GlobalCount()
}

func localCount(t testing.TB, env *Env) int {
	t.Helper()
	lc, ok := env.Raw().(localCounter)
	if !ok {
		t.Fatalf("%T does not count locals", env.Raw())
	}
	return lc.LocalCount()
}
