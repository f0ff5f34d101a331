package ffibridge

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gaurav-Gosain/ffibridge/abi"
	"github.com/Gaurav-Gosain/ffibridge/internal/gojs"
	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
)

func TestEnvRequiresAttach(t *testing.T) {
	vm, err := NewGojaVM()
	if err != nil {
		t.Fatalf("NewGojaVM() error = %v", err)
	}
	defer vm.Close()

	if _, err := vm.Env(); !errors.Is(err, ErrThreadState) {
		t.Fatalf("Env() error = %v, want ErrThreadState", err)
	}

	outer, err := vm.Attach()
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if !outer.Attached() {
		t.Error("outer guard did not attach")
	}
	inner, err := vm.Attach()
	if err != nil {
		t.Fatalf("nested Attach() error = %v", err)
	}
	if inner.Attached() {
		t.Error("nested guard claims to have attached")
	}
	if err := inner.Close(); err != nil {
		t.Fatalf("inner Close() error = %v", err)
	}
	if _, err := vm.Env(); err != nil {
		t.Fatalf("Env() after inner Close error = %v", err)
	}
	if err := outer.Close(); err != nil {
		t.Fatalf("outer Close() error = %v", err)
	}
	if err := outer.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := vm.Env(); err == nil {
		t.Fatal("Env() succeeded after detach")
	}
}

func TestWithEnvDetachesOnPanic(t *testing.T) {
	vm, err := NewGojaVM()
	if err != nil {
		t.Fatalf("NewGojaVM() error = %v", err)
	}
	defer vm.Close()

	done := make(chan error)
	go func() {
		func() {
			defer func() { _ = recover() }()
			_ = vm.WithEnv(func(*Env) error { panic("boom") })
		}()
		_, err := vm.Env()
		done <- err
	}()
	if err := <-done; !errors.Is(err, ErrThreadState) {
		t.Fatalf("Env() after panic = %v, want ErrThreadState", err)
	}
}

type oldEnv struct{ abi.Env }

func (oldEnv) GetVersion() uint32 { return abi.Version + 1 }

type oldVM struct{ abi.VM }

func (v oldVM) GetEnv(version uint32) (abi.Env, abi.Status) {
	env, st := v.VM.GetEnv(version)
	if st != abi.OK {
		return nil, st
	}
	return oldEnv{env}, abi.OK
}

func (v oldVM) AttachCurrentThread(version uint32) (abi.Env, abi.Status) {
	env, st := v.VM.AttachCurrentThread(version)
	if st != abi.OK {
		return nil, st
	}
	return oldEnv{env}, abi.OK
}

func TestNewVMRejectsVersionMismatch(t *testing.T) {
	raw, err := jsvm.New[goja.Value](gojs.New(gojs.Options{}), jsvm.Config{})
	if err != nil {
		t.Fatalf("jsvm.New() error = %v", err)
	}
	defer raw.DestroyVM()

	_, err = NewVM(oldVM{raw})
	if !errors.Is(err, ErrEnvironment) {
		t.Fatalf("NewVM() error = %v, want ErrEnvironment", err)
	}
	if st := StatusOf(err); st != abi.InvalidVersion {
		t.Errorf("StatusOf() = %v, want %v", st, abi.InvalidVersion)
	}
	// The probe attachment is undone.
	if _, st := raw.GetEnv(abi.Version); st != abi.NotFound {
		t.Errorf("GetEnv() status = %v, want %v", st, abi.NotFound)
	}
}

func TestDefaultVM(t *testing.T) {
	if err := SetDefaultVM(nil); err == nil {
		t.Error("SetDefaultVM(nil) succeeded")
	}
	vm, _ := newTestVM(t)
	if err := SetDefaultVM(vm); err != nil {
		if !errors.Is(err, ErrDefaultVMSet) {
			t.Fatalf("SetDefaultVM() error = %v", err)
		}
		t.Skip("default VM set elsewhere in this process")
	}
	got, ok := DefaultVM()
	if !ok || got != vm {
		t.Errorf("DefaultVM() = %p, %v; want %p", got, ok, vm)
	}
	if err := SetDefaultVM(vm); !errors.Is(err, ErrDefaultVMSet) {
		t.Errorf("second SetDefaultVM() error = %v, want ErrDefaultVMSet", err)
	}
}

func TestWithLoggerOption(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(func() { SetLogger(nil) })

	_, env := newTestVM(t, WithLogger(zap.New(core)))
	if Logger().Core() != core {
		t.Fatal("WithLogger did not install the logger")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.VM().WithEnv(func(*Env) error { return nil })
	}()
	<-done

	if n := logs.FilterMessage("attached").Len(); n == 0 {
		t.Error("no attach was logged")
	}
	for _, e := range logs.FilterMessage("detached").All() {
		if _, ok := e.ContextMap()["goroutine"]; !ok {
			t.Errorf("detach entry has no goroutine field: %v", e.ContextMap())
		}
	}
}
