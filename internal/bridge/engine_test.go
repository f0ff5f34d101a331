package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Gaurav-Gosain/ffibridge/abi"
	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
	"github.com/Gaurav-Gosain/ffibridge/wasm"
)

func loadModule(tb testing.TB) []byte {
	tb.Helper()
	data, err := wasm.Load()
	if errors.Is(err, wasm.ErrNotConfigured) {
		tb.Skipf("%s not set; skipping QuickJS tests", wasm.EnvVar)
	}
	if err != nil {
		tb.Fatalf("wasm.Load() error = %v", err)
	}
	return data
}

func newEngine(tb testing.TB) *Engine {
	tb.Helper()
	e, err := NewEngine(context.Background(), loadModule(tb), Options{})
	if err != nil {
		tb.Fatalf("NewEngine() error = %v", err)
	}
	tb.Cleanup(func() { e.Close() })
	return e
}

func evalString(t *testing.T, e *Engine, code string) string {
	t.Helper()
	v, err := e.Eval(code, "<test>")
	if err != nil {
		t.Fatalf("Eval(%q) error = %v", code, err)
	}
	defer e.Free(v)
	s, err := e.ToString(v)
	if err != nil {
		t.Fatalf("ToString error = %v", err)
	}
	return s
}

func TestNewEngineRejectsEmptyModule(t *testing.T) {
	if _, err := NewEngine(context.Background(), nil, Options{}); err == nil {
		t.Fatal("NewEngine(nil) succeeded")
	}
}

func TestEvalBasicArithmetic(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		code     string
		expected string
	}{
		{"1 + 2", "3"},
		{"10 - 3", "7"},
		{"4 * 5", "20"},
		{"2 ** 10", "1024"},
		{"10n ** 20n", "100000000000000000000"},
		{"`a${1 + 1}b`", "a2b"},
	}

	for _, tt := range tests {
		if got := evalString(t, e, tt.code); got != tt.expected {
			t.Errorf("Eval(%q) = %q, want %q", tt.code, got, tt.expected)
		}
	}
}

func TestEvalException(t *testing.T) {
	e := newEngine(t)

	_, err := e.Eval(`throw new RangeError("out")`, "<test>")
	var thrown *jsvm.Thrown[uint32]
	if !errors.As(err, &thrown) {
		t.Fatalf("Eval error = %v, want *jsvm.Thrown", err)
	}
	defer e.Free(thrown.Value)
	msg, err := e.Get(thrown.Value, "message")
	if err != nil {
		t.Fatalf("Get(message) error = %v", err)
	}
	defer e.Free(msg)
	if s, _ := e.ToString(msg); s != "out" {
		t.Errorf("message = %q, want %q", s, "out")
	}
}

func TestGoFunction(t *testing.T) {
	e := newEngine(t)

	add, err := e.NewFunction("add", func(this uint32, args []uint32) (uint32, error) {
		a, _ := e.ToNumber(args[0])
		b, _ := e.ToNumber(args[1])
		return e.NewNumber(a + b), nil
	})
	if err != nil {
		t.Fatalf("NewFunction error = %v", err)
	}
	defer e.Free(add)
	fail, err := e.NewFunction("fail", func(this uint32, args []uint32) (uint32, error) {
		return 0, errors.New("go side failed")
	})
	if err != nil {
		t.Fatalf("NewFunction error = %v", err)
	}
	defer e.Free(fail)

	global, _ := e.Global()
	defer e.Free(global)
	if err := e.Set(global, "goAdd", add); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if err := e.Set(global, "goFail", fail); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	if got := evalString(t, e, "goAdd(10, 20)"); got != "30" {
		t.Errorf("goAdd(10, 20) = %q, want %q", got, "30")
	}
	if got := evalString(t, e, `try { goFail(); "none" } catch (e) { String(e) }`); got != "go side failed" {
		t.Errorf("caught = %q, want %q", got, "go side failed")
	}
}

func TestArrayBufferView(t *testing.T) {
	e := newEngine(t)

	buf, err := e.NewArrayBuffer([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewArrayBuffer error = %v", err)
	}
	defer e.Free(buf)
	data, err := e.ArrayBufferData(buf)
	if err != nil {
		t.Fatalf("ArrayBufferData error = %v", err)
	}
	if len(data) != 4 || data[3] != 4 {
		t.Fatalf("data = %v", data)
	}
}

func TestEnvOverQuickJS(t *testing.T) {
	vm, err := jsvm.New[uint32](newEngine(t), jsvm.Config{})
	if err != nil {
		t.Fatalf("jsvm.New error = %v", err)
	}
	env, st := vm.AttachCurrentThread(abi.Version)
	if st != abi.OK {
		t.Fatalf("attach = %v", st)
	}
	defer vm.DetachCurrentThread()

	r, st := env.Box(abi.KindLong, uint64(1)<<40)
	if st != abi.OK {
		t.Fatalf("Box = %v", st)
	}
	bits, st := env.Unbox(abi.KindLong, r)
	if st != abi.OK || bits != 1<<40 {
		t.Fatalf("Unbox = %d, %v", bits, st)
	}

	cls, st := env.FindClass("Map")
	if st != abi.OK {
		t.Fatalf("FindClass(Map) = %v", st)
	}
	m, st := env.NewObject(cls)
	if st != abi.OK {
		t.Fatalf("NewObject(Map) = %v", st)
	}
	if _, st := env.CallMethodByName(m, "set", env.Null(), env.Undefined()); st != abi.OK {
		t.Fatalf("Map.set = %v", st)
	}
	size, _ := env.GetProperty(m, "size")
	if bits, _ := env.Unbox(abi.KindInt, size); bits != 1 {
		t.Fatalf("size = %d", bits)
	}
}

func TestParallelEngines(t *testing.T) {
	data := loadModule(t)
	const numGoroutines = 4

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)
	for g := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e, err := NewEngine(context.Background(), data, Options{})
			if err != nil {
				errs <- fmt.Errorf("goroutine %d: NewEngine error: %w", id, err)
				return
			}
			defer e.Close()
			v, err := e.Eval(fmt.Sprintf("%d * 3", id), "<test>")
			if err != nil {
				errs <- fmt.Errorf("goroutine %d: Eval error: %w", id, err)
				return
			}
			defer e.Free(v)
			if f, _ := e.ToNumber(v); int(f) != id*3 {
				errs <- fmt.Errorf("goroutine %d: got %v, want %d", id, f, id*3)
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func BenchmarkEval(b *testing.B) {
	e := newEngine(b)
	for b.Loop() {
		v, err := e.Eval("1 + 2", "<bench>")
		if err != nil {
			b.Fatalf("Eval error = %v", err)
		}
		e.Free(v)
	}
}
