package jsvm_test

import (
	"math"
	"sync"
	"testing"

	"github.com/dop251/goja"

	"github.com/Gaurav-Gosain/ffibridge/abi"
	"github.com/Gaurav-Gosain/ffibridge/internal/gojs"
	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
)

type evaluator interface {
	Eval(code, filename string) (abi.Ref, abi.Status)
}

func newEnv(t *testing.T) (*jsvm.VM[goja.Value], abi.Env) {
	t.Helper()
	vm, err := jsvm.New[goja.Value](gojs.New(gojs.Options{}), jsvm.Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	env, st := vm.AttachCurrentThread(abi.Version)
	if st != abi.OK {
		t.Fatalf("AttachCurrentThread failed: %v", st)
	}
	t.Cleanup(func() {
		vm.DetachCurrentThread()
		vm.DestroyVM()
	})
	return vm, env
}

// subEnv attaches the goroutine t.Run started for a subtest.
func subEnv(t *testing.T, vm *jsvm.VM[goja.Value]) abi.Env {
	t.Helper()
	env, st := vm.AttachCurrentThread(abi.Version)
	if st != abi.OK {
		t.Fatalf("AttachCurrentThread failed: %v", st)
	}
	t.Cleanup(func() { vm.DetachCurrentThread() })
	return env
}

func eval(t *testing.T, env abi.Env, code string) abi.Ref {
	t.Helper()
	r, st := env.(evaluator).Eval(code, "test.js")
	if st != abi.OK {
		desc, _ := env.DescribeError()
		t.Fatalf("Eval(%q) failed: %v %s", code, st, desc)
	}
	return r
}

func str(t *testing.T, env abi.Env, s string) abi.Ref {
	t.Helper()
	r, st := env.StringNewUTF8(s)
	if st != abi.OK {
		t.Fatalf("StringNewUTF8 failed: %v", st)
	}
	return r
}

func TestAttachDetach(t *testing.T) {
	vm, err := jsvm.New[goja.Value](gojs.New(gojs.Options{}), jsvm.Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer vm.DestroyVM()

	if _, st := vm.GetEnv(abi.Version); st != abi.NotFound {
		t.Fatalf("GetEnv before attach = %v, want not found", st)
	}
	if _, st := vm.AttachCurrentThread(abi.Version + 1); st != abi.InvalidVersion {
		t.Fatalf("attach with bad version = %v", st)
	}
	env, st := vm.AttachCurrentThread(abi.Version)
	if st != abi.OK {
		t.Fatalf("attach = %v", st)
	}
	if _, st := vm.AttachCurrentThread(abi.Version); st != abi.AlreadyBinded {
		t.Fatalf("second attach = %v, want already bound", st)
	}
	got, st := vm.GetEnv(abi.Version)
	if st != abi.OK || got != env {
		t.Fatalf("GetEnv = %v, %v", got, st)
	}
	if st := vm.DetachCurrentThread(); st != abi.OK {
		t.Fatalf("detach = %v", st)
	}
	if st := vm.DetachCurrentThread(); st != abi.NotFound {
		t.Fatalf("second detach = %v", st)
	}
	if _, st := env.IsNull(abi.LocalRef(0)); st == abi.OK {
		t.Fatal("detached env still usable")
	}
}

func TestEnvIsGoroutineAffine(t *testing.T) {
	_, env := newEnv(t)
	u := env.Undefined()

	var wg sync.WaitGroup
	var st abi.Status
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, st = env.IsUndefined(u)
	}()
	wg.Wait()
	if st != abi.InvalidArgs {
		t.Fatalf("foreign goroutine call = %v, want invalid arguments", st)
	}
}

func TestFindClass(t *testing.T) {
	vm, env := newEnv(t)
	eval(t, env, `
		class Point { constructor() { this.x = 0; } }
		globalThis.geo = { Shape: class Shape {} };
	`)

	tests := []struct {
		name string
		want abi.Status
	}{
		{"Point", abi.OK},
		{"geo.Shape", abi.OK},
		{"Map", abi.OK},
		{"ffi.Int", abi.OK},
		{"Nope", abi.NotFound},
		{"geo.Missing.Deep", abi.NotFound},
		{"geo", abi.NotFound},
		{"", abi.InvalidArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := subEnv(t, vm)
			if _, st := env.FindClass(tt.name); st != tt.want {
				t.Fatalf("FindClass(%q) = %v, want %v", tt.name, st, tt.want)
			}
		})
	}

	if _, st := env.FindNamespace("geo"); st != abi.OK {
		t.Fatalf("FindNamespace(geo) = %v", st)
	}
}

func TestFieldsAndProperties(t *testing.T) {
	_, env := newEnv(t)
	eval(t, env, `class Point { constructor() { this.x = 1; } get norm() { return 7; } }`)

	cls, _ := env.FindClass("Point")
	obj, st := env.NewObject(cls)
	if st != abi.OK {
		t.Fatalf("NewObject = %v", st)
	}
	if _, st := env.GetField(obj, "x"); st != abi.OK {
		t.Fatalf("GetField(x) = %v", st)
	}
	if _, st := env.GetField(obj, "norm"); st != abi.NotFound {
		t.Fatalf("GetField(norm) = %v, want not found", st)
	}
	if st := env.SetField(obj, "y", env.Null()); st != abi.NotFound {
		t.Fatalf("SetField(y) = %v, want not found", st)
	}
	if st := env.SetProperty(obj, "y", env.Null()); st != abi.OK {
		t.Fatalf("SetProperty(y) = %v", st)
	}
	y, st := env.GetField(obj, "y")
	if st != abi.OK {
		t.Fatalf("GetField(y) = %v", st)
	}
	if null, _ := env.IsNull(y); !null {
		t.Fatal("y is not null")
	}
	norm, st := env.GetProperty(obj, "norm")
	if st != abi.OK {
		t.Fatalf("GetProperty(norm) = %v", st)
	}
	bits, st := env.Unbox(abi.KindInt, norm)
	if st != abi.OK || int32(bits) != 7 {
		t.Fatalf("norm = %d, %v", int32(bits), st)
	}
	if _, st := env.GetProperty(env.Undefined(), "x"); st != abi.InvalidArgs {
		t.Fatalf("GetProperty(undefined) = %v", st)
	}
}

func TestBoxUnbox(t *testing.T) {
	vm, _ := newEnv(t)

	tests := []struct {
		kind abi.Kind
		bits uint64
	}{
		{abi.KindBool, 1},
		{abi.KindByte, uint64(0xffffffffffffff80)}, // -128
		{abi.KindShort, uint64(math.MaxInt16)},
		{abi.KindInt, uint64(0xffffffff80000000)}, // MinInt32
		{abi.KindLong, uint64(math.MaxInt64)},
		{abi.KindFloat, uint64(math.Float32bits(1.5))},
		{abi.KindDouble, math.Float64bits(-2.25)},
		{abi.KindChar, 'x'},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			env := subEnv(t, vm)
			r, st := env.Box(tt.kind, tt.bits)
			if st != abi.OK {
				t.Fatalf("Box = %v", st)
			}
			cls, st := env.FindClass("ffi." + tt.kind.String())
			if st != abi.OK {
				t.Fatalf("FindClass = %v", st)
			}
			if ok, _ := env.InstanceOf(r, cls); !ok {
				t.Fatal("box is not an instance of its class")
			}
			got, st := env.Unbox(tt.kind, r)
			if st != abi.OK {
				t.Fatalf("Unbox = %v", st)
			}
			if got != tt.bits {
				t.Fatalf("Unbox = %#x, want %#x", got, tt.bits)
			}
		})
	}
}

func TestUnboxRejectsMismatch(t *testing.T) {
	_, env := newEnv(t)

	d, _ := env.Box(abi.KindDouble, math.Float64bits(3))
	if _, st := env.Unbox(abi.KindInt, d); st != abi.InvalidType {
		t.Fatalf("Unbox(Int, Double box) = %v", st)
	}
	frac := eval(t, env, `3.5`)
	if _, st := env.Unbox(abi.KindInt, frac); st != abi.InvalidType {
		t.Fatalf("Unbox(Int, 3.5) = %v", st)
	}
	big := eval(t, env, `300`)
	if _, st := env.Unbox(abi.KindByte, big); st != abi.InvalidType {
		t.Fatalf("Unbox(Byte, 300) = %v", st)
	}
	if bits, st := env.Unbox(abi.KindInt, big); st != abi.OK || bits != 300 {
		t.Fatalf("Unbox(Int, 300) = %d, %v", bits, st)
	}
	c := str(t, env, "a")
	if bits, st := env.Unbox(abi.KindChar, c); st != abi.OK || bits != 'a' {
		t.Fatalf("Unbox(Char, \"a\") = %d, %v", bits, st)
	}
	if _, st := env.Unbox(abi.KindBool, c); st != abi.InvalidType {
		t.Fatalf("Unbox(Bool, string) = %v", st)
	}
}

func TestStrings(t *testing.T) {
	_, env := newEnv(t)
	r := str(t, env, "héllo")

	n, st := env.StringGetUTF8Size(r)
	if st != abi.OK || n != len("héllo") {
		t.Fatalf("size = %d, %v", n, st)
	}
	if _, st := env.StringGetUTF8(r, make([]byte, n)); st != abi.BufferTooSmall {
		t.Fatalf("short buffer = %v", st)
	}
	buf := make([]byte, n+1)
	w, st := env.StringGetUTF8(r, buf)
	if st != abi.OK || string(buf[:w]) != "héllo" || buf[w] != 0 {
		t.Fatalf("StringGetUTF8 = %q, %v", buf, st)
	}
	if _, st := env.StringGetUTF8Size(env.Null()); st != abi.InvalidType {
		t.Fatalf("size of null = %v", st)
	}
}

func TestArrays(t *testing.T) {
	_, env := newEnv(t)
	arr, st := env.ArrayNew(3)
	if st != abi.OK {
		t.Fatalf("ArrayNew = %v", st)
	}
	if n, _ := env.ArrayLength(arr); n != 3 {
		t.Fatalf("length = %d", n)
	}
	if st := env.ArraySet(arr, 1, str(t, env, "b")); st != abi.OK {
		t.Fatalf("ArraySet = %v", st)
	}
	item, st := env.ArrayGet(arr, 1)
	if st != abi.OK {
		t.Fatalf("ArrayGet = %v", st)
	}
	if n, _ := env.StringGetUTF8Size(item); n != 1 {
		t.Fatalf("item size = %d", n)
	}
	if _, st := env.ArrayGet(arr, 3); st != abi.OutOfRange {
		t.Fatalf("ArrayGet(3) = %v", st)
	}
	if st := env.ArraySet(arr, -1, env.Null()); st != abi.OutOfRange {
		t.Fatalf("ArraySet(-1) = %v", st)
	}
	if _, st := env.ArrayLength(str(t, env, "abc")); st != abi.InvalidType {
		t.Fatalf("ArrayLength(string) = %v", st)
	}

	tuple := eval(t, env, `[1, "two"]`)
	second, st := env.TupleGetItem(tuple, 1)
	if st != abi.OK {
		t.Fatalf("TupleGetItem = %v", st)
	}
	if n, _ := env.StringGetUTF8Size(second); n != 3 {
		t.Fatalf("tuple item size = %d", n)
	}
}

func TestArrayBuffer(t *testing.T) {
	_, env := newEnv(t)
	buf, st := env.ArrayBufferCreate([]byte{1, 2, 3})
	if st != abi.OK {
		t.Fatalf("ArrayBufferCreate = %v", st)
	}
	global := eval(t, env, `globalThis`)
	if st := env.SetProperty(global, "buf", buf); st != abi.OK {
		t.Fatalf("SetProperty = %v", st)
	}
	r := eval(t, env, `new Uint8Array(buf)[1]`)
	if bits, _ := env.Unbox(abi.KindInt, r); bits != 2 {
		t.Fatalf("buf[1] = %d", bits)
	}

	data, st := env.ArrayBufferData(eval(t, env, `new Uint8Array([9, 8]).buffer`))
	if st != abi.OK || len(data) != 2 || data[0] != 9 {
		t.Fatalf("ArrayBufferData = %v, %v", data, st)
	}
	if _, st := env.ArrayBufferData(eval(t, env, `[]`)); st != abi.InvalidType {
		t.Fatalf("ArrayBufferData(array) = %v", st)
	}
}

func TestEnums(t *testing.T) {
	_, env := newEnv(t)
	eval(t, env, `ffi.defineEnum("pal.Color", ["Red", "Green"])`)

	enum, st := env.FindEnum("pal.Color")
	if st != abi.OK {
		t.Fatalf("FindEnum = %v", st)
	}
	if _, st := env.FindEnum("Map"); st != abi.NotFound {
		t.Fatalf("FindEnum(Map) = %v", st)
	}
	green, st := env.EnumGetItemByName(enum, "Green")
	if st != abi.OK {
		t.Fatalf("EnumGetItemByName = %v", st)
	}
	if idx, _ := env.EnumItemGetIndex(green); idx != 1 {
		t.Fatalf("index = %d", idx)
	}
	if ok, _ := env.InstanceOf(green, enum); !ok {
		t.Fatal("item is not an instance of its enum")
	}
	red, st := env.EnumGetItemByIndex(enum, 0)
	if st != abi.OK {
		t.Fatalf("EnumGetItemByIndex = %v", st)
	}
	if name, _ := env.EnumItemGetName(red); name != "Red" {
		t.Fatalf("name = %q", name)
	}
	if _, st := env.EnumGetItemByIndex(enum, 2); st != abi.OutOfRange {
		t.Fatalf("EnumGetItemByIndex(2) = %v", st)
	}
	if _, st := env.EnumGetItemByName(enum, "Blue"); st != abi.NotFound {
		t.Fatalf("EnumGetItemByName(Blue) = %v", st)
	}
}

func TestPendingErrors(t *testing.T) {
	_, env := newEnv(t)

	if _, st := env.(evaluator).Eval(`throw new TypeError("boom")`, "t.js"); st != abi.PendingError {
		t.Fatalf("Eval = %v, want pending error", st)
	}
	if ok, _ := env.ExistUnhandledError(); !ok {
		t.Fatal("no pending error")
	}
	desc, st := env.DescribeError()
	if st != abi.OK || desc != "TypeError: boom" {
		t.Fatalf("DescribeError = %q, %v", desc, st)
	}
	if ok, _ := env.ExistUnhandledError(); ok {
		t.Fatal("DescribeError did not clear the error")
	}

	env.(evaluator).Eval(`throw 42`, "t.js")
	exc, st := env.GetUnhandledError()
	if st != abi.OK {
		t.Fatalf("GetUnhandledError = %v", st)
	}
	if bits, _ := env.Unbox(abi.KindInt, exc); bits != 42 {
		t.Fatalf("thrown value = %d", bits)
	}
	if _, st := env.GetUnhandledError(); st != abi.NotFound {
		t.Fatalf("second GetUnhandledError = %v", st)
	}

	if st := env.ThrowError(str(t, env, "x")); st != abi.OK {
		t.Fatalf("ThrowError = %v", st)
	}
	env.ResetError()
	if ok, _ := env.ExistUnhandledError(); ok {
		t.Fatal("ResetError did not clear the error")
	}
}

func TestLocalScopes(t *testing.T) {
	vm, env := newEnv(t)
	type counter interface{ LocalCount() int }

	base := env.(counter).LocalCount()
	if st := env.CreateLocalScope(8); st != abi.OK {
		t.Fatalf("CreateLocalScope = %v", st)
	}
	r := str(t, env, "scoped")
	g, st := env.GlobalReferenceCreate(r)
	if st != abi.OK {
		t.Fatalf("GlobalReferenceCreate = %v", st)
	}
	env.Null()
	if got := env.(counter).LocalCount(); got != base+2 {
		t.Fatalf("locals in scope = %d, want %d", got, base+2)
	}
	if st := env.DestroyLocalScope(); st != abi.OK {
		t.Fatalf("DestroyLocalScope = %v", st)
	}
	if got := env.(counter).LocalCount(); got != base {
		t.Fatalf("locals after scope = %d, want %d", got, base)
	}
	if _, st := env.IsNull(r); st != abi.IncorrectRef {
		t.Fatalf("stale local = %v, want incorrect ref", st)
	}
	if n, st := env.StringGetUTF8Size(g); st != abi.OK || n != len("scoped") {
		t.Fatalf("global ref after scope = %d, %v", n, st)
	}
	if vm.GlobalCount() != 1 {
		t.Fatalf("GlobalCount = %d", vm.GlobalCount())
	}
	if st := env.GlobalReferenceDelete(g); st != abi.OK {
		t.Fatalf("GlobalReferenceDelete = %v", st)
	}
	if st := env.GlobalReferenceDelete(g); st != abi.IncorrectRef {
		t.Fatalf("second delete = %v", st)
	}
	if vm.GlobalCount() != 0 {
		t.Fatalf("GlobalCount = %d", vm.GlobalCount())
	}
	if st := env.DestroyLocalScope(); st != abi.InvalidArgs {
		t.Fatalf("unbalanced DestroyLocalScope = %v", st)
	}
}

func TestBindNativeFunctions(t *testing.T) {
	_, env := newEnv(t)
	eval(t, env, `class Calc { base() { return 10; } }`)
	cls, _ := env.FindClass("Calc")

	add := func(env abi.Env, this abi.Ref, args []abi.Ref) abi.Ref {
		a, _ := env.Unbox(abi.KindDouble, args[0])
		b, _ := env.Unbox(abi.KindDouble, args[1])
		r, _ := env.Box(abi.KindDouble, math.Float64bits(math.Float64frombits(a)+math.Float64frombits(b)))
		return r
	}
	twice := func(env abi.Env, this abi.Ref, args []abi.Ref) abi.Ref {
		base, _ := env.CallMethodByName(this, "base")
		a, _ := env.Unbox(abi.KindInt, base)
		r, _ := env.Box(abi.KindInt, uint64(int64(a)*2))
		return r
	}
	fail := func(env abi.Env, this abi.Ref, args []abi.Ref) abi.Ref {
		errCls, _ := env.FindClass("Error")
		msg, _ := env.StringNewUTF8("bad input")
		exc, _ := env.NewObject(errCls, msg)
		env.ThrowError(exc)
		return 0
	}
	st := env.BindNativeFunctions(cls, []abi.NativeFunction{
		{Name: "add", Static: true, Fn: add},
		{Name: "twice", Fn: twice},
		{Name: "fail", Static: true, Fn: fail},
	})
	if st != abi.OK {
		t.Fatalf("BindNativeFunctions = %v", st)
	}

	sum := eval(t, env, `Calc.add(2, 3).value`)
	if bits, _ := env.Unbox(abi.KindDouble, sum); math.Float64frombits(bits) != 5 {
		t.Fatalf("add = %v", math.Float64frombits(bits))
	}
	tw := eval(t, env, `new Calc().twice()`)
	if bits, _ := env.Unbox(abi.KindInt, tw); bits != 20 {
		t.Fatalf("twice = %d", bits)
	}
	caught := eval(t, env, `(() => { try { Calc.fail(); return "none"; } catch (e) { return e.message; } })()`)
	if n, _ := env.StringGetUTF8Size(caught); n != len("bad input") {
		t.Fatalf("caught message size = %d", n)
	}
	if _, st := env.(evaluator).Eval(`Calc.fail()`, "t.js"); st != abi.PendingError {
		t.Fatalf("uncaught native error = %v", st)
	}
	env.ResetError()

	if st := env.BindNativeFunctions(cls, []abi.NativeFunction{{Name: "base", Fn: twice}}); st != abi.AlreadyBinded {
		t.Fatalf("rebinding base = %v, want already bound", st)
	}
}

func TestFindMethods(t *testing.T) {
	_, env := newEnv(t)
	eval(t, env, `
		class Greeter {
			constructor(name) { this.name = name; }
			greet(p) { return p + this.name; }
			static make(n) { return new Greeter(n); }
		}
	`)
	cls, _ := env.FindClass("Greeter")
	factory, st := env.FindStaticMethod(cls, "make")
	if st != abi.OK {
		t.Fatalf("FindStaticMethod = %v", st)
	}
	obj, st := env.CallStaticMethod(cls, factory, str(t, env, "bob"))
	if st != abi.OK {
		t.Fatalf("CallStaticMethod = %v", st)
	}
	greet, st := env.FindMethod(cls, "greet")
	if st != abi.OK {
		t.Fatalf("FindMethod = %v", st)
	}
	out, st := env.CallMethod(obj, greet, str(t, env, "hi "))
	if st != abi.OK {
		t.Fatalf("CallMethod = %v", st)
	}
	if n, _ := env.StringGetUTF8Size(out); n != len("hi bob") {
		t.Fatalf("greet size = %d", n)
	}
	if _, st := env.FindMethod(cls, "missing"); st != abi.NotFound {
		t.Fatalf("FindMethod(missing) = %v", st)
	}
}
