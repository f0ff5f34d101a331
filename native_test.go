package ffibridge

import (
	"errors"
	"strings"
	"testing"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

func TestBindNativeFunctionsOnClass(t *testing.T) {
	_, env := newTestVM(t)
	class := mustEval(t, env, `globalThis.Counter = class Counter {
		constructor() { this.n = 0; }
	}; Counter`)

	err := env.BindNativeFunctions(class,
		NativeFunc{
			Name: "add",
			Fn: func(env *Env, this Ref, args []Ref) (Ref, error) {
				by, err := Unbox[int32](env, args[0])
				if err != nil {
					return 0, err
				}
				n, err := GetField[int32](env, this, "n")
				if err != nil {
					return 0, err
				}
				if err := SetField(env, this, "n", n+by); err != nil {
					return 0, err
				}
				return this, nil
			},
		},
		NativeFunc{
			Name:   "kind",
			Static: true,
			Fn: func(env *Env, _ Ref, _ []Ref) (Ref, error) {
				return env.NewString("counter")
			},
		},
	)
	if err != nil {
		t.Fatalf("BindNativeFunctions() error = %v", err)
	}

	got := evalString(t, env, `new Counter().add(2).add(3).n + ":" + Counter.kind()`)
	if got != "5:counter" {
		t.Errorf("result = %q, want 5:counter", got)
	}

	err = env.BindNativeFunctions(class, NativeFunc{Name: "add", Fn: EntryVoid(nil, nil)})
	if !errors.Is(err, ErrEnvironment) || StatusOf(err) != abi.AlreadyBinded {
		t.Errorf("rebinding error = %v, want AlreadyBinded", err)
	}
}

func bindMath(t *testing.T, env *Env) {
	t.Helper()
	ns := mustEval(t, env, "globalThis.native = {}; native")
	err := env.BindNativeFunctions(ns,
		NativeFunc{
			Name: "repeat",
			Fn: EntryValue([]*Type{StringType, I32Type}, func(_ *Env, args []Value) (Value, error) {
				if args[1].Int < 0 {
					return Value{}, NewBusinessError(CodeParameter, "negative count")
				}
				return String(strings.Repeat(args[0].Str, int(args[1].Int))), nil
			}),
		},
		NativeFunc{
			Name: "sum",
			Fn: EntryPrimitive([]*Type{SeqType(F64Type)}, func(_ *Env, args []Value) (float64, error) {
				var s float64
				for _, e := range args[0].Elems {
					s += e.Float
				}
				if s > 100 {
					return 0, PermissionError
				}
				return s, nil
			}),
		},
		NativeFunc{
			Name: "store",
			Fn: EntryVoid([]*Type{MustParseType("struct Object{key:string}")}, func(env *Env, args []Value) error {
				key, _ := args[0].Field("key")
				r, err := env.NewString(key.Str)
				if err != nil {
					return err
				}
				g, err := env.FindNamespace("native")
				if err != nil {
					return err
				}
				return env.SetPropertyRef(g, "stored", r)
			}),
		},
		NativeFunc{
			Name: "explode",
			Fn: func(*Env, Ref, []Ref) (Ref, error) {
				panic("kaboom")
			},
		},
	)
	if err != nil {
		t.Fatalf("BindNativeFunctions() error = %v", err)
	}
}

func TestNativeEntries(t *testing.T) {
	vm, env := newTestVM(t)
	bindMath(t, env)

	tests := []struct {
		name string
		code string
		want string
	}{
		{"value", `native.repeat("ab", 3)`, "ababab"},
		{"primitive", `String(native.sum([1.5, 2.5]))`, "4"},
		{"void", `native.store({ key: "k" }); native.stored`, "k"},
		{
			"business error",
			`try { native.repeat("a", -1); "no throw" } catch (e) { e.name + " " + e.code + " " + e.message }`,
			"BusinessError 401 negative count",
		},
		{
			"primitive default on error",
			`var r; try { native.sum([60, 50]); } catch (e) { r = e.code; } String(r)`,
			"201",
		},
		{
			"missing argument",
			`try { native.repeat("a"); "no throw" } catch (e) { e.code + " " + e.message }`,
			"401 Parameter error",
		},
		{
			"wrong argument type",
			`try { native.repeat(1, 2); "no throw" } catch (e) { String(e.code) }`,
			"401",
		},
		{
			"panic",
			`try { native.explode(); "no throw" } catch (e) { e.code + " " + e.message }`,
			"-1 panic: kaboom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := subtestEnv(t, vm)
			if got := evalString(t, env, tt.code); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestNativeErrorReachesCaller(t *testing.T) {
	_, env := newTestVM(t)
	bindMath(t, env)

	fn := mustEval(t, env, `(function () { return native.repeat("x", -2); })`)
	if _, err := env.Callback(fn).Call(); !errors.Is(err, ErrAccess) {
		t.Fatalf("Call() error = %v, want ErrAccess", err)
	}
	exc, err := env.GetUnhandledError()
	if err != nil {
		t.Fatalf("GetUnhandledError() error = %v", err)
	}
	class, err := env.FindClass("ffi.BusinessError")
	if err != nil {
		t.Fatalf("FindClass() error = %v", err)
	}
	if ok, _ := env.InstanceOf(exc, class); !ok {
		t.Error("thrown value is not an ffi.BusinessError")
	}
	if code, _ := GetProperty[int32](env, exc, "code"); code != CodeParameter {
		t.Errorf("code = %d, want %d", code, CodeParameter)
	}
}

func TestNativeRethrowsScriptException(t *testing.T) {
	_, env := newTestVM(t)
	ns := mustEval(t, env, "globalThis.native = {}; native")
	err := env.BindNativeFunctions(ns, NativeFunc{
		Name: "apply",
		Fn: func(env *Env, _ Ref, args []Ref) (Ref, error) {
			return env.CallFunction(args[0])
		},
	})
	if err != nil {
		t.Fatalf("BindNativeFunctions() error = %v", err)
	}

	got := evalString(t, env, `(function () {
		try { native.apply(() => { throw new RangeError("inner"); }); }
		catch (e) { return e.name + " " + e.message; }
		return "no throw";
	})()`)
	if want := "RangeError inner"; got != want {
		t.Errorf("caught %q, want %q", got, want)
	}
	if got := evalString(t, env, `String(native.apply(() => 7))`); got != "7" {
		t.Errorf("apply = %q, want 7", got)
	}
}
