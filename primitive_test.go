package ffibridge

import (
	"errors"
	"math"
	"testing"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

func boxRoundTrip[T Primitive](t *testing.T, env *Env, v T, class string) {
	t.Helper()
	r, err := Box(env, v)
	if err != nil {
		t.Fatalf("Box(%v) error = %v", v, err)
	}
	c, err := env.FindClass(class)
	if err != nil {
		t.Fatalf("FindClass(%s) error = %v", class, err)
	}
	if ok, err := env.InstanceOf(r, c); err != nil || !ok {
		t.Errorf("Box(%v) is not a %s", v, class)
	}
	got, err := Unbox[T](env, r)
	if err != nil {
		t.Fatalf("Unbox() error = %v", err)
	}
	if got != v {
		t.Errorf("Unbox(Box(%v)) = %v", v, got)
	}
}

func TestBoxUnboxEachPrimitive(t *testing.T) {
	_, env := newTestVM(t)

	boxRoundTrip(t, env, true, "ffi.Boolean")
	boxRoundTrip(t, env, int8(math.MinInt8), "ffi.Byte")
	boxRoundTrip(t, env, int16(math.MaxInt16), "ffi.Short")
	boxRoundTrip(t, env, int32(-123456), "ffi.Int")
	boxRoundTrip(t, env, int64(math.MaxInt64), "ffi.Long")
	boxRoundTrip(t, env, float32(1.5), "ffi.Float")
	boxRoundTrip(t, env, math.Pi, "ffi.Double")
	boxRoundTrip(t, env, Char('Z'), "ffi.Char")
}

func TestUnboxScriptPrimitives(t *testing.T) {
	vm, env := newTestVM(t)

	if v, err := Unbox[int32](env, mustEval(t, env, "41 + 1")); err != nil || v != 42 {
		t.Errorf("Unbox[int32](42) = %d, %v", v, err)
	}
	if v, err := Unbox[int64](env, mustEval(t, env, "9007199254740993n")); err != nil || v != 9007199254740993 {
		t.Errorf("Unbox[int64](bigint) = %d, %v", v, err)
	}
	if v, err := Unbox[Char](env, mustEval(t, env, `"é"`)); err != nil || v != 'é' {
		t.Errorf("Unbox[Char](string) = %d, %v", v, err)
	}

	bad := []struct {
		name string
		code string
		fn   func(*Env, Ref) error
	}{
		{"fraction", "1.5", func(env *Env, r Ref) error { _, err := Unbox[int32](env, r); return err }},
		{"overflow", "300", func(env *Env, r Ref) error { _, err := Unbox[int8](env, r); return err }},
		{"string as bool", `"true"`, func(env *Env, r Ref) error { _, err := Unbox[bool](env, r); return err }},
		{"wrong box", "new ffi.Short(1)", func(env *Env, r Ref) error { _, err := Unbox[int32](env, r); return err }},
		{"null", "null", func(env *Env, r Ref) error { _, err := Unbox[float64](env, r); return err }},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			env := subtestEnv(t, vm)
			err := tt.fn(env, mustEval(t, env, tt.code))
			if !errors.Is(err, ErrAccess) {
				t.Fatalf("error = %v, want ErrAccess", err)
			}
			if StatusOf(err) != abi.InvalidType {
				t.Errorf("status = %v, want %v", StatusOf(err), abi.InvalidType)
			}
		})
	}
}

func TestPropertiesAndFields(t *testing.T) {
	_, env := newTestVM(t)
	obj := mustEval(t, env, "({ count: 3, ratio: new ffi.Double(0.25) })")

	if v, err := GetProperty[int32](env, obj, "count"); err != nil || v != 3 {
		t.Errorf("GetProperty(count) = %d, %v", v, err)
	}
	if v, err := GetField[float64](env, obj, "ratio"); err != nil || v != 0.25 {
		t.Errorf("GetField(ratio) = %v, %v", v, err)
	}

	if err := SetProperty(env, obj, "flag", true); err != nil {
		t.Fatalf("SetProperty(flag) error = %v", err)
	}
	if v, err := GetField[bool](env, obj, "flag"); err != nil || !v {
		t.Errorf("GetField(flag) = %v, %v", v, err)
	}

	if err := SetField(env, obj, "missing", int16(1)); !errors.Is(err, abi.NotFound) {
		t.Errorf("SetField(missing) error = %v, want NotFound", err)
	}
	if err := SetField(env, obj, "count", int16(9)); err != nil {
		t.Fatalf("SetField(count) error = %v", err)
	}
	if v, err := GetProperty[int16](env, obj, "count"); err != nil || v != 9 {
		t.Errorf("GetProperty(count) = %d, %v", v, err)
	}

	_, err := GetProperty[bool](env, obj, "count")
	var e *Error
	if !errors.As(err, &e) || e.Op != "get property" || e.Name != "count" {
		t.Errorf("GetProperty mismatch error = %v", err)
	}
}

func TestPrimitiveArrays(t *testing.T) {
	_, env := newTestVM(t)

	vals := []float32{1, 2.5, -3}
	arr, err := NewPrimitiveArray(env, vals)
	if err != nil {
		t.Fatalf("NewPrimitiveArray() error = %v", err)
	}
	n, err := env.ArrayLength(arr)
	if err != nil || n != len(vals) {
		t.Fatalf("ArrayLength() = %d, %v", n, err)
	}
	for i, want := range vals {
		got, err := ArrayGetPrimitive[float32](env, arr, i)
		if err != nil || got != want {
			t.Errorf("element %d = %v, %v; want %v", i, got, err, want)
		}
	}
	if err := ArraySetPrimitive(env, arr, 1, float32(7)); err != nil {
		t.Fatalf("ArraySetPrimitive() error = %v", err)
	}
	if got, _ := ArrayGetPrimitive[float32](env, arr, 1); got != 7 {
		t.Errorf("element 1 = %v, want 7", got)
	}
	if _, err := ArrayGetPrimitive[float32](env, arr, 10); err == nil {
		t.Error("ArrayGetPrimitive out of range succeeded")
	}
}
