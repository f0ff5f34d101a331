package ffibridge

import (
	"math"
	"testing"
)

func TestValueString(t *testing.T) {
	color := EnumUnit("Color", "Red")
	tests := []struct {
		v    Value
		want string
	}{
		{Bool(false), "false"},
		{I8(-1), "-1i8"},
		{I64(42), "42i64"},
		{F32(1.5), "1.5f32"},
		{F64(0.25), "0.25"},
		{CharValue('a'), "'a'"},
		{CharValue(0xD800), `'\ud800'`},
		{String("hi\n"), `"hi\n"`},
		{Unit(), "null"},
		{None(), "None"},
		{Some(I32(1)), "Some(1i32)"},
		{Seq(Bool(true), Seq()), "[true, []]"},
		{Map(Entry{Key: String("a"), Value: I16(2)}), `{"a": 2i16}`},
		{Struct("P", Field{Name: "x", Value: F64(1)}), "P{x: 1}"},
		{color, "Color.Red"},
		{EnumValue("", "S", String("v")), `S("v")`},
		{Bytes([]byte{1, 2}), "bytes(2)[1 2]"},
		{TypedArrayOf([]int16{-1, 2}), "Int16Array[-1 2]"},
		{U32(7), "7u32"},
		{U128(0, 1), "0x00000000000000000000000000000001u128"},
		{Value{}, "<invalid>"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValueEqual(t *testing.T) {
	a := Map(
		Entry{Key: String("x"), Value: I32(1)},
		Entry{Key: String("y"), Value: I32(2)},
	)
	b := Map(
		Entry{Key: String("y"), Value: I32(2)},
		Entry{Key: String("x"), Value: I32(1)},
	)
	if !a.Equal(b) {
		t.Error("maps differing only in order are not equal")
	}

	indexed := EnumUnit("Color", "Red")
	indexed.Index = 0
	if !indexed.Equal(EnumUnit("Color", "Red")) {
		t.Error("enum equality depends on Index")
	}
	if !F64(math.NaN()).Equal(F64(math.NaN())) {
		t.Error("NaN is not equal to itself")
	}
	if I32(1).Equal(I64(1)) {
		t.Error("values of different kinds are equal")
	}
	if Stream(nil).Equal(Stream(nil)) {
		t.Error("streams compare equal")
	}
}

func TestValueAccessors(t *testing.T) {
	s := Struct("P", Field{Name: "x", Value: I32(3)})
	if v, ok := s.Field("x"); !ok || v.Int != 3 {
		t.Errorf("Field(x) = %v, %v", v, ok)
	}
	if _, ok := s.Field("y"); ok {
		t.Error("Field(y) found a missing field")
	}

	m := Map(Entry{Key: I32(1), Value: String("one")})
	if v, ok := m.Lookup(I32(1)); !ok || v.Str != "one" {
		t.Errorf("Lookup(1) = %v, %v", v, ok)
	}
	if _, ok := m.Lookup(I64(1)); ok {
		t.Error("Lookup matched a key of another kind")
	}

	if p, ok := EnumValue("", "I32", I32(5)).Payload(); !ok || p.Int != 5 {
		t.Errorf("Payload() = %v, %v", p, ok)
	}
	if _, ok := EnumUnit("E", "A").Payload(); ok {
		t.Error("unit variant has a payload")
	}
	if !Some(Unit()).IsSome() || None().IsSome() {
		t.Error("IsSome mismatch")
	}
}
