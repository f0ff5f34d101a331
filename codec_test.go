package ffibridge

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeDecodeValue(t *testing.T) {
	nan := F64(math.NaN())
	tests := []struct {
		name string
		v    Value
	}{
		{"bool", Bool(true)},
		{"negative", I64(math.MinInt64)},
		{"float", F32(0.5)},
		{"nan", nan},
		{"char", CharValue('ß')},
		{"string", String("héllo")},
		{"unit", Unit()},
		{"none", None()},
		{"some", Some(I8(-3))},
		{"empty seq", Seq()},
		{"nested", Seq(Seq(I16(1)), Seq())},
		{"map", Map(Entry{Key: String("k"), Value: Some(F64(2))})},
		{"struct", Struct("app.Item", Field{Name: "id", Value: I32(7)}, Field{Name: "tags", Value: Seq(String("a"))})},
		{"enum", EnumUnit("Color", "Red")},
		{"payload enum", EnumValue("", "S", String("x"))},
		{"bytes", Bytes([]byte{1, 2, 3})},
		{"empty bytes", Bytes(nil)},
		{"typed array", TypedArrayOf([]uint16{1, 65535})},
		{"unsigned", U64(math.MaxUint64)},
		{"wide", I128(1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeValue(tt.v)
			if err != nil {
				t.Fatalf("EncodeValue() error = %v", err)
			}
			got, err := DecodeValue(data)
			if err != nil {
				t.Fatalf("DecodeValue() error = %v", err)
			}
			if diff := cmp.Diff(tt.v, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeValueShapes(t *testing.T) {
	data, err := EncodeValue(Seq())
	if err != nil {
		t.Fatalf("EncodeValue() error = %v", err)
	}
	got, err := DecodeValue(data)
	if err != nil {
		t.Fatalf("DecodeValue() error = %v", err)
	}
	if got.Elems == nil {
		t.Error("empty sequence decoded with nil elements")
	}

	data, _ = EncodeValue(TypedArray(BufferInt32, nil))
	if got, _ = DecodeValue(data); got.Bytes == nil || got.Buffer != BufferInt32 {
		t.Errorf("empty typed array decoded as %#v", got)
	}
}

func TestEncodeValueCopiesBuffers(t *testing.T) {
	raw := []byte{9, 8, 7}
	data, err := EncodeValue(Bytes(raw))
	if err != nil {
		t.Fatalf("EncodeValue() error = %v", err)
	}
	raw[0] = 0
	got, _ := DecodeValue(data)
	if !slices.Equal(got.Bytes, []byte{9, 8, 7}) {
		t.Errorf("decoded bytes = %v, want [9 8 7]", got.Bytes)
	}
}

func TestEncodeValueRejects(t *testing.T) {
	tests := []struct {
		name   string
		v      Value
		target error
	}{
		{"stream", Stream(slices.Values([]Value{I32(1)})), ArrayWithoutLengthError},
		{"ref", RefValue(RefFromHandle(3)), ErrUnsupportedType},
		{"nested ref", Seq(I32(1), RefValue(RefFromHandle(3))), ErrUnsupportedType},
		{"stream in map", Map(Entry{Key: String("s"), Value: Stream(nil)}), ArrayWithoutLengthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeValue(tt.v); !errors.Is(err, tt.target) {
				t.Errorf("EncodeValue() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestDecodeValueRejects(t *testing.T) {
	future, err := msgpack.Marshal(map[string]any{"version": snapshotVersion + 1, "value": map[string]any{"k": 1}})
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string][]byte{
		"garbage": {0xc1},
		"empty":   nil,
		"version": future,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeValue(data); !errors.Is(err, ErrConversion) {
				t.Errorf("DecodeValue() error = %v, want ErrConversion", err)
			}
		})
	}
}
