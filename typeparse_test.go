package ffibridge

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		src  string
		want *Type
	}{
		{"i32", I32Type},
		{" string ", StringType},
		{"option<f64>", OptionType(F64Type)},
		{"seq<seq<bool>>", SeqType(SeqType(BoolType))},
		{"map<string, i64>", MapType(StringType, I64Type)},
		{"int16array", TypedArrayType(BufferInt16)},
		{"@Uint8Array", TypedArrayType(BufferUint8)},
		{"@AniRef", RefType},
		{"stream<i8>", &Type{Kind: KindStream, Elem: I8Type}},
		{
			"struct app.Item{id:i32, name:option<string>}",
			StructType("app.Item", FieldOf("id", I32Type), FieldOf("name", OptionType(StringType))),
		},
		{
			"enum Color{Red,Green}",
			EnumType("Color", UnitVariant("Red"), UnitVariant("Green")),
		},
		{
			"enum{I32:i32, S:string, Null}",
			EnumType("", VariantOf("I32", I32Type), VariantOf("S", StringType), UnitVariant("Null")),
		},
		{"struct Über{ä:char}", StructType("Über", FieldOf("ä", CharType))},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ParseType(tt.src)
			if err != nil {
				t.Fatalf("ParseType() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseType() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	tests := []struct {
		src     string
		wantSub string
	}{
		{"", "expected identifier"},
		{"float", `unknown type "float"`},
		{"option<i32", `expected ">"`},
		{"map<i32>", `expected ","`},
		{"i32 i64", "after type"},
		{"struct S{a:i32,a:i64}", `duplicate field "a"`},
		{"enum E{}", "enum without variants"},
		{"enum E{A,A}", `duplicate variant "A"`},
		{"seq<#>", `found "#"`},
		{strings.Repeat("option<", 100) + "i32" + strings.Repeat(">", 100), "nested too deeply"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseType(tt.src)
			if err == nil {
				t.Fatal("ParseType() succeeded")
			}
			if !errors.Is(err, ErrConversion) {
				t.Errorf("error = %v, want ErrConversion", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestMustParseTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParseType did not panic")
		}
	}()
	MustParseType("nope<")
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  *Type
		want string
	}{
		{MapType(StringType, SeqType(U8Type)), "map<string,seq<u8>>"},
		{StructType("P", FieldOf("x", F32Type)), "struct P{x:f32}"},
		{EnumType("", VariantOf("S", StringType), UnitVariant("Null")), "enum{S:string,Null}"},
		{TypedArrayType(BufferUint32), "uint32array"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func FuzzParseType(f *testing.F) {
	for _, seed := range []string{
		"i32",
		"option<seq<string>>",
		"map<i64,f64>",
		"struct a.B{x:i8,y:enum{A,B:bool}}",
		"enum E{X}",
		"@Int32Array",
		"seq<",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, src string) {
		typ, err := ParseType(src)
		if err != nil {
			return
		}
		again, err := ParseType(typ.String())
		if err != nil {
			t.Fatalf("ParseType(%q) of printed %q error = %v", typ.String(), src, err)
		}
		if diff := cmp.Diff(typ, again); diff != "" {
			t.Errorf("print/parse mismatch for %q (-first +second):\n%s", src, diff)
		}
	})
}
