package ffibridge

import (
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
)

// Kind is the shape of a Value or Type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindF64
	KindChar
	KindString
	KindUnit
	KindOption
	KindSeq
	KindStream
	KindMap
	KindStruct
	KindEnum
	KindBytes
	KindTypedArray
	KindRef

	// Present only so they can be rejected.
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindI128
)

var valueKindNames = [...]string{
	KindInvalid:    "invalid",
	KindBool:       "bool",
	KindI8:         "i8",
	KindI16:        "i16",
	KindI32:        "i32",
	KindI64:        "i64",
	KindF32:        "f32",
	KindF64:        "f64",
	KindChar:       "char",
	KindString:     "string",
	KindUnit:       "unit",
	KindOption:     "option",
	KindSeq:        "seq",
	KindStream:     "stream",
	KindMap:        "map",
	KindStruct:     "struct",
	KindEnum:       "enum",
	KindBytes:      "bytes",
	KindTypedArray: "typedarray",
	KindRef:        "ref",
	KindU8:         "u8",
	KindU16:        "u16",
	KindU32:        "u32",
	KindU64:        "u64",
	KindU128:       "u128",
	KindI128:       "i128",
}

func (k Kind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Unsupported reports whether the foreign runtime has no representation
// for k.
func (k Kind) Unsupported() bool { return k >= KindU8 && k <= KindI128 }

// Field is a named struct member.
type Field struct {
	Name  string
	Value Value
}

// Entry is a map association.
type Entry struct {
	Key   Value
	Value Value
}

// Value is a native typed value. Kind selects which fields are meaningful;
// build values with the constructors rather than by hand.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64   // i8 through i64
	Uint  uint64  // unsigned kinds and the low half of 128-bit kinds
	Hi    uint64  // high half of 128-bit kinds
	Float float64 // f32 and f64
	Char  Char
	Str   string

	// Name is the class of a struct or the enum type of an enum.
	Name string
	// Variant and Index identify an enum variant. Index is -1 when unknown.
	Variant string
	Index   int

	// Elems holds sequence items, and the payload of an option or enum
	// variant as a single element.
	Elems   []Value
	Fields  []Field
	Entries []Entry
	Stream  iter.Seq[Value]

	// Bytes holds raw buffer contents. For typed arrays they are the
	// elements in host byte order.
	Bytes  []byte
	Buffer BufferKind

	Ref Ref
}

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func I8(i int8) Value { return Value{Kind: KindI8, Int: int64(i)} }
func I16(i int16) Value { return Value{Kind: KindI16, Int: int64(i)} }
func I32(i int32) Value { return Value{Kind: KindI32, Int: int64(i)} }
func I64(i int64) Value { return Value{Kind: KindI64, Int: i} }
func F32(f float32) Value { return Value{Kind: KindF32, Float: float64(f)} }
func F64(f float64) Value { return Value{Kind: KindF64, Float: f} }
func CharValue(c Char) Value { return Value{Kind: KindChar, Char: c} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }
func RefValue(r Ref) Value { return Value{Kind: KindRef, Ref: r} }
func U8(u uint8) Value { return Value{Kind: KindU8, Uint: uint64(u)} }
func U16(u uint16) Value { return Value{Kind: KindU16, Uint: uint64(u)} }
func U32(u uint32) Value { return Value{Kind: KindU32, Uint: uint64(u)} }
func U64(u uint64) Value { return Value{Kind: KindU64, Uint: u} }
func U128(hi, lo uint64) Value { return Value{Kind: KindU128, Hi: hi, Uint: lo} }
func I128(hi, lo uint64) Value { return Value{Kind: KindI128, Hi: hi, Uint: lo} }

// Unit is the explicit null value.
func Unit() Value { return Value{Kind: KindUnit} }

// None is an absent option.
func None() Value { return Value{Kind: KindOption} }

// Some is a present option.
func Some(v Value) Value { return Value{Kind: KindOption, Elems: []Value{v}} }

// Seq is a sequence of known length.
func Seq(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindSeq, Elems: items}
}

// Stream is a sequence without a known length. It can be described but
// not serialized.
func Stream(seq iter.Seq[Value]) Value { return Value{Kind: KindStream, Stream: seq} }

// Map is a key-unique association. Entry order carries no meaning.
func Map(entries ...Entry) Value { return Value{Kind: KindMap, Entries: entries} }

// Struct is an instance of the foreign class name with fields set in order.
func Struct(class string, fields ...Field) Value {
	return Value{Kind: KindStruct, Name: class, Fields: fields}
}

// EnumUnit is the item variant of the foreign enum name.
func EnumUnit(enum, variant string) Value {
	return Value{Kind: KindEnum, Name: enum, Variant: variant, Index: -1}
}

// EnumValue is a variant carrying payload. The payload is written as is,
// without a tag.
func EnumValue(enum, variant string, payload Value) Value {
	return Value{Kind: KindEnum, Name: enum, Variant: variant, Index: -1, Elems: []Value{payload}}
}

// IsSome reports whether an option value is present.
func (v Value) IsSome() bool { return v.Kind == KindOption && len(v.Elems) == 1 }

// Payload returns the element of an option or enum variant.
func (v Value) Payload() (Value, bool) {
	if len(v.Elems) == 1 && (v.Kind == KindOption || v.Kind == KindEnum) {
		return v.Elems[0], true
	}
	return Value{}, false
}

// Field returns the struct field called name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Lookup returns the map value whose key equals key.
func (v Value) Lookup(key Value) (Value, bool) {
	for _, e := range v.Entries {
		if e.Key.Equal(key) {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Equal compares two values structurally. Map entries are compared without
// regard to order, and streams are never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindI8, KindI16, KindI32, KindI64:
		return v.Int == o.Int
	case KindF32, KindF64:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	case KindChar:
		return v.Char == o.Char
	case KindString:
		return v.Str == o.Str
	case KindUnit, KindInvalid:
		return true
	case KindOption, KindSeq:
		return equalValues(v.Elems, o.Elems)
	case KindStream:
		return false
	case KindMap:
		if len(v.Entries) != len(o.Entries) {
			return false
		}
		for _, e := range v.Entries {
			ov, ok := o.Lookup(e.Key)
			if !ok || !ov.Equal(e.Value) {
				return false
			}
		}
		return true
	case KindStruct:
		if v.Name != o.Name || len(v.Fields) != len(o.Fields) {
			return false
		}
		for i := range v.Fields {
			if v.Fields[i].Name != o.Fields[i].Name || !v.Fields[i].Value.Equal(o.Fields[i].Value) {
				return false
			}
		}
		return true
	case KindEnum:
		return v.Name == o.Name && v.Variant == o.Variant && equalValues(v.Elems, o.Elems)
	case KindBytes:
		return string(v.Bytes) == string(o.Bytes)
	case KindTypedArray:
		return v.Buffer == o.Buffer && string(v.Bytes) == string(o.Bytes)
	case KindRef:
		return v.Ref == o.Ref
	default:
		return v.Uint == o.Uint && v.Hi == o.Hi
	}
}

func equalValues(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String renders v for humans.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.Kind {
	case KindBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	case KindI8, KindI16, KindI32, KindI64:
		b.WriteString(strconv.FormatInt(v.Int, 10))
		b.WriteString(v.Kind.String())
	case KindF32:
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 32))
		b.WriteString("f32")
	case KindF64:
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindChar:
		if r := rune(v.Char); r < 0xD800 || r > 0xDFFF {
			b.WriteString(strconv.QuoteRune(r))
		} else {
			fmt.Fprintf(b, "'\\u%04x'", v.Char)
		}
	case KindString:
		b.WriteString(strconv.Quote(v.Str))
	case KindUnit:
		b.WriteString("null")
	case KindOption:
		if !v.IsSome() {
			b.WriteString("None")
			return
		}
		b.WriteString("Some(")
		v.Elems[0].format(b)
		b.WriteByte(')')
	case KindSeq:
		b.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			e.format(b)
		}
		b.WriteByte(']')
	case KindStream:
		b.WriteString("stream[...]")
	case KindMap:
		b.WriteByte('{')
		for i, e := range v.Entries {
			if i > 0 {
				b.WriteString(", ")
			}
			e.Key.format(b)
			b.WriteString(": ")
			e.Value.format(b)
		}
		b.WriteByte('}')
	case KindStruct:
		b.WriteString(v.Name)
		b.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			f.Value.format(b)
		}
		b.WriteByte('}')
	case KindEnum:
		if v.Name != "" {
			b.WriteString(v.Name)
			b.WriteByte('.')
		}
		b.WriteString(v.Variant)
		if p, ok := v.Payload(); ok {
			b.WriteByte('(')
			p.format(b)
			b.WriteByte(')')
		}
	case KindBytes:
		fmt.Fprintf(b, "bytes(%d)%v", len(v.Bytes), v.Bytes)
	case KindTypedArray:
		b.WriteString(v.Buffer.ClassName())
		b.WriteString(formatTypedElements(v))
	case KindRef:
		b.WriteString(v.Ref.String())
	case KindU8, KindU16, KindU32, KindU64:
		b.WriteString(strconv.FormatUint(v.Uint, 10))
		b.WriteString(v.Kind.String())
	case KindU128, KindI128:
		fmt.Fprintf(b, "0x%016x%016x%s", v.Hi, v.Uint, v.Kind)
	default:
		b.WriteString("<invalid>")
	}
}
