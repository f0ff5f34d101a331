package ffibridge

import (
	"strings"
)

// Type describes the native shape Deserialize reconstructs.
type Type struct {
	Kind Kind

	// Elem is the element of an option, seq or stream.
	Elem *Type
	// Key and Val describe a map.
	Key, Val *Type

	// Name is a struct's class or an enum's foreign type. An enum without a
	// name is resolved by probing each variant's class.
	Name     string
	Fields   []FieldType
	Variants []VariantType

	Buffer BufferKind
}

// FieldType is a struct member.
type FieldType struct {
	Name string
	Type *Type
}

// VariantType is an enum variant. A nil Type marks a unit variant.
type VariantType struct {
	Name string
	Type *Type
}

// Scalar and leaf types.
var (
	BoolType   = &Type{Kind: KindBool}
	I8Type     = &Type{Kind: KindI8}
	I16Type    = &Type{Kind: KindI16}
	I32Type    = &Type{Kind: KindI32}
	I64Type    = &Type{Kind: KindI64}
	F32Type    = &Type{Kind: KindF32}
	F64Type    = &Type{Kind: KindF64}
	CharType   = &Type{Kind: KindChar}
	StringType = &Type{Kind: KindString}
	UnitType   = &Type{Kind: KindUnit}
	BytesType  = &Type{Kind: KindBytes}
	RefType    = &Type{Kind: KindRef}

	U8Type   = &Type{Kind: KindU8}
	U16Type  = &Type{Kind: KindU16}
	U32Type  = &Type{Kind: KindU32}
	U64Type  = &Type{Kind: KindU64}
	U128Type = &Type{Kind: KindU128}
	I128Type = &Type{Kind: KindI128}
)

func OptionType(elem *Type) *Type { return &Type{Kind: KindOption, Elem: elem} }
func SeqType(elem *Type) *Type { return &Type{Kind: KindSeq, Elem: elem} }
func MapType(key, val *Type) *Type {
	return &Type{Kind: KindMap, Key: key, Val: val}
}

// StructType describes an instance of class whose fields are read in the
// given order.
func StructType(class string, fields ...FieldType) *Type {
	return &Type{Kind: KindStruct, Name: class, Fields: fields}
}

// EnumType describes a foreign enum. With an empty name the variant is found
// by instance-of probing.
func EnumType(name string, variants ...VariantType) *Type {
	return &Type{Kind: KindEnum, Name: name, Variants: variants}
}

func TypedArrayType(kind BufferKind) *Type {
	return &Type{Kind: KindTypedArray, Buffer: kind}
}

func FieldOf(name string, t *Type) FieldType { return FieldType{Name: name, Type: t} }
func VariantOf(name string, t *Type) VariantType { return VariantType{Name: name, Type: t} }
func UnitVariant(name string) VariantType { return VariantType{Name: name} }

// checkSupported fails on the first unsigned or 128-bit type in t.
func (t *Type) checkSupported() error {
	if t == nil {
		return newError(UnsupportedTypeError, "").detail("nil type").build()
	}
	if t.Kind.Unsupported() {
		return unsupported(t.Kind.String())
	}
	switch t.Kind {
	case KindInvalid:
		return unsupported("invalid type")
	case KindStream:
		return ArrayWithoutLengthError
	case KindOption, KindSeq:
		return t.Elem.checkSupported()
	case KindMap:
		if err := t.Key.checkSupported(); err != nil {
			return err
		}
		return t.Val.checkSupported()
	case KindStruct:
		for _, f := range t.Fields {
			if err := f.Type.checkSupported(); err != nil {
				return err
			}
		}
	case KindEnum:
		for _, v := range t.Variants {
			if v.Type == nil {
				continue
			}
			if err := v.Type.checkSupported(); err != nil {
				return err
			}
		}
	}
	return nil
}

// String prints t in the syntax ParseType reads.
func (t *Type) String() string {
	var b strings.Builder
	t.format(&b)
	return b.String()
}

func (t *Type) format(b *strings.Builder) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case KindOption, KindSeq, KindStream:
		b.WriteString(t.Kind.String())
		b.WriteByte('<')
		t.Elem.format(b)
		b.WriteByte('>')
	case KindMap:
		b.WriteString("map<")
		t.Key.format(b)
		b.WriteByte(',')
		t.Val.format(b)
		b.WriteByte('>')
	case KindStruct:
		b.WriteString("struct ")
		b.WriteString(t.Name)
		b.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Name)
			b.WriteByte(':')
			f.Type.format(b)
		}
		b.WriteByte('}')
	case KindEnum:
		b.WriteString("enum")
		if t.Name != "" {
			b.WriteByte(' ')
			b.WriteString(t.Name)
		}
		b.WriteByte('{')
		for i, v := range t.Variants {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(v.Name)
			if v.Type != nil {
				b.WriteByte(':')
				v.Type.format(b)
			}
		}
		b.WriteByte('}')
	case KindTypedArray:
		b.WriteString(t.Buffer.String())
	default:
		b.WriteString(t.Kind.String())
	}
}
