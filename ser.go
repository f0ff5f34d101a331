package ffibridge

import (
	"unicode/utf16"
)

// Serialize builds the foreign form of v and returns a local reference to
// it. Unsupported values anywhere in v are rejected before any foreign call
// is made; any other failure aborts the walk, possibly leaving partially
// built foreign objects behind for the collector.
func Serialize(e *Env, v Value) (Ref, error) {
	if err := checkValue(v); err != nil {
		return 0, err
	}
	s := serializer{env: e}
	return s.write(v)
}

// serializer carries the buffer side channel of one descent level.
type serializer struct {
	env         *Env
	buffer      BufferKind
	passthrough bool
}

func checkValue(v Value) error {
	if v.Kind.Unsupported() {
		return unsupported(v.Kind.String())
	}
	switch v.Kind {
	case KindInvalid:
		return unsupported("invalid value")
	case KindStream:
		return ArrayWithoutLengthError
	case KindChar:
		if utf16.IsSurrogate(rune(v.Char)) {
			return newError(ConversionError, "serialize").detail("lone surrogate %#04x", v.Char).build()
		}
	case KindOption, KindSeq, KindEnum:
		for _, e := range v.Elems {
			if err := checkValue(e); err != nil {
				return err
			}
		}
	case KindMap:
		for _, e := range v.Entries {
			if err := checkValue(e.Key); err != nil {
				return err
			}
			if err := checkValue(e.Value); err != nil {
				return err
			}
		}
	case KindStruct:
		for _, f := range v.Fields {
			if err := checkValue(f.Value); err != nil {
				return err
			}
		}
	case KindTypedArray:
		if v.Buffer == BufferNone || v.Buffer > BufferUint32 {
			return newError(ConversionError, "serialize").detail("typed array without element kind").build()
		}
		if len(v.Bytes)%v.Buffer.ElemSize() != 0 {
			return newError(ConversionError, "serialize").name(v.Buffer.ClassName()).
				detail("%d bytes is not a whole number of elements", len(v.Bytes)).build()
		}
	}
	return nil
}

func (s serializer) write(v Value) (Ref, error) {
	e := s.env
	switch v.Kind {
	case KindBool:
		return Box(e, v.Bool)
	case KindI8:
		return Box(e, int8(v.Int))
	case KindI16:
		return Box(e, int16(v.Int))
	case KindI32:
		return Box(e, int32(v.Int))
	case KindI64:
		return Box(e, v.Int)
	case KindF32:
		return Box(e, float32(v.Float))
	case KindF64:
		return Box(e, v.Float)
	case KindChar:
		return Box(e, v.Char)
	case KindString:
		return e.NewString(v.Str)
	case KindUnit:
		return e.Null(), nil
	case KindOption:
		if !v.IsSome() {
			return e.Undefined(), nil
		}
		return serializer{env: e}.write(v.Elems[0])
	case KindSeq:
		return s.writeSeq(v.Elems)
	case KindMap:
		return s.writeMap(v.Entries)
	case KindStruct:
		return s.writeStruct(v)
	case KindEnum:
		return s.writeEnum(v)
	case KindBytes:
		return e.CreateArrayBuffer(v.Bytes)
	case KindTypedArray:
		return serializer{env: e, buffer: v.Buffer}.writeBuffer(v.Bytes)
	case KindRef:
		return serializer{env: e, passthrough: true}.writeRef(v.Ref)
	}
	return 0, unsupported(v.Kind.String())
}

func (s serializer) writeSeq(items []Value) (Ref, error) {
	e := s.env
	arr, err := e.NewArray(len(items))
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		r, err := serializer{env: e}.write(item)
		if err != nil {
			return 0, err
		}
		if err := e.ArraySet(arr, i, r); err != nil {
			return 0, err
		}
	}
	return arr, nil
}

// writeMap serializes each key to completion before its value.
func (s serializer) writeMap(entries []Entry) (Ref, error) {
	e := s.env
	rec, err := e.NewRecord()
	if err != nil {
		return 0, err
	}
	for _, ent := range entries {
		k, err := serializer{env: e}.write(ent.Key)
		if err != nil {
			return 0, err
		}
		v, err := serializer{env: e}.write(ent.Value)
		if err != nil {
			return 0, err
		}
		if err := e.SetRecord(rec, k, v); err != nil {
			return 0, err
		}
	}
	return rec, nil
}

func (s serializer) writeStruct(v Value) (Ref, error) {
	e := s.env
	class, err := e.FindClass(v.Name)
	if err != nil {
		return 0, err
	}
	obj, err := e.NewObject(class)
	if err != nil {
		return 0, err
	}
	for _, f := range v.Fields {
		r, err := serializer{env: e}.write(f.Value)
		if err != nil {
			return 0, err
		}
		if err := e.SetPropertyRef(obj, f.Name, r); err != nil {
			return 0, err
		}
	}
	return obj, nil
}

// writeEnum writes a unit variant as the enum's item and a payload variant
// as its payload alone.
func (s serializer) writeEnum(v Value) (Ref, error) {
	e := s.env
	if p, ok := v.Payload(); ok {
		return serializer{env: e}.write(p)
	}
	enum, err := e.FindEnum(v.Name)
	if err != nil {
		return 0, err
	}
	return e.EnumItemByName(enum, v.Variant)
}

// writeBuffer hands raw element bytes to the runtime as a typed array. An
// empty typed array is written as an empty untyped array.
func (s serializer) writeBuffer(raw []byte) (Ref, error) {
	e := s.env
	if len(raw) == 0 {
		// TODO: construct a zero-length array of s.buffer's class once
		// callers that test for the untyped form are migrated.
		return e.NewArray(0)
	}
	buf, err := e.CreateArrayBuffer(raw)
	if err != nil {
		return 0, err
	}
	class, err := e.FindClass(s.buffer.ClassName())
	if err != nil {
		return 0, err
	}
	return e.NewObject(class, buf)
}

func (s serializer) writeRef(r Ref) (Ref, error) {
	if !s.passthrough {
		return 0, unsupported("raw reference outside passthrough")
	}
	if r.IsNil() {
		return 0, newError(AccessError, "serialize").detail("nil reference").build()
	}
	return r, nil
}
