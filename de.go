package ffibridge

import (
	"unicode/utf16"
)

// Deserialize reads r as a value of type t. Dispatch follows t, not the
// runtime type of r; a foreign value of the wrong shape surfaces as an
// access error from the environment. Byte buffers and typed arrays borrow
// foreign memory and are only valid in the current local scope.
func Deserialize(e *Env, r Ref, t *Type) (Value, error) {
	if err := t.checkSupported(); err != nil {
		return Value{}, err
	}
	d := deserializer{env: e}
	return d.read(r, t)
}

// deserializer mirrors serializer.
type deserializer struct {
	env         *Env
	buffer      BufferKind
	passthrough bool
}

func (d deserializer) read(r Ref, t *Type) (Value, error) {
	e := d.env
	switch t.Kind {
	case KindBool:
		b, err := Unbox[bool](e, r)
		return Bool(b), err
	case KindI8:
		i, err := Unbox[int8](e, r)
		return I8(i), err
	case KindI16:
		i, err := Unbox[int16](e, r)
		return I16(i), err
	case KindI32:
		i, err := Unbox[int32](e, r)
		return I32(i), err
	case KindI64:
		i, err := Unbox[int64](e, r)
		return I64(i), err
	case KindF32:
		f, err := Unbox[float32](e, r)
		return F32(f), err
	case KindF64:
		f, err := Unbox[float64](e, r)
		return F64(f), err
	case KindChar:
		return d.readChar(r)
	case KindString:
		s, err := e.GetString(r)
		return String(s), err
	case KindUnit:
		return d.readUnit(r)
	case KindOption:
		return d.readOption(r, t.Elem)
	case KindSeq:
		return d.readSeq(r, t.Elem)
	case KindMap:
		return d.readMap(r, t.Key, t.Val)
	case KindStruct:
		return d.readStruct(r, t)
	case KindEnum:
		return d.readEnum(r, t)
	case KindBytes:
		b, err := e.ArrayBufferBytes(r)
		return Bytes(b), err
	case KindTypedArray:
		return deserializer{env: e, buffer: t.Buffer}.readBuffer(r)
	case KindRef:
		return deserializer{env: e, passthrough: true}.readRef(r)
	}
	return Value{}, unsupported(t.Kind.String())
}

func (d deserializer) readChar(r Ref) (Value, error) {
	c, err := Unbox[Char](d.env, r)
	if err != nil {
		return Value{}, err
	}
	if utf16.IsSurrogate(rune(c)) {
		return Value{}, newError(ConversionError, "deserialize char").
			detail("lone surrogate %#04x", uint16(c)).build()
	}
	return CharValue(c), nil
}

func (d deserializer) readUnit(r Ref) (Value, error) {
	null, err := d.env.IsNull(r)
	if err != nil {
		return Value{}, err
	}
	if !null {
		return Value{}, newError(AccessError, "deserialize unit").name(r.String()).detail("value is not null").build()
	}
	return Unit(), nil
}

// readOption treats only undefined as absent. Null is a present value.
func (d deserializer) readOption(r Ref, elem *Type) (Value, error) {
	undef, err := d.env.IsUndefined(r)
	if err != nil {
		return Value{}, err
	}
	if undef {
		return None(), nil
	}
	v, err := deserializer{env: d.env}.read(r, elem)
	if err != nil {
		return Value{}, err
	}
	return Some(v), nil
}

func (d deserializer) readSeq(r Ref, elem *Type) (Value, error) {
	e := d.env
	n, err := e.ArrayLength(r)
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, 0, n)
	for i := range n {
		item, err := e.ArrayGet(r, i)
		if err != nil {
			return Value{}, err
		}
		v, err := deserializer{env: e}.read(item, elem)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	return Seq(items...), nil
}

func (d deserializer) readMap(r Ref, key, val *Type) (Value, error) {
	e := d.env
	it, err := e.RecordEntries(r)
	if err != nil {
		return Value{}, err
	}
	var entries []Entry
	for k, v := range it.All() {
		kv, err := deserializer{env: e}.read(k, key)
		if err != nil {
			return Value{}, err
		}
		vv, err := deserializer{env: e}.read(v, val)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Entry{Key: kv, Value: vv})
	}
	if err := it.Err(); err != nil {
		return Value{}, err
	}
	return Map(entries...), nil
}

// readStruct pulls fields one at a time in the declared order.
func (d deserializer) readStruct(r Ref, t *Type) (Value, error) {
	e := d.env
	fields := make([]Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		fr, err := e.GetPropertyRef(r, f.Name)
		if err != nil {
			return Value{}, err
		}
		v, err := deserializer{env: e}.read(fr, f.Type)
		if err != nil {
			return Value{}, newError(AccessError, "deserialize field").name(f.Name).
				status(StatusOf(err)).cause(err).build()
		}
		fields = append(fields, Field{Name: f.Name, Value: v})
	}
	return Struct(t.Name, fields...), nil
}

func (d deserializer) readEnum(r Ref, t *Type) (Value, error) {
	if t.Name != "" {
		return d.readNamedEnum(r, t)
	}
	return d.probeEnum(r, t)
}

// readNamedEnum resolves an item of a declared enum by its index.
func (d deserializer) readNamedEnum(r Ref, t *Type) (Value, error) {
	e := d.env
	enum, err := e.FindEnum(t.Name)
	if err != nil {
		return Value{}, err
	}
	ok, err := e.InstanceOf(r, enum)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, newError(VariantResolutionError, "deserialize enum").name(t.Name).
			detail("enum item not match enum class").build()
	}
	idx, err := e.EnumItemIndex(r)
	if err != nil {
		return Value{}, err
	}
	if idx < 0 || idx >= len(t.Variants) {
		return Value{}, newError(VariantResolutionError, "deserialize enum").name(t.Name).
			detail("item index %d outside %d variants", idx, len(t.Variants)).build()
	}
	v := EnumUnit(t.Name, t.Variants[idx].Name)
	v.Index = idx
	return v, nil
}

// probeClasses maps well-known variant names to the class probed for them.
var probeClasses = map[string]string{
	"Boolean":     "ffi.Boolean",
	"I8":          "ffi.Byte",
	"I16":         "ffi.Short",
	"I32":         "ffi.Int",
	"I64":         "ffi.Long",
	"F32":         "ffi.Float",
	"F64":         "ffi.Double",
	"S":           "String",
	"Array":       "Array",
	"Record":      recordClass,
	"ArrayBuffer": "ArrayBuffer",
	"Int8Array":   "Int8Array",
	"Int16Array":  "Int16Array",
	"Int32Array":  "Int32Array",
	"Uint8Array":  "Uint8Array",
	"Uint16Array": "Uint16Array",
	"Uint32Array": "Uint32Array",
}

// probeEnum picks the first variant whose class r is an instance of. The
// variant "Null" matches null.
func (d deserializer) probeEnum(r Ref, t *Type) (Value, error) {
	e := d.env
	for i, variant := range t.Variants {
		var matched bool
		if variant.Name == "Null" {
			null, err := e.IsNull(r)
			if err != nil {
				return Value{}, err
			}
			matched = null
		} else {
			className, ok := probeClasses[variant.Name]
			if !ok {
				className = variant.Name
			}
			class, err := e.FindClass(className)
			if err != nil {
				return Value{}, err
			}
			if matched, err = e.InstanceOf(r, class); err != nil {
				return Value{}, err
			}
		}
		if !matched {
			continue
		}
		out := EnumUnit("", variant.Name)
		if variant.Type != nil {
			payload, err := deserializer{env: e}.read(r, variant.Type)
			if err != nil {
				return Value{}, err
			}
			out = EnumValue("", variant.Name, payload)
		}
		out.Index = i
		return out, nil
	}
	names := make([]string, len(t.Variants))
	for i, v := range t.Variants {
		names[i] = v.Name
	}
	return Value{}, newError(VariantResolutionError, "deserialize enum").
		detail("all variants %v not match", names).build()
}

// readBuffer borrows the elements of a typed array. An empty untyped array
// is accepted as an empty typed array.
func (d deserializer) readBuffer(r Ref) (Value, error) {
	e := d.env
	if n, err := e.ArrayLength(r); err == nil {
		if n != 0 {
			return Value{}, newError(AccessError, "deserialize typed array").name(d.buffer.ClassName()).
				detail("value is a non-empty untyped array").build()
		}
		return TypedArray(d.buffer, []byte{}), nil
	}
	class, err := e.FindClass(d.buffer.ClassName())
	if err != nil {
		return Value{}, err
	}
	ok, err := e.InstanceOf(r, class)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, newError(AccessError, "deserialize typed array").name(d.buffer.ClassName()).
			detail("value is not a %s", d.buffer.ClassName()).build()
	}
	buf, err := e.GetPropertyRef(r, "buffer")
	if err != nil {
		return Value{}, err
	}
	data, err := e.ArrayBufferBytes(buf)
	if err != nil {
		return Value{}, err
	}
	off, err := GetProperty[int64](e, r, "byteOffset")
	if err != nil {
		return Value{}, err
	}
	n, err := GetProperty[int64](e, r, "byteLength")
	if err != nil {
		return Value{}, err
	}
	if off < 0 || n < 0 || off+n > int64(len(data)) {
		return Value{}, newError(AccessError, "deserialize typed array").name(d.buffer.ClassName()).
			detail("view [%d, %d) outside %d-byte buffer", off, off+n, len(data)).build()
	}
	return TypedArray(d.buffer, data[off:off+n:off+n]), nil
}

func (d deserializer) readRef(r Ref) (Value, error) {
	if !d.passthrough {
		return Value{}, unsupported("raw reference outside passthrough")
	}
	return RefValue(r), nil
}
