package ffibridge

import (
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// ForeignClass is implemented by structs whose foreign class differs from
// their Go type name.
type ForeignClass interface {
	ForeignClass() string
}

// ForeignEnum is implemented by integer types that stand for the items of a
// foreign enum. The integer is the item index into Variants.
type ForeignEnum interface {
	EnumName() string
	Variants() []string
}

var (
	valueType        = reflect.TypeFor[Value]()
	refType          = reflect.TypeFor[Ref]()
	jsonValueType    = reflect.TypeFor[JSONValue]()
	charType         = reflect.TypeFor[Char]()
	byteSliceType    = reflect.TypeFor[[]byte]()
	foreignClassType = reflect.TypeFor[ForeignClass]()
	foreignEnumType  = reflect.TypeFor[ForeignEnum]()

	typedArrayTypes = map[reflect.Type]BufferKind{
		reflect.TypeFor[Int8Array]():   BufferInt8,
		reflect.TypeFor[Int16Array]():  BufferInt16,
		reflect.TypeFor[Int32Array]():  BufferInt32,
		reflect.TypeFor[Uint8Array]():  BufferUint8,
		reflect.TypeFor[Uint16Array](): BufferUint16,
		reflect.TypeFor[Uint32Array](): BufferUint32,
	}
)

// Marshal serializes a Go value. See ValueOf for the mapping.
func Marshal(e *Env, x any) (Ref, error) {
	v, err := ValueOf(x)
	if err != nil {
		return 0, err
	}
	return Serialize(e, v)
}

// Unmarshal deserializes r into the value ptr points to, using the type
// TypeFor derives from it. Buffers are copied out of foreign memory.
func Unmarshal(e *Env, r Ref, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return newError(ConversionError, "unmarshal").detail("target must be a non-nil pointer, got %T", ptr).build()
	}
	t, err := TypeFor(rv.Elem().Type())
	if err != nil {
		return err
	}
	v, err := Deserialize(e, r, t)
	if err != nil {
		return err
	}
	return assign(v, rv.Elem())
}

// ValueOf converts a Go value:
//
//	bool, intN, floatN, string    scalars (int is i64)
//	uintN                         unsigned kinds, rejected on serialization
//	Char                          char
//	[]byte                        bytes
//	Int8Array ... Uint32Array     typed arrays
//	Ref                           passthrough reference
//	Value                         itself
//	*T                            option; nil is None
//	[]T, [N]T                     seq
//	map[K]V                       map, entries ordered by key
//	struct                        struct of its exported fields
//	ForeignEnum                   enum item
//
// Struct fields are named by their ffi tag, or the field name with its
// leading capitals lowered. The tag options "omitempty" and "-" work as in
// encoding/json.
func ValueOf(x any) (Value, error) {
	return valueOf(reflect.ValueOf(x))
}

func valueOf(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Unit(), nil
	}
	t := rv.Type()
	switch t {
	case valueType:
		return rv.Interface().(Value), nil
	case refType, jsonValueType:
		return RefValue(Ref(rv.Uint())), nil
	case charType:
		return CharValue(Char(rv.Uint())), nil
	case byteSliceType:
		return Bytes(rv.Bytes()), nil
	}
	if _, ok := typedArrayTypes[t]; ok {
		return typedArrayValue(rv.Interface()), nil
	}
	if isEnumType(t) {
		return enumValueOf(rv)
	}

	switch t.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int8:
		return I8(int8(rv.Int())), nil
	case reflect.Int16:
		return I16(int16(rv.Int())), nil
	case reflect.Int32:
		return I32(int32(rv.Int())), nil
	case reflect.Int64, reflect.Int:
		return I64(rv.Int()), nil
	case reflect.Uint8:
		return U8(uint8(rv.Uint())), nil
	case reflect.Uint16:
		return U16(uint16(rv.Uint())), nil
	case reflect.Uint32:
		return U32(uint32(rv.Uint())), nil
	case reflect.Uint64, reflect.Uint, reflect.Uintptr:
		return U64(rv.Uint()), nil
	case reflect.Float32:
		return F32(float32(rv.Float())), nil
	case reflect.Float64:
		return F64(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return None(), nil
		}
		v, err := valueOf(rv.Elem())
		if err != nil {
			return Value{}, err
		}
		return Some(v), nil
	case reflect.Interface:
		if rv.IsNil() {
			return Unit(), nil
		}
		return valueOf(rv.Elem())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := valueOf(rv.Index(i))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Seq(items...), nil
	case reflect.Map:
		entries := make([]Entry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := valueOf(iter.Key())
			if err != nil {
				return Value{}, err
			}
			v, err := valueOf(iter.Value())
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		slices.SortFunc(entries, func(a, b Entry) int {
			return strings.Compare(a.Key.String(), b.Key.String())
		})
		return Map(entries...), nil
	case reflect.Struct:
		fields := make([]Field, 0, t.NumField())
		for _, f := range structFields(t) {
			fv := rv.FieldByIndex(f.index)
			if f.omitEmpty && fv.IsZero() {
				continue
			}
			v, err := valueOf(fv)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Name: f.name, Value: v})
		}
		return Struct(classOf(t), fields...), nil
	}
	return Value{}, unsupported(t.String())
}

func typedArrayValue(x any) Value {
	switch a := x.(type) {
	case Int8Array:
		return TypedArrayOf(a)
	case Int16Array:
		return TypedArrayOf(a)
	case Int32Array:
		return TypedArrayOf(a)
	case Uint8Array:
		return TypedArrayOf(a)
	case Uint16Array:
		return TypedArrayOf(a)
	case Uint32Array:
		return TypedArrayOf(a)
	}
	return Value{}
}

func isEnumType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return t.Implements(foreignEnumType)
	}
	return false
}

func enumValueOf(rv reflect.Value) (Value, error) {
	fe := rv.Interface().(ForeignEnum)
	var idx int
	if rv.CanInt() {
		idx = int(rv.Int())
	} else {
		idx = int(rv.Uint())
	}
	variants := fe.Variants()
	if idx < 0 || idx >= len(variants) {
		return Value{}, newError(ConversionError, "marshal enum").name(fe.EnumName()).
			detail("item index %d outside %d variants", idx, len(variants)).build()
	}
	v := EnumUnit(fe.EnumName(), variants[idx])
	v.Index = idx
	return v, nil
}

// classOf names the foreign class of struct type t.
func classOf(t reflect.Type) string {
	switch {
	case t.Implements(foreignClassType):
		return reflect.Zero(t).Interface().(ForeignClass).ForeignClass()
	case reflect.PointerTo(t).Implements(foreignClassType):
		return reflect.New(t).Interface().(ForeignClass).ForeignClass()
	}
	return t.Name()
}

type fieldInfo struct {
	index     []int
	name      string
	omitEmpty bool
}

var fieldCache sync.Map // reflect.Type -> []fieldInfo

func structFields(t reflect.Type) []fieldInfo {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}
	var fields []fieldInfo
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("ffi"), ",")
		if name == "-" && opts == "" {
			continue
		}
		if name == "" {
			name = lowerCamel(f.Name)
		}
		fields = append(fields, fieldInfo{
			index:     f.Index,
			name:      name,
			omitEmpty: slices.Contains(strings.Split(opts, ","), "omitempty"),
		})
	}
	fieldCache.Store(t, fields)
	return fields
}

// lowerCamel lowers the leading run of capitals: Name becomes name, ID
// becomes id and HTTPPort becomes httpPort.
func lowerCamel(s string) string {
	r := []rune(s)
	for i := range r {
		if !unicode.IsUpper(r[i]) {
			break
		}
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

var typeCache sync.Map // reflect.Type -> *Type

// TypeFor derives the descriptor Unmarshal reads a Go type with. It fails
// on recursive types and on types without a static shape such as Value or
// interfaces.
func TypeFor(t reflect.Type) (*Type, error) {
	if t == nil {
		return nil, unsupported("nil type")
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*Type), nil
	}
	typ, err := typeFor(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	typeCache.Store(t, typ)
	return typ, nil
}

func typeFor(t reflect.Type, visiting map[reflect.Type]bool) (*Type, error) {
	switch t {
	case refType, jsonValueType:
		return RefType, nil
	case charType:
		return CharType, nil
	case byteSliceType:
		return BytesType, nil
	case valueType:
		return nil, unsupported("ffibridge.Value has no static type")
	}
	if kind, ok := typedArrayTypes[t]; ok {
		return TypedArrayType(kind), nil
	}
	if isEnumType(t) {
		fe := reflect.Zero(t).Interface().(ForeignEnum)
		variants := make([]VariantType, 0, len(fe.Variants()))
		for _, name := range fe.Variants() {
			variants = append(variants, UnitVariant(name))
		}
		return EnumType(fe.EnumName(), variants...), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return BoolType, nil
	case reflect.Int8:
		return I8Type, nil
	case reflect.Int16:
		return I16Type, nil
	case reflect.Int32:
		return I32Type, nil
	case reflect.Int64, reflect.Int:
		return I64Type, nil
	case reflect.Uint8:
		return U8Type, nil
	case reflect.Uint16:
		return U16Type, nil
	case reflect.Uint32:
		return U32Type, nil
	case reflect.Uint64, reflect.Uint, reflect.Uintptr:
		return U64Type, nil
	case reflect.Float32:
		return F32Type, nil
	case reflect.Float64:
		return F64Type, nil
	case reflect.String:
		return StringType, nil
	case reflect.Pointer:
		elem, err := typeFor(t.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return OptionType(elem), nil
	case reflect.Slice, reflect.Array:
		elem, err := typeFor(t.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return SeqType(elem), nil
	case reflect.Map:
		key, err := typeFor(t.Key(), visiting)
		if err != nil {
			return nil, err
		}
		val, err := typeFor(t.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return MapType(key, val), nil
	case reflect.Struct:
		if visiting[t] {
			return nil, unsupported("recursive type " + t.String())
		}
		visiting[t] = true
		defer delete(visiting, t)
		st := StructType(classOf(t))
		for _, f := range structFields(t) {
			ft, err := typeFor(t.FieldByIndex(f.index).Type, visiting)
			if err != nil {
				return nil, err
			}
			st.Fields = append(st.Fields, FieldOf(f.name, ft))
		}
		return st, nil
	}
	return nil, unsupported(t.String())
}

// assign stores v, produced by Deserialize for dst's own type, into dst.
func assign(v Value, dst reflect.Value) error {
	t := dst.Type()
	switch t {
	case refType, jsonValueType:
		dst.SetUint(uint64(v.Ref))
		return nil
	case charType:
		dst.SetUint(uint64(v.Char))
		return nil
	case byteSliceType:
		dst.SetBytes(slices.Clone(v.Bytes))
		return nil
	}
	if _, ok := typedArrayTypes[t]; ok {
		return assignTypedArray(v, dst.Addr().Interface())
	}
	if isEnumType(t) {
		if dst.CanInt() {
			dst.SetInt(int64(v.Index))
		} else {
			dst.SetUint(uint64(v.Index))
		}
		return nil
	}

	switch t.Kind() {
	case reflect.Bool:
		dst.SetBool(v.Bool)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		dst.SetInt(v.Int)
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(v.Float)
	case reflect.String:
		dst.SetString(v.Str)
	case reflect.Pointer:
		if !v.IsSome() {
			dst.SetZero()
			return nil
		}
		p := reflect.New(t.Elem())
		if err := assign(v.Elems[0], p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
	case reflect.Slice:
		s := reflect.MakeSlice(t, len(v.Elems), len(v.Elems))
		for i, item := range v.Elems {
			if err := assign(item, s.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(s)
	case reflect.Array:
		if len(v.Elems) != t.Len() {
			return newError(ConversionError, "unmarshal").name(t.String()).
				detail("sequence has %d elements", len(v.Elems)).build()
		}
		for i, item := range v.Elems {
			if err := assign(item, dst.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		m := reflect.MakeMapWithSize(t, len(v.Entries))
		for _, e := range v.Entries {
			k := reflect.New(t.Key()).Elem()
			if err := assign(e.Key, k); err != nil {
				return err
			}
			val := reflect.New(t.Elem()).Elem()
			if err := assign(e.Value, val); err != nil {
				return err
			}
			m.SetMapIndex(k, val)
		}
		dst.Set(m)
	case reflect.Struct:
		for _, f := range structFields(t) {
			fv, ok := v.Field(f.name)
			if !ok {
				continue
			}
			if err := assign(fv, dst.FieldByIndex(f.index)); err != nil {
				return err
			}
		}
	default:
		return unsupported(t.String())
	}
	return nil
}

// assignTypedArray copies the borrowed elements of v into *ptr.
func assignTypedArray(v Value, ptr any) error {
	var err error
	switch p := ptr.(type) {
	case *Int8Array:
		*p, err = cloneElems[int8](v)
	case *Int16Array:
		*p, err = cloneElems[int16](v)
	case *Int32Array:
		*p, err = cloneElems[int32](v)
	case *Uint8Array:
		*p, err = cloneElems[uint8](v)
	case *Uint16Array:
		*p, err = cloneElems[uint16](v)
	case *Uint32Array:
		*p, err = cloneElems[uint32](v)
	}
	return err
}

func cloneElems[T Elem](v Value) ([]T, error) {
	elems, err := TypedElems[T](v)
	if err != nil {
		return nil, err
	}
	return slices.Clone(elems), nil
}
