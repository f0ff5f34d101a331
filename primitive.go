package ffibridge

import (
	"math"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

// Char is a UTF-16 code unit.
type Char uint16

// Primitive is the closed set of scalar types that have a foreign wrapper
// class. Unsigned integers are deliberately absent.
type Primitive interface {
	bool | int8 | int16 | int32 | int64 | float32 | float64 | Char
}

// primitiveOps is the capability set of one primitive type.
type primitiveOps[T Primitive] struct {
	kind   abi.Kind
	toBits func(T) uint64
	from   func(uint64) T
}

// opsFor selects the capability set of T.
func opsFor[T Primitive]() primitiveOps[T] {
	var zero T
	switch any(zero).(type) {
	case bool:
		return primitiveOps[T]{
			kind: abi.KindBool,
			toBits: func(v T) uint64 {
				if any(v).(bool) {
					return 1
				}
				return 0
			},
			from: func(b uint64) T { return any(b != 0).(T) },
		}
	case int8:
		return primitiveOps[T]{
			kind:   abi.KindByte,
			toBits: func(v T) uint64 { return uint64(int64(any(v).(int8))) },
			from:   func(b uint64) T { return any(int8(b)).(T) },
		}
	case int16:
		return primitiveOps[T]{
			kind:   abi.KindShort,
			toBits: func(v T) uint64 { return uint64(int64(any(v).(int16))) },
			from:   func(b uint64) T { return any(int16(b)).(T) },
		}
	case int32:
		return primitiveOps[T]{
			kind:   abi.KindInt,
			toBits: func(v T) uint64 { return uint64(int64(any(v).(int32))) },
			from:   func(b uint64) T { return any(int32(b)).(T) },
		}
	case int64:
		return primitiveOps[T]{
			kind:   abi.KindLong,
			toBits: func(v T) uint64 { return uint64(any(v).(int64)) },
			from:   func(b uint64) T { return any(int64(b)).(T) },
		}
	case float32:
		return primitiveOps[T]{
			kind:   abi.KindFloat,
			toBits: func(v T) uint64 { return uint64(math.Float32bits(any(v).(float32))) },
			from:   func(b uint64) T { return any(math.Float32frombits(uint32(b))).(T) },
		}
	case float64:
		return primitiveOps[T]{
			kind:   abi.KindDouble,
			toBits: func(v T) uint64 { return math.Float64bits(any(v).(float64)) },
			from:   func(b uint64) T { return any(math.Float64frombits(b)).(T) },
		}
	default: // Char
		return primitiveOps[T]{
			kind:   abi.KindChar,
			toBits: func(v T) uint64 { return uint64(any(v).(Char)) },
			from:   func(b uint64) T { return any(Char(b)).(T) },
		}
	}
}

// Box wraps v in its foreign wrapper class.
func Box[T Primitive](e *Env, v T) (Ref, error) {
	ops := opsFor[T]()
	r, st := e.raw.Box(ops.kind, ops.toBits(v))
	if err := statusError(st, AccessError, "box", ops.kind.String()); err != nil {
		return 0, err
	}
	return r, nil
}

// Unbox extracts a T from a foreign wrapper or matching primitive.
func Unbox[T Primitive](e *Env, r Ref) (T, error) {
	ops := opsFor[T]()
	bits, st := e.raw.Unbox(ops.kind, r)
	if err := statusError(st, AccessError, "unbox", ops.kind.String()); err != nil {
		var zero T
		return zero, err
	}
	return ops.from(bits), nil
}

// GetProperty reads a property and unboxes it.
func GetProperty[T Primitive](e *Env, obj Ref, name string) (T, error) {
	var zero T
	r, err := e.GetPropertyRef(obj, name)
	if err != nil {
		return zero, err
	}
	v, err := Unbox[T](e, r)
	if err != nil {
		return zero, newError(AccessError, "get property").name(name).status(StatusOf(err)).cause(err).build()
	}
	return v, nil
}

// SetProperty boxes v and stores it as a property.
func SetProperty[T Primitive](e *Env, obj Ref, name string, v T) error {
	r, err := Box(e, v)
	if err != nil {
		return err
	}
	return e.SetPropertyRef(obj, name, r)
}

// GetField reads an own field and unboxes it.
func GetField[T Primitive](e *Env, obj Ref, name string) (T, error) {
	var zero T
	r, err := e.GetFieldRef(obj, name)
	if err != nil {
		return zero, err
	}
	v, err := Unbox[T](e, r)
	if err != nil {
		return zero, newError(AccessError, "get field").name(name).status(StatusOf(err)).cause(err).build()
	}
	return v, nil
}

// SetField boxes v and stores it in an existing own field.
func SetField[T Primitive](e *Env, obj Ref, name string, v T) error {
	r, err := Box(e, v)
	if err != nil {
		return err
	}
	return e.SetFieldRef(obj, name, r)
}

// NewPrimitiveArray creates a foreign array of boxed values.
func NewPrimitiveArray[T Primitive](e *Env, vals []T) (Ref, error) {
	arr, err := e.NewArray(len(vals))
	if err != nil {
		return 0, err
	}
	for i, v := range vals {
		if err := ArraySetPrimitive(e, arr, i, v); err != nil {
			return 0, err
		}
	}
	return arr, nil
}

// ArrayGetPrimitive reads and unboxes element i.
func ArrayGetPrimitive[T Primitive](e *Env, arr Ref, i int) (T, error) {
	r, err := e.ArrayGet(arr, i)
	if err != nil {
		var zero T
		return zero, err
	}
	return Unbox[T](e, r)
}

// ArraySetPrimitive boxes v into element i.
func ArraySetPrimitive[T Primitive](e *Env, arr Ref, i int, v T) error {
	r, err := Box(e, v)
	if err != nil {
		return err
	}
	return e.ArraySet(arr, i, r)
}
