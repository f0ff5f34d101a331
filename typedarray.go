package ffibridge

import (
	"fmt"
	"strings"
	"unsafe"
)

// BufferKind selects the element type of a typed array. It travels with
// the serializer and deserializer instead of a reserved type name.
type BufferKind uint8

const (
	BufferNone BufferKind = iota
	BufferInt8
	BufferInt16
	BufferInt32
	BufferUint8
	BufferUint16
	BufferUint32
)

var bufferKinds = [...]struct {
	class string
	size  int
}{
	BufferNone:   {"", 1},
	BufferInt8:   {"Int8Array", 1},
	BufferInt16:  {"Int16Array", 2},
	BufferInt32:  {"Int32Array", 4},
	BufferUint8:  {"Uint8Array", 1},
	BufferUint16: {"Uint16Array", 2},
	BufferUint32: {"Uint32Array", 4},
}

// ClassName returns the foreign typed-array class, e.g. "Int16Array".
func (k BufferKind) ClassName() string {
	if int(k) < len(bufferKinds) {
		return bufferKinds[k].class
	}
	return ""
}

// ElemSize returns the element width in bytes.
func (k BufferKind) ElemSize() int {
	if int(k) < len(bufferKinds) {
		return bufferKinds[k].size
	}
	return 1
}

func (k BufferKind) String() string {
	if k == BufferNone {
		return "none"
	}
	if c := k.ClassName(); c != "" {
		return strings.ToLower(c)
	}
	return fmt.Sprintf("buffer(%d)", uint8(k))
}

// MarkerRef is the reserved name of a raw reference passthrough.
const MarkerRef = "@AniRef"

// BufferKindByMarker maps the reserved names "@Int8Array" through
// "@Uint32Array" to their kind. passthrough is true for MarkerRef. Any other
// name is a plain wrapper and yields BufferNone.
func BufferKindByMarker(name string) (kind BufferKind, passthrough bool) {
	if name == MarkerRef {
		return BufferNone, true
	}
	if !strings.HasPrefix(name, "@") {
		return BufferNone, false
	}
	for k := BufferInt8; k <= BufferUint32; k++ {
		if name[1:] == k.ClassName() {
			return k, false
		}
	}
	return BufferNone, false
}

// Marker returns the reserved name of k.
func (k BufferKind) Marker() string {
	if k == BufferNone {
		return ""
	}
	return "@" + k.ClassName()
}

// Elem is the element type of a typed array.
type Elem interface {
	~int8 | ~int16 | ~int32 | ~uint8 | ~uint16 | ~uint32
}

// Go types of the typed arrays. Marshal maps them to typed arrays rather
// than sequences.
type (
	Int8Array   []int8
	Int16Array  []int16
	Int32Array  []int32
	Uint8Array  []uint8
	Uint16Array []uint16
	Uint32Array []uint32
)

func bufferKindOf[T Elem]() BufferKind {
	var zero T
	switch any(zero).(type) {
	case int8:
		return BufferInt8
	case int16:
		return BufferInt16
	case int32:
		return BufferInt32
	case uint8:
		return BufferUint8
	case uint16:
		return BufferUint16
	case uint32:
		return BufferUint32
	}
	// Named element types.
	switch unsafe.Sizeof(zero) {
	case 1:
		if ^zero > 0 {
			return BufferUint8
		}
		return BufferInt8
	case 2:
		if ^zero > 0 {
			return BufferUint16
		}
		return BufferInt16
	default:
		if ^zero > 0 {
			return BufferUint32
		}
		return BufferInt32
	}
}

// TypedArray builds a typed array from raw element bytes in host order.
func TypedArray(kind BufferKind, raw []byte) Value {
	return Value{Kind: KindTypedArray, Buffer: kind, Bytes: raw}
}

// TypedArrayOf builds a typed array that shares memory with elems.
func TypedArrayOf[T Elem](elems []T) Value {
	return TypedArray(bufferKindOf[T](), asBytes(elems))
}

// TypedElems views the elements of a typed array value as []T without
// copying. It fails when T does not match the value's kind.
func TypedElems[T Elem](v Value) ([]T, error) {
	if v.Kind != KindTypedArray {
		return nil, newError(ConversionError, "typed elements").detail("value is %s", v.Kind).build()
	}
	if k := bufferKindOf[T](); k != v.Buffer {
		return nil, newError(ConversionError, "typed elements").
			detail("value holds %s, not %s", v.Buffer, k).build()
	}
	return fromBytes[T](v.Bytes), nil
}

func asBytes[T Elem](elems []T) []byte {
	if len(elems) == 0 {
		return []byte{}
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(elems))), len(elems)*int(unsafe.Sizeof(zero)))
}

// fromBytes reinterprets raw as []T. Misaligned input is copied.
func fromBytes[T Elem](raw []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	n := len(raw) / size
	if n == 0 {
		return []T{}
	}
	p := unsafe.Pointer(unsafe.SliceData(raw))
	if uintptr(p)%unsafe.Alignof(zero) == 0 {
		return unsafe.Slice((*T)(p), n)
	}
	out := make([]T, n)
	copy(asBytes(out), raw[:n*size])
	return out
}

func formatTypedElements(v Value) string {
	switch v.Buffer {
	case BufferInt8:
		return fmt.Sprint(fromBytes[int8](v.Bytes))
	case BufferInt16:
		return fmt.Sprint(fromBytes[int16](v.Bytes))
	case BufferInt32:
		return fmt.Sprint(fromBytes[int32](v.Bytes))
	case BufferUint8:
		return fmt.Sprint(fromBytes[uint8](v.Bytes))
	case BufferUint16:
		return fmt.Sprint(fromBytes[uint16](v.Bytes))
	case BufferUint32:
		return fmt.Sprint(fromBytes[uint32](v.Bytes))
	}
	return fmt.Sprint(v.Bytes)
}
