// Package abi defines the environment interface a foreign managed runtime
// exposes to native code.
//
// The interface is modelled as a versioned function table: a VM hands out one
// Env per attached goroutine, and every operation on foreign objects goes
// through that Env using opaque Ref handles. Operations report failures as a
// Status code rather than a Go error so that implementations backed by a C or
// WebAssembly ABI can pass codes through unchanged.
package abi

import "fmt"

// Version is the only ABI version this module speaks.
const Version uint32 = 1

// Status is the result code of an environment call.
type Status int32

const (
	OK Status = iota
	Error
	InvalidArgs
	InvalidType
	InvalidDescriptor
	IncorrectRef
	PendingError
	NotFound
	AlreadyBinded
	OutOfRef
	OutOfMemory
	OutOfRange
	BufferTooSmall
	InvalidVersion
)

var statusNames = [...]string{
	OK:                "ok",
	Error:             "error",
	InvalidArgs:       "invalid arguments",
	InvalidType:       "invalid type",
	InvalidDescriptor: "invalid descriptor",
	IncorrectRef:      "incorrect reference",
	PendingError:      "pending error",
	NotFound:          "not found",
	AlreadyBinded:     "already bound",
	OutOfRef:          "out of references",
	OutOfMemory:       "out of memory",
	OutOfRange:        "out of range",
	BufferTooSmall:    "buffer too small",
	InvalidVersion:    "invalid version",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Error makes Status usable as an error value.
func (s Status) Error() string {
	return "abi: " + s.String()
}

// Err returns nil for OK and the status itself otherwise.
func (s Status) Err() error {
	if s == OK {
		return nil
	}
	return s
}

// Ref is an opaque handle to a foreign value. The zero Ref is never a valid
// handle. The top bit distinguishes global references from local ones.
type Ref uint32

const globalBit Ref = 1 << 31

// LocalRef builds a local handle for slot index i.
func LocalRef(i uint32) Ref { return Ref(i+1) &^ globalBit }

// GlobalRef builds a global handle for slot index i.
func GlobalRef(i uint32) Ref { return Ref(i+1) | globalBit }

// IsNil reports whether r is the zero handle.
func (r Ref) IsNil() bool { return r&^globalBit == 0 }

// IsGlobal reports whether r was produced by GlobalReferenceCreate.
func (r Ref) IsGlobal() bool { return r&globalBit != 0 }

// Slot returns the table index encoded in r.
func (r Ref) Slot() uint32 { return uint32(r&^globalBit) - 1 }

func (r Ref) String() string {
	switch {
	case r.IsNil():
		return "ref(nil)"
	case r.IsGlobal():
		return fmt.Sprintf("gref(%d)", r.Slot())
	default:
		return fmt.Sprintf("lref(%d)", r.Slot())
	}
}

// Kind selects a primitive wrapper for Box and Unbox.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindChar
)

var kindNames = [...]string{
	KindBool:   "Boolean",
	KindByte:   "Byte",
	KindShort:  "Short",
	KindInt:    "Int",
	KindLong:   "Long",
	KindFloat:  "Float",
	KindDouble: "Double",
	KindChar:   "Char",
}

// String returns the wrapper class name of the kind.
func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// NativeFunc is a native implementation bound into a foreign class or
// namespace. It runs inside a fresh local scope of env. Returning a nil Ref
// yields undefined. A pending error left on env is raised in the caller once
// Fn returns.
type NativeFunc func(env Env, this Ref, args []Ref) Ref

// NativeFunction names a NativeFunc for BindNativeFunctions. Static functions
// are bound on a class itself instead of its instances.
type NativeFunction struct {
	Name   string
	Static bool
	Fn     NativeFunc
}

// VM is the process-wide handle of a foreign runtime.
type VM interface {
	// GetEnv returns the environment of the calling goroutine. It fails with
	// NotFound when the goroutine is not attached.
	GetEnv(version uint32) (Env, Status)
	// AttachCurrentThread attaches the calling goroutine. It fails with
	// AlreadyBinded when the goroutine is already attached.
	AttachCurrentThread(version uint32) (Env, Status)
	// DetachCurrentThread releases the environment of the calling goroutine.
	DetachCurrentThread() Status
	// DestroyVM shuts the runtime down. All environments become invalid.
	DestroyVM() Status
}

// Env is the thread-affine function table of an attached goroutine.
//
// Primitive values travel as raw bits: booleans as 0/1, signed integers
// sign-extended to 64 bits, floats as IEEE-754 bits (float32 in the low 32
// bits) and chars as a UTF-16 code unit.
type Env interface {
	GetVersion() uint32

	Undefined() Ref
	Null() Ref
	IsUndefined(r Ref) (bool, Status)
	IsNull(r Ref) (bool, Status)
	StrictEquals(a, b Ref) (bool, Status)
	InstanceOf(obj, class Ref) (bool, Status)

	GlobalReferenceCreate(r Ref) (Ref, Status)
	GlobalReferenceDelete(r Ref) Status
	CreateLocalScope(capacity int) Status
	DestroyLocalScope() Status

	FindClass(name string) (Ref, Status)
	FindEnum(name string) (Ref, Status)
	FindNamespace(name string) (Ref, Status)
	FindFunction(ns Ref, name string) (Ref, Status)
	FindMethod(class Ref, name string) (Ref, Status)
	FindStaticMethod(class Ref, name string) (Ref, Status)

	NewObject(class Ref, args ...Ref) (Ref, Status)
	GetProperty(obj Ref, name string) (Ref, Status)
	SetProperty(obj Ref, name string, v Ref) Status
	GetField(obj Ref, name string) (Ref, Status)
	SetField(obj Ref, name string, v Ref) Status

	CallMethod(obj, method Ref, args ...Ref) (Ref, Status)
	CallMethodByName(obj Ref, name string, args ...Ref) (Ref, Status)
	CallStaticMethod(class, method Ref, args ...Ref) (Ref, Status)
	CallFunction(fn Ref, args ...Ref) (Ref, Status)

	Box(kind Kind, bits uint64) (Ref, Status)
	Unbox(kind Kind, r Ref) (uint64, Status)

	StringNewUTF8(s string) (Ref, Status)
	StringGetUTF8Size(r Ref) (int, Status)
	// StringGetUTF8 writes the string and a terminating zero byte into buf
	// and returns the number of bytes written without the terminator.
	StringGetUTF8(r Ref, buf []byte) (int, Status)

	ArrayNew(length int) (Ref, Status)
	ArrayLength(r Ref) (int, Status)
	ArrayGet(r Ref, index int) (Ref, Status)
	ArraySet(r Ref, index int, v Ref) Status
	TupleGetItem(r Ref, index int) (Ref, Status)

	// ArrayBufferCreate returns a buffer holding data. Implementations adopt
	// the slice when the runtime can address native memory.
	ArrayBufferCreate(data []byte) (Ref, Status)
	// ArrayBufferData returns a view of the buffer's bytes. The view aliases
	// foreign memory and is valid for the current local scope.
	ArrayBufferData(r Ref) ([]byte, Status)

	EnumGetItemByName(enum Ref, name string) (Ref, Status)
	EnumGetItemByIndex(enum Ref, index int) (Ref, Status)
	EnumItemGetIndex(item Ref) (int, Status)
	EnumItemGetName(item Ref) (string, Status)

	ThrowError(err Ref) Status
	ExistUnhandledError() (bool, Status)
	// GetUnhandledError returns the pending error and clears it.
	GetUnhandledError() (Ref, Status)
	ResetError() Status
	// DescribeError renders the pending error and clears it.
	DescribeError() (string, Status)

	BindNativeFunctions(target Ref, fns []NativeFunction) Status
}
