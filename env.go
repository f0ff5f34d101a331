package ffibridge

import (
	"strings"
	"unicode/utf8"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

// Env is the environment of one attached goroutine. It must only be used
// by that goroutine. Every foreign operation of the bridge goes through it.
type Env struct {
	raw abi.Env
	vm  *VM
}

// NewEnv wraps a raw environment, e.g. the one passed to an abi.NativeFunc.
func (vm *VM) NewEnv(raw abi.Env) *Env { return &Env{raw: raw, vm: vm} }

// Raw returns the underlying function table.
func (e *Env) Raw() abi.Env { return e.raw }

// VM returns the VM the environment belongs to.
func (e *Env) VM() *VM { return e.vm }

// Undefined returns the absent sentinel.
func (e *Env) Undefined() Ref { return e.raw.Undefined() }

// Null returns the explicit null value. It is distinct from Undefined.
func (e *Env) Null() Ref { return e.raw.Null() }

func (e *Env) IsUndefined(r Ref) (bool, error) {
	ok, st := e.raw.IsUndefined(r)
	return ok, statusError(st, AccessError, "is undefined", r.String())
}

func (e *Env) IsNull(r Ref) (bool, error) {
	ok, st := e.raw.IsNull(r)
	return ok, statusError(st, AccessError, "is null", r.String())
}

// InstanceOf reports whether obj is an instance of class.
func (e *Env) InstanceOf(obj, class Ref) (bool, error) {
	ok, st := e.raw.InstanceOf(obj, class)
	return ok, statusError(st, AccessError, "instance of", obj.String())
}

// StrictEquals compares two references by identity.
func (e *Env) StrictEquals(a, b Ref) (bool, error) {
	ok, st := e.raw.StrictEquals(a, b)
	return ok, statusError(st, AccessError, "strict equals", a.String())
}

// Lookups.

func (e *Env) FindClass(name string) (Ref, error) {
	r, st := e.raw.FindClass(name)
	return r, statusError(st, LookupError, "find class", name)
}

func (e *Env) FindEnum(name string) (Ref, error) {
	r, st := e.raw.FindEnum(name)
	return r, statusError(st, LookupError, "find enum", name)
}

func (e *Env) FindNamespace(name string) (Ref, error) {
	r, st := e.raw.FindNamespace(name)
	return r, statusError(st, LookupError, "find namespace", name)
}

func (e *Env) FindFunction(ns Ref, name string) (Ref, error) {
	r, st := e.raw.FindFunction(ns, name)
	return r, statusError(st, LookupError, "find function", name)
}

func (e *Env) FindMethod(class Ref, name string) (Ref, error) {
	r, st := e.raw.FindMethod(class, name)
	return r, statusError(st, LookupError, "find method", name)
}

func (e *Env) FindStaticMethod(class Ref, name string) (Ref, error) {
	r, st := e.raw.FindStaticMethod(class, name)
	return r, statusError(st, LookupError, "find static method", name)
}

// Construction.

// NewObject invokes class's constructor with args.
func (e *Env) NewObject(class Ref, args ...Ref) (Ref, error) {
	r, st := e.raw.NewObject(class, args...)
	return r, statusError(st, ConstructionError, "new object", class.String())
}

// NewObjectByName looks up a class and constructs it.
func (e *Env) NewObjectByName(className string, args ...Ref) (Ref, error) {
	class, err := e.FindClass(className)
	if err != nil {
		return 0, err
	}
	r, st := e.raw.NewObject(class, args...)
	return r, statusError(st, ConstructionError, "new object", className)
}

// Properties and fields.

func (e *Env) GetPropertyRef(obj Ref, name string) (Ref, error) {
	r, st := e.raw.GetProperty(obj, name)
	return r, statusError(st, AccessError, "get property", name)
}

func (e *Env) SetPropertyRef(obj Ref, name string, v Ref) error {
	return statusError(e.raw.SetProperty(obj, name, v), AccessError, "set property", name)
}

// GetFieldRef reads an own field. Unlike GetPropertyRef it fails when the
// field does not exist.
func (e *Env) GetFieldRef(obj Ref, name string) (Ref, error) {
	r, st := e.raw.GetField(obj, name)
	return r, statusError(st, AccessError, "get field", name)
}

// SetFieldRef writes an existing own field.
func (e *Env) SetFieldRef(obj Ref, name string, v Ref) error {
	return statusError(e.raw.SetField(obj, name, v), AccessError, "set field", name)
}

// Calls.

func (e *Env) CallMethod(obj, method Ref, args ...Ref) (Ref, error) {
	r, st := e.raw.CallMethod(obj, method, args...)
	return r, e.callError(st, "call method", method.String())
}

func (e *Env) CallMethodByName(obj Ref, name string, args ...Ref) (Ref, error) {
	r, st := e.raw.CallMethodByName(obj, name, args...)
	if st == abi.NotFound {
		return 0, statusError(st, LookupError, "find method", name)
	}
	return r, e.callError(st, "call method", name)
}

func (e *Env) CallStaticMethod(class, method Ref, args ...Ref) (Ref, error) {
	r, st := e.raw.CallStaticMethod(class, method, args...)
	return r, e.callError(st, "call static method", method.String())
}

func (e *Env) CallFunction(fn Ref, args ...Ref) (Ref, error) {
	r, st := e.raw.CallFunction(fn, args...)
	return r, e.callError(st, "call function", fn.String())
}

// callError leaves a thrown exception pending so the caller can describe,
// inspect or rethrow it.
func (e *Env) callError(st abi.Status, op, name string) error {
	return statusError(st, AccessError, op, name)
}

// Strings.

// NewString converts UTF-8 text to a foreign string.
func (e *Env) NewString(s string) (Ref, error) {
	if !utf8.ValidString(s) {
		return 0, newError(ConversionError, "new string").detail("invalid UTF-8").build()
	}
	r, st := e.raw.StringNewUTF8(s)
	return r, statusError(st, ConversionError, "new string", "")
}

// GetString converts a foreign string to UTF-8. The size is queried first,
// a buffer of size+1 is filled and the terminator trimmed.
func (e *Env) GetString(r Ref) (string, error) {
	size, st := e.raw.StringGetUTF8Size(r)
	if st != abi.OK {
		return "", statusError(st, ConversionError, "string size", r.String())
	}
	buf := make([]byte, size+1)
	n, st := e.raw.StringGetUTF8(r, buf)
	if st != abi.OK {
		return "", statusError(st, ConversionError, "get string", r.String())
	}
	s := strings.TrimSuffix(string(buf[:n+1]), "\x00")
	if !utf8.ValidString(s) {
		return "", newError(ConversionError, "get string").name(r.String()).detail("invalid UTF-8").build()
	}
	return s, nil
}

// Arrays.

// NewArray allocates a foreign array of length undefined elements.
func (e *Env) NewArray(length int) (Ref, error) {
	r, st := e.raw.ArrayNew(length)
	return r, statusError(st, ConstructionError, "new array", "")
}

func (e *Env) ArrayLength(arr Ref) (int, error) {
	n, st := e.raw.ArrayLength(arr)
	return n, statusError(st, AccessError, "array length", arr.String())
}

// ArrayGet reads element i. Range checks are the runtime's.
func (e *Env) ArrayGet(arr Ref, i int) (Ref, error) {
	r, st := e.raw.ArrayGet(arr, i)
	return r, statusError(st, AccessError, "array get", arr.String())
}

func (e *Env) ArraySet(arr Ref, i int, v Ref) error {
	return statusError(e.raw.ArraySet(arr, i, v), AccessError, "array set", arr.String())
}

// TupleItem reads component i of a tuple.
func (e *Env) TupleItem(tuple Ref, i int) (Ref, error) {
	r, st := e.raw.TupleGetItem(tuple, i)
	return r, statusError(st, AccessError, "tuple item", tuple.String())
}

// Buffers.

// CreateArrayBuffer creates a foreign buffer holding data. Runtimes that can
// address native memory adopt data without copying.
func (e *Env) CreateArrayBuffer(data []byte) (Ref, error) {
	r, st := e.raw.ArrayBufferCreate(data)
	return r, statusError(st, ConstructionError, "new array buffer", "")
}

// ArrayBufferBytes returns a borrowed view of a buffer's memory. It is
// valid until the current local scope ends.
func (e *Env) ArrayBufferBytes(buf Ref) ([]byte, error) {
	b, st := e.raw.ArrayBufferData(buf)
	return b, statusError(st, AccessError, "array buffer data", buf.String())
}

// Enums.

func (e *Env) EnumItemByName(enum Ref, name string) (Ref, error) {
	r, st := e.raw.EnumGetItemByName(enum, name)
	if st == abi.NotFound {
		return 0, statusError(st, LookupError, "find enum item", name)
	}
	return r, statusError(st, AccessError, "enum item", name)
}

func (e *Env) EnumItemByIndex(enum Ref, index int) (Ref, error) {
	r, st := e.raw.EnumGetItemByIndex(enum, index)
	return r, statusError(st, AccessError, "enum item", enum.String())
}

func (e *Env) EnumItemIndex(item Ref) (int, error) {
	i, st := e.raw.EnumItemGetIndex(item)
	return i, statusError(st, AccessError, "enum item index", item.String())
}

func (e *Env) EnumItemName(item Ref) (string, error) {
	s, st := e.raw.EnumItemGetName(item)
	return s, statusError(st, AccessError, "enum item name", item.String())
}

// References.

// CreateGlobalRef promotes r to a process-wide reference. Prefer Promote,
// which releases exactly once.
func (e *Env) CreateGlobalRef(r Ref) (Ref, error) {
	g, st := e.raw.GlobalReferenceCreate(r)
	return g, statusError(st, EnvironmentError, "create global ref", r.String())
}

func (e *Env) DeleteGlobalRef(r Ref) error {
	return statusError(e.raw.GlobalReferenceDelete(r), EnvironmentError, "delete global ref", r.String())
}

// Equal compares two references by strict identity. Raw handles are never
// compared directly since the runtime may move objects.
func (e *Env) Equal(a, b Ref) bool {
	ok, st := e.raw.StrictEquals(a, b)
	return st == abi.OK && ok
}

// WithLocalScope runs fn inside a fresh local scope. Local references
// created by fn are released when it returns; promote anything that must
// survive.
func (e *Env) WithLocalScope(capacity int, fn func() error) (err error) {
	if st := e.raw.CreateLocalScope(capacity); st != abi.OK {
		return newError(EnvironmentError, "create local scope").status(st).build()
	}
	defer func() {
		if st := e.raw.DestroyLocalScope(); st != abi.OK && err == nil {
			err = newError(EnvironmentError, "destroy local scope").status(st).build()
		}
	}()
	return fn()
}

// Errors.

// NewError constructs a foreign Error with message.
func (e *Env) NewError(message string) (Ref, error) {
	msg, err := e.NewString(message)
	if err != nil {
		return 0, err
	}
	return e.NewObjectByName("Error", msg)
}

// ThrowError makes errRef the pending error. It is raised when the current
// native call returns.
func (e *Env) ThrowError(errRef Ref) error {
	return statusError(e.raw.ThrowError(errRef), EnvironmentError, "throw", errRef.String())
}

func (e *Env) ExistUnhandledError() (bool, error) {
	ok, st := e.raw.ExistUnhandledError()
	return ok, statusError(st, EnvironmentError, "exist unhandled error", "")
}

// GetUnhandledError takes the pending error.
func (e *Env) GetUnhandledError() (Ref, error) {
	r, st := e.raw.GetUnhandledError()
	return r, statusError(st, EnvironmentError, "get unhandled error", "")
}

// ResetError discards the pending error.
func (e *Env) ResetError() error {
	return statusError(e.raw.ResetError(), EnvironmentError, "reset error", "")
}

// DescribeError renders and clears the pending error. It returns "" when
// none is pending.
func (e *Env) DescribeError() (string, error) {
	s, st := e.raw.DescribeError()
	return s, statusError(st, EnvironmentError, "describe error", "")
}

// evaluator is implemented by environments that can run scripts.
type evaluator interface {
	Eval(code, filename string) (abi.Ref, abi.Status)
}

// Eval runs a script and returns its completion value. A thrown exception
// is described in the returned error and cleared.
func (e *Env) Eval(code, filename string) (Ref, error) {
	ev, ok := e.raw.(evaluator)
	if !ok {
		return 0, newError(EnvironmentError, "eval").detail("runtime cannot evaluate scripts").build()
	}
	r, st := ev.Eval(code, filename)
	if st == abi.OK {
		return r, nil
	}
	b := newError(EnvironmentError, "eval").name(filename).status(st)
	if st == abi.PendingError {
		if msg, _ := e.DescribeError(); msg != "" {
			b.detail("%s", msg)
		}
	}
	return 0, b.build()
}
