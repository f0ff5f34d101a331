// Package jsvm implements the abi environment on top of a handle-based
// JavaScript engine.
//
// An engine only needs to expose a small set of value operations. Everything
// the ABI adds on top (boxed primitive classes, enums, business errors, class
// lookup by dotted name, local scopes and the global reference table) lives
// here and in the embedded prelude script.
package jsvm

import "fmt"

// HostFunc is a Go function callable from script. Returning a *Thrown error
// raises its value in the caller; any other error is raised as an Error.
type HostFunc[V any] func(this V, args []V) (V, error)

// Engine is a single-threaded JavaScript engine reached through value
// handles of type V. Handles returned by the engine are owned by the caller
// and must be passed to Free once; handles passed in are borrowed.
type Engine[V any] interface {
	Eval(code, filename string) (V, error)
	Global() (V, error)
	Undefined() V
	Null() V
	IsUndefined(v V) bool
	IsNull(v V) bool
	StrictEquals(a, b V) bool

	Get(obj V, key string) (V, error)
	Set(obj V, key string, val V) error
	GetIndex(obj V, idx uint32) (V, error)
	SetIndex(obj V, idx uint32, val V) error
	Call(fn, this V, args []V) (V, error)
	Construct(ctor V, args []V) (V, error)

	NewBool(b bool) V
	NewNumber(f float64) V
	NewBigInt(i int64) (V, error)
	NewString(s string) (V, error)
	ToBool(v V) bool
	ToNumber(v V) (float64, error)
	ToBigInt(v V) (int64, error)
	ToString(v V) (string, error)

	NewArrayBuffer(data []byte) (V, error)
	ArrayBufferData(v V) ([]byte, error)
	NewFunction(name string, fn HostFunc[V]) (V, error)

	Dup(v V) V
	Free(v V)
	Close() error
}

// Thrown is returned by engine calls that raised a script exception.
type Thrown[V any] struct {
	Value   V
	Message string
}

func (t *Thrown[V]) Error() string {
	if t.Message == "" {
		return "script exception"
	}
	return fmt.Sprintf("script exception: %s", t.Message)
}
