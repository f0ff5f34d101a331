package ffibridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

// NativeBody implements a native function. A returned error is thrown into
// the runtime as a business error.
type NativeBody func(env *Env, this Ref, args []Ref) (Ref, error)

// NativeFunc names a body for BindNativeFunctions. Static functions of a
// class are installed on the class itself, the rest on its prototype.
type NativeFunc struct {
	Name   string
	Static bool
	Fn     NativeBody
}

// BindNativeFunctions installs fns on a class or namespace.
func (e *Env) BindNativeFunctions(target Ref, fns ...NativeFunc) error {
	raw := make([]abi.NativeFunction, len(fns))
	for i, fn := range fns {
		raw[i] = abi.NativeFunction{Name: fn.Name, Static: fn.Static, Fn: e.vm.entry(fn)}
	}
	st := e.raw.BindNativeFunctions(target, raw)
	return statusError(st, EnvironmentError, "bind native functions", target.String())
}

// entry converts fn to the raw calling convention. Errors and panics
// become a thrown business error, or rethrow the script exception already
// pending, and the function returns fn's default result, undefined unless
// fn provided one.
func (vm *VM) entry(fn NativeFunc) abi.NativeFunc {
	return func(raw abi.Env, this Ref, args []Ref) (ret Ref) {
		env := vm.NewEnv(raw)
		defer func() {
			if r := recover(); r != nil {
				throwEntryError(env, fn.Name, fmt.Errorf("panic: %v", r))
				ret = env.Undefined()
			}
		}()
		r, err := fn.Fn(env, this, args)
		if err != nil {
			throwEntryError(env, fn.Name, err)
			if r.IsNil() {
				return env.Undefined()
			}
		}
		return r
	}
}

// throwEntryError raises err unless a script exception is already pending,
// for example one thrown by a callback fn invoked. That exception
// propagates unchanged.
func throwEntryError(env *Env, name string, err error) {
	if pending, perr := env.ExistUnhandledError(); perr == nil && pending {
		Logger().Debug("native function failed with pending exception",
			zap.String("function", name), zap.Error(err))
		return
	}
	be := BusinessErrorFrom(err)
	Logger().Debug("native function failed",
		zap.String("function", name), zap.Int32("code", be.Code), zap.Error(err))
	if terr := env.ThrowBusinessError(be); terr != nil {
		Logger().Error("failed to throw business error",
			zap.String("function", name), zap.Error(terr))
	}
}

// readArgs deserializes args against params.
func readArgs(env *Env, params []*Type, args []Ref) ([]Value, error) {
	if len(args) < len(params) {
		return nil, ParameterError
	}
	vals := make([]Value, len(params))
	for i, p := range params {
		v, err := Deserialize(env, args[i], p)
		if err != nil {
			return nil, NewBusinessError(CodeParameter, err.Error())
		}
		vals[i] = v
	}
	return vals, nil
}

// EntryValue builds a body that reads its arguments as params, calls fn
// and serializes the result.
func EntryValue(params []*Type, fn func(env *Env, args []Value) (Value, error)) NativeBody {
	return func(env *Env, _ Ref, args []Ref) (Ref, error) {
		vals, err := readArgs(env, params, args)
		if err != nil {
			return 0, err
		}
		v, err := fn(env, vals)
		if err != nil {
			return 0, err
		}
		return Serialize(env, v)
	}
}

// EntryVoid is EntryValue for functions without a result.
func EntryVoid(params []*Type, fn func(env *Env, args []Value) error) NativeBody {
	return func(env *Env, _ Ref, args []Ref) (Ref, error) {
		vals, err := readArgs(env, params, args)
		if err != nil {
			return 0, err
		}
		return env.Undefined(), fn(env, vals)
	}
}

// EntryPrimitive is EntryValue for functions returning a boxed primitive.
// On failure the boxed zero value is returned alongside the thrown error.
func EntryPrimitive[T Primitive](params []*Type, fn func(env *Env, args []Value) (T, error)) NativeBody {
	return func(env *Env, _ Ref, args []Ref) (Ref, error) {
		var zero T
		vals, err := readArgs(env, params, args)
		if err == nil {
			var v T
			if v, err = fn(env, vals); err == nil {
				return Box(env, v)
			}
		}
		r, berr := Box(env, zero)
		if berr != nil {
			return 0, err
		}
		return r, err
	}
}
