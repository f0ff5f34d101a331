package jsvm

import (
	"errors"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

// Env is the environment of one attached goroutine. Local references index
// into locals; frames records where each local scope starts.
type Env[V any] struct {
	vm  *VM[V]
	gid uint64

	locals []V
	frames []int

	pending    V
	hasPending bool
	dead       bool
}

var _ abi.Env = (*Env[int])(nil)

// enter takes the engine lock and checks that the caller owns e. Callers
// must defer e.leave() when enter returns abi.OK.
func (e *Env[V]) enter() abi.Status {
	gid := e.vm.lk.lock()
	if e.dead {
		e.vm.lk.unlock()
		return abi.Error
	}
	if gid != e.gid {
		e.vm.lk.unlock()
		return abi.InvalidArgs
	}
	return abi.OK
}

func (e *Env[V]) leave() { e.vm.lk.unlock() }

func (e *Env[V]) push(v V) abi.Ref {
	e.locals = append(e.locals, v)
	return abi.LocalRef(uint32(len(e.locals) - 1))
}

func (e *Env[V]) resolve(r abi.Ref) (V, abi.Status) {
	var zero V
	if r.IsNil() {
		return zero, abi.IncorrectRef
	}
	if r.IsGlobal() {
		v, ok := e.vm.globals.get(r.Slot())
		if !ok {
			return zero, abi.IncorrectRef
		}
		return v, abi.OK
	}
	i := int(r.Slot())
	if i >= len(e.locals) {
		return zero, abi.IncorrectRef
	}
	return e.locals[i], abi.OK
}

func (e *Env[V]) resolveAll(refs []abi.Ref) ([]V, abi.Status) {
	out := make([]V, len(refs))
	for i, r := range refs {
		v, st := e.resolve(r)
		if st != abi.OK {
			return nil, st
		}
		out[i] = v
	}
	return out, abi.OK
}

func (e *Env[V]) pushFrame() {
	e.frames = append(e.frames, len(e.locals))
}

func (e *Env[V]) popFrame() bool {
	n := len(e.frames)
	if n == 0 {
		return false
	}
	start := e.frames[n-1]
	e.frames = e.frames[:n-1]
	var zero V
	for i := start; i < len(e.locals); i++ {
		e.vm.eng.Free(e.locals[i])
		e.locals[i] = zero
	}
	e.locals = e.locals[:start]
	return true
}

func (e *Env[V]) release() {
	for _, v := range e.locals {
		e.vm.eng.Free(v)
	}
	e.locals = nil
	e.frames = nil
	if e.hasPending {
		e.vm.eng.Free(e.takePending())
	}
	e.dead = true
}

func (e *Env[V]) setPending(v V) {
	if e.hasPending {
		e.vm.eng.Free(e.pending)
	}
	e.pending = v
	e.hasPending = true
}

func (e *Env[V]) takePending() V {
	var zero V
	v := e.pending
	e.pending = zero
	e.hasPending = false
	return v
}

// fail maps an engine error to a status. A script exception becomes the
// pending error.
func (e *Env[V]) fail(err error) abi.Status {
	var t *Thrown[V]
	if errors.As(err, &t) {
		e.setPending(t.Value)
		return abi.PendingError
	}
	return abi.Error
}

// call invokes a prelude helper with an undefined receiver.
func (e *Env[V]) call(fn V, args ...V) (V, abi.Status) {
	eng := e.vm.eng
	undef := eng.Undefined()
	defer eng.Free(undef)
	v, err := eng.Call(fn, undef, args)
	if err != nil {
		return v, e.fail(err)
	}
	return v, abi.OK
}

func (e *Env[V]) test(fn V, args ...V) (bool, abi.Status) {
	v, st := e.call(fn, args...)
	if st != abi.OK {
		return false, st
	}
	defer e.vm.eng.Free(v)
	return e.vm.eng.ToBool(v), abi.OK
}

func (e *Env[V]) typeOf(v V) (string, abi.Status) {
	t, st := e.call(e.vm.pre.typeOf, v)
	if st != abi.OK {
		return "", st
	}
	defer e.vm.eng.Free(t)
	s, err := e.vm.eng.ToString(t)
	if err != nil {
		return "", e.fail(err)
	}
	return s, abi.OK
}

func (e *Env[V]) isFunction(v V) bool {
	ok, st := e.test(e.vm.pre.isFunction, v)
	return st == abi.OK && ok
}

func (e *Env[V]) hasOwn(obj V, key string) (bool, abi.Status) {
	k, err := e.vm.eng.NewString(key)
	if err != nil {
		return false, e.fail(err)
	}
	defer e.vm.eng.Free(k)
	return e.test(e.vm.pre.hasOwn, obj, k)
}

func (e *Env[V]) get(obj V, key string) (V, abi.Status) {
	v, err := e.vm.eng.Get(obj, key)
	if err != nil {
		return v, e.fail(err)
	}
	return v, abi.OK
}

// getFunction reads obj[key] and keeps it only if it is callable.
func (e *Env[V]) getFunction(obj V, key string) (abi.Ref, abi.Status) {
	v, st := e.get(obj, key)
	if st != abi.OK {
		return 0, st
	}
	if !e.isFunction(v) {
		e.vm.eng.Free(v)
		return 0, abi.NotFound
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) isNullish(v V) bool {
	return e.vm.eng.IsUndefined(v) || e.vm.eng.IsNull(v)
}

func (e *Env[V]) arrayLength(v V) (int, abi.Status) {
	ok, st := e.test(e.vm.pre.isArray, v)
	if st != abi.OK {
		return 0, st
	}
	if !ok {
		return 0, abi.InvalidType
	}
	n, st := e.get(v, "length")
	if st != abi.OK {
		return 0, st
	}
	defer e.vm.eng.Free(n)
	f, err := e.vm.eng.ToNumber(n)
	if err != nil {
		return 0, e.fail(err)
	}
	return int(f), abi.OK
}

func (e *Env[V]) GetVersion() uint32 { return abi.Version }

func (e *Env[V]) Undefined() abi.Ref {
	if e.enter() != abi.OK {
		return 0
	}
	defer e.leave()
	return e.push(e.vm.eng.Undefined())
}

func (e *Env[V]) Null() abi.Ref {
	if e.enter() != abi.OK {
		return 0
	}
	defer e.leave()
	return e.push(e.vm.eng.Null())
}

func (e *Env[V]) IsUndefined(r abi.Ref) (bool, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return false, st
	}
	defer e.leave()
	v, st := e.resolve(r)
	if st != abi.OK {
		return false, st
	}
	return e.vm.eng.IsUndefined(v), abi.OK
}

func (e *Env[V]) IsNull(r abi.Ref) (bool, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return false, st
	}
	defer e.leave()
	v, st := e.resolve(r)
	if st != abi.OK {
		return false, st
	}
	return e.vm.eng.IsNull(v), abi.OK
}

func (e *Env[V]) StrictEquals(a, b abi.Ref) (bool, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return false, st
	}
	defer e.leave()
	va, st := e.resolve(a)
	if st != abi.OK {
		return false, st
	}
	vb, st := e.resolve(b)
	if st != abi.OK {
		return false, st
	}
	return e.vm.eng.StrictEquals(va, vb), abi.OK
}

func (e *Env[V]) InstanceOf(obj, class abi.Ref) (bool, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return false, st
	}
	defer e.leave()
	vo, st := e.resolve(obj)
	if st != abi.OK {
		return false, st
	}
	vc, st := e.resolve(class)
	if st != abi.OK {
		return false, st
	}
	if !e.isFunction(vc) {
		return false, abi.InvalidType
	}
	return e.test(e.vm.pre.instanceOf, vo, vc)
}

func (e *Env[V]) GlobalReferenceCreate(r abi.Ref) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.resolve(r)
	if st != abi.OK {
		return 0, st
	}
	return abi.GlobalRef(e.vm.globals.put(e.vm.eng.Dup(v))), abi.OK
}

func (e *Env[V]) GlobalReferenceDelete(r abi.Ref) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	if !r.IsGlobal() || r.IsNil() {
		return abi.IncorrectRef
	}
	v, ok := e.vm.globals.take(r.Slot())
	if !ok {
		return abi.IncorrectRef
	}
	e.vm.eng.Free(v)
	return abi.OK
}

func (e *Env[V]) CreateLocalScope(capacity int) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	if capacity < 0 {
		return abi.InvalidArgs
	}
	e.pushFrame()
	return abi.OK
}

func (e *Env[V]) DestroyLocalScope() abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	if !e.popFrame() {
		return abi.InvalidArgs
	}
	return abi.OK
}

// lookupPath resolves a dotted name. The first segment is read from the
// global object and, failing that, evaluated as an identifier so that
// lexical class declarations are found too.
func (e *Env[V]) lookupPath(name string) (V, abi.Status) {
	var zero V
	if name == "" {
		return zero, abi.InvalidArgs
	}
	eng := e.vm.eng
	parts := strings.Split(name, ".")
	cur, st := e.get(e.vm.pre.global, parts[0])
	if st != abi.OK {
		return zero, st
	}
	if eng.IsUndefined(cur) && isIdentifier(parts[0]) {
		eng.Free(cur)
		id, err := eng.NewString(parts[0])
		if err != nil {
			return zero, e.fail(err)
		}
		cur, st = e.call(e.vm.pre.lookup, id)
		eng.Free(id)
		if st != abi.OK {
			return zero, st
		}
	}
	for _, p := range parts[1:] {
		if e.isNullish(cur) {
			eng.Free(cur)
			return zero, abi.NotFound
		}
		next, st := e.get(cur, p)
		eng.Free(cur)
		if st != abi.OK {
			return zero, st
		}
		cur = next
	}
	if e.isNullish(cur) {
		eng.Free(cur)
		return zero, abi.NotFound
	}
	return cur, abi.OK
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (e *Env[V]) FindClass(name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.lookupPath(name)
	if st != abi.OK {
		return 0, st
	}
	if !e.isFunction(v) {
		e.vm.eng.Free(v)
		return 0, abi.NotFound
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) FindEnum(name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.lookupPath(name)
	if st != abi.OK {
		return 0, st
	}
	if !e.isFunction(v) {
		e.vm.eng.Free(v)
		return 0, abi.NotFound
	}
	if ok, st := e.hasOwn(v, "values"); st != abi.OK || !ok {
		e.vm.eng.Free(v)
		return 0, abi.NotFound
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) FindNamespace(name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.lookupPath(name)
	if st != abi.OK {
		return 0, st
	}
	t, st := e.typeOf(v)
	if st != abi.OK || (t != "object" && t != "function") {
		e.vm.eng.Free(v)
		return 0, abi.NotFound
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) FindFunction(ns abi.Ref, name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.resolve(ns)
	if st != abi.OK {
		return 0, st
	}
	return e.getFunction(v, name)
}

func (e *Env[V]) FindMethod(class abi.Ref, name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.resolve(class)
	if st != abi.OK {
		return 0, st
	}
	proto, st := e.get(v, "prototype")
	if st != abi.OK {
		return 0, st
	}
	defer e.vm.eng.Free(proto)
	if e.isNullish(proto) {
		return 0, abi.InvalidType
	}
	return e.getFunction(proto, name)
}

func (e *Env[V]) FindStaticMethod(class abi.Ref, name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.resolve(class)
	if st != abi.OK {
		return 0, st
	}
	return e.getFunction(v, name)
}

func (e *Env[V]) NewObject(class abi.Ref, args ...abi.Ref) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	c, st := e.resolve(class)
	if st != abi.OK {
		return 0, st
	}
	vs, st := e.resolveAll(args)
	if st != abi.OK {
		return 0, st
	}
	obj, err := e.vm.eng.Construct(c, vs)
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(obj), abi.OK
}

func (e *Env[V]) GetProperty(obj abi.Ref, name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	o, st := e.resolve(obj)
	if st != abi.OK {
		return 0, st
	}
	if e.isNullish(o) {
		return 0, abi.InvalidArgs
	}
	v, st := e.get(o, name)
	if st != abi.OK {
		return 0, st
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) SetProperty(obj abi.Ref, name string, val abi.Ref) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	o, st := e.resolve(obj)
	if st != abi.OK {
		return st
	}
	v, st := e.resolve(val)
	if st != abi.OK {
		return st
	}
	if e.isNullish(o) {
		return abi.InvalidArgs
	}
	if err := e.vm.eng.Set(o, name, v); err != nil {
		return e.fail(err)
	}
	return abi.OK
}

func (e *Env[V]) GetField(obj abi.Ref, name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	o, st := e.resolve(obj)
	if st != abi.OK {
		return 0, st
	}
	ok, st := e.hasOwn(o, name)
	if st != abi.OK {
		return 0, st
	}
	if !ok {
		return 0, abi.NotFound
	}
	v, st := e.get(o, name)
	if st != abi.OK {
		return 0, st
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) SetField(obj abi.Ref, name string, val abi.Ref) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	o, st := e.resolve(obj)
	if st != abi.OK {
		return st
	}
	v, st := e.resolve(val)
	if st != abi.OK {
		return st
	}
	ok, st := e.hasOwn(o, name)
	if st != abi.OK {
		return st
	}
	if !ok {
		return abi.NotFound
	}
	if err := e.vm.eng.Set(o, name, v); err != nil {
		return e.fail(err)
	}
	return abi.OK
}

func (e *Env[V]) invoke(fn, this abi.Ref, useThis bool, args []abi.Ref) (abi.Ref, abi.Status) {
	f, st := e.resolve(fn)
	if st != abi.OK {
		return 0, st
	}
	if !e.isFunction(f) {
		return 0, abi.InvalidType
	}
	vs, st := e.resolveAll(args)
	if st != abi.OK {
		return 0, st
	}
	eng := e.vm.eng
	var recv V
	if useThis {
		if recv, st = e.resolve(this); st != abi.OK {
			return 0, st
		}
	} else {
		recv = eng.Undefined()
		defer eng.Free(recv)
	}
	v, err := eng.Call(f, recv, vs)
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) CallMethod(obj, method abi.Ref, args ...abi.Ref) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	return e.invoke(method, obj, true, args)
}

func (e *Env[V]) CallMethodByName(obj abi.Ref, name string, args ...abi.Ref) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	o, st := e.resolve(obj)
	if st != abi.OK {
		return 0, st
	}
	if e.isNullish(o) {
		return 0, abi.InvalidArgs
	}
	m, st := e.getFunction(o, name)
	if st != abi.OK {
		return 0, st
	}
	return e.invoke(m, obj, true, args)
}

func (e *Env[V]) CallStaticMethod(class, method abi.Ref, args ...abi.Ref) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	return e.invoke(method, class, true, args)
}

func (e *Env[V]) CallFunction(fn abi.Ref, args ...abi.Ref) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	return e.invoke(fn, 0, false, args)
}

func (e *Env[V]) Box(kind abi.Kind, bits uint64) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	if kind < abi.KindBool || kind > abi.KindChar {
		return 0, abi.InvalidArgs
	}
	eng := e.vm.eng
	var inner V
	switch kind {
	case abi.KindBool:
		inner = eng.NewBool(bits != 0)
	case abi.KindByte, abi.KindShort, abi.KindInt:
		inner = eng.NewNumber(float64(int64(bits)))
	case abi.KindLong:
		var err error
		if inner, err = eng.NewBigInt(int64(bits)); err != nil {
			return 0, e.fail(err)
		}
	case abi.KindFloat:
		inner = eng.NewNumber(float64(math.Float32frombits(uint32(bits))))
	case abi.KindDouble:
		inner = eng.NewNumber(math.Float64frombits(bits))
	case abi.KindChar:
		inner = eng.NewNumber(float64(uint16(bits)))
	}
	defer eng.Free(inner)
	obj, err := eng.Construct(e.vm.pre.boxes[kind], []V{inner})
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(obj), abi.OK
}

var intRange = map[abi.Kind][2]float64{
	abi.KindByte:  {math.MinInt8, math.MaxInt8},
	abi.KindShort: {math.MinInt16, math.MaxInt16},
	abi.KindInt:   {math.MinInt32, math.MaxInt32},
	abi.KindChar:  {0, math.MaxUint16},
}

// Unbox accepts an instance of the kind's wrapper class or a bare script
// primitive of the matching type.
func (e *Env[V]) Unbox(kind abi.Kind, r abi.Ref) (uint64, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	if kind < abi.KindBool || kind > abi.KindChar {
		return 0, abi.InvalidArgs
	}
	eng := e.vm.eng
	v, st := e.resolve(r)
	if st != abi.OK {
		return 0, st
	}
	t, st := e.typeOf(v)
	if st != abi.OK {
		return 0, st
	}
	if t == "object" {
		if eng.IsNull(v) {
			return 0, abi.InvalidType
		}
		ok, st := e.test(e.vm.pre.instanceOf, v, e.vm.pre.boxes[kind])
		if st != abi.OK {
			return 0, st
		}
		if !ok {
			return 0, abi.InvalidType
		}
		inner, st := e.get(v, "value")
		if st != abi.OK {
			return 0, st
		}
		defer eng.Free(inner)
		v = inner
		if t, st = e.typeOf(v); st != abi.OK {
			return 0, st
		}
	}

	switch kind {
	case abi.KindBool:
		if t != "boolean" {
			return 0, abi.InvalidType
		}
		if eng.ToBool(v) {
			return 1, abi.OK
		}
		return 0, abi.OK
	case abi.KindLong:
		switch t {
		case "bigint":
			i, err := eng.ToBigInt(v)
			if err != nil {
				return 0, e.fail(err)
			}
			return uint64(i), abi.OK
		case "number":
			f, err := eng.ToNumber(v)
			if err != nil {
				return 0, e.fail(err)
			}
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return 0, abi.InvalidType
			}
			return uint64(int64(f)), abi.OK
		}
		return 0, abi.InvalidType
	case abi.KindFloat, abi.KindDouble:
		if t != "number" {
			return 0, abi.InvalidType
		}
		f, err := eng.ToNumber(v)
		if err != nil {
			return 0, e.fail(err)
		}
		if kind == abi.KindFloat {
			return uint64(math.Float32bits(float32(f))), abi.OK
		}
		return math.Float64bits(f), abi.OK
	}

	// Byte, Short, Int and Char.
	if kind == abi.KindChar && t == "string" {
		s, err := eng.ToString(v)
		if err != nil {
			return 0, e.fail(err)
		}
		units := utf16.Encode([]rune(s))
		if len(units) != 1 {
			return 0, abi.InvalidType
		}
		return uint64(units[0]), abi.OK
	}
	if t != "number" {
		return 0, abi.InvalidType
	}
	f, err := eng.ToNumber(v)
	if err != nil {
		return 0, e.fail(err)
	}
	lim := intRange[kind]
	if f != math.Trunc(f) || f < lim[0] || f > lim[1] {
		return 0, abi.InvalidType
	}
	return uint64(int64(f)), abi.OK
}

func (e *Env[V]) StringNewUTF8(s string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, err := e.vm.eng.NewString(s)
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) stringOf(r abi.Ref) (string, abi.Status) {
	v, st := e.resolve(r)
	if st != abi.OK {
		return "", st
	}
	t, st := e.typeOf(v)
	if st != abi.OK {
		return "", st
	}
	if t != "string" {
		return "", abi.InvalidType
	}
	s, err := e.vm.eng.ToString(v)
	if err != nil {
		return "", e.fail(err)
	}
	return s, abi.OK
}

func (e *Env[V]) StringGetUTF8Size(r abi.Ref) (int, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	s, st := e.stringOf(r)
	if st != abi.OK {
		return 0, st
	}
	return len(s), abi.OK
}

func (e *Env[V]) StringGetUTF8(r abi.Ref, buf []byte) (int, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	s, st := e.stringOf(r)
	if st != abi.OK {
		return 0, st
	}
	if len(buf) < len(s)+1 {
		return 0, abi.BufferTooSmall
	}
	n := copy(buf, s)
	buf[n] = 0
	return n, abi.OK
}

func (e *Env[V]) ArrayNew(length int) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	if length < 0 || int64(length) > math.MaxUint32 {
		return 0, abi.InvalidArgs
	}
	n := e.vm.eng.NewNumber(float64(length))
	defer e.vm.eng.Free(n)
	v, st := e.call(e.vm.pre.newArray, n)
	if st != abi.OK {
		return 0, st
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) ArrayLength(r abi.Ref) (int, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.resolve(r)
	if st != abi.OK {
		return 0, st
	}
	return e.arrayLength(v)
}

func (e *Env[V]) element(r abi.Ref, index int) (abi.Ref, abi.Status) {
	v, st := e.resolve(r)
	if st != abi.OK {
		return 0, st
	}
	n, st := e.arrayLength(v)
	if st != abi.OK {
		return 0, st
	}
	if index < 0 || index >= n {
		return 0, abi.OutOfRange
	}
	item, err := e.vm.eng.GetIndex(v, uint32(index))
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(item), abi.OK
}

func (e *Env[V]) ArrayGet(r abi.Ref, index int) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	return e.element(r, index)
}

func (e *Env[V]) ArraySet(r abi.Ref, index int, val abi.Ref) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	v, st := e.resolve(r)
	if st != abi.OK {
		return st
	}
	item, st := e.resolve(val)
	if st != abi.OK {
		return st
	}
	n, st := e.arrayLength(v)
	if st != abi.OK {
		return st
	}
	if index < 0 || index >= n {
		return abi.OutOfRange
	}
	if err := e.vm.eng.SetIndex(v, uint32(index), item); err != nil {
		return e.fail(err)
	}
	return abi.OK
}

// TupleGetItem reads a tuple element. Tuples are represented as arrays.
func (e *Env[V]) TupleGetItem(r abi.Ref, index int) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	return e.element(r, index)
}

func (e *Env[V]) ArrayBufferCreate(data []byte) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, err := e.vm.eng.NewArrayBuffer(data)
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(v), abi.OK
}

func (e *Env[V]) ArrayBufferData(r abi.Ref) ([]byte, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return nil, st
	}
	defer e.leave()
	v, st := e.resolve(r)
	if st != abi.OK {
		return nil, st
	}
	ok, st := e.test(e.vm.pre.instanceOf, v, e.vm.pre.arrayBuffer)
	if st != abi.OK {
		return nil, st
	}
	if !ok {
		return nil, abi.InvalidType
	}
	data, err := e.vm.eng.ArrayBufferData(v)
	if err != nil {
		return nil, e.fail(err)
	}
	return data, abi.OK
}

func (e *Env[V]) EnumGetItemByName(enum abi.Ref, name string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	en, st := e.resolve(enum)
	if st != abi.OK {
		return 0, st
	}
	ok, st := e.hasOwn(en, name)
	if st != abi.OK {
		return 0, st
	}
	if !ok {
		return 0, abi.NotFound
	}
	item, st := e.get(en, name)
	if st != abi.OK {
		return 0, st
	}
	if ok, st := e.test(e.vm.pre.instanceOf, item, en); st != abi.OK || !ok {
		e.vm.eng.Free(item)
		return 0, abi.NotFound
	}
	return e.push(item), abi.OK
}

func (e *Env[V]) EnumGetItemByIndex(enum abi.Ref, index int) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	en, st := e.resolve(enum)
	if st != abi.OK {
		return 0, st
	}
	values, st := e.get(en, "values")
	if st != abi.OK {
		return 0, st
	}
	defer e.vm.eng.Free(values)
	n, st := e.arrayLength(values)
	if st != abi.OK {
		return 0, abi.InvalidType
	}
	if index < 0 || index >= n {
		return 0, abi.OutOfRange
	}
	item, err := e.vm.eng.GetIndex(values, uint32(index))
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(item), abi.OK
}

func (e *Env[V]) EnumItemGetIndex(item abi.Ref) (int, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, st := e.resolve(item)
	if st != abi.OK {
		return 0, st
	}
	if e.isNullish(v) {
		return 0, abi.InvalidType
	}
	ord, st := e.get(v, "ordinal")
	if st != abi.OK {
		return 0, st
	}
	defer e.vm.eng.Free(ord)
	if t, st := e.typeOf(ord); st != abi.OK || t != "number" {
		return 0, abi.InvalidType
	}
	f, err := e.vm.eng.ToNumber(ord)
	if err != nil {
		return 0, e.fail(err)
	}
	return int(f), abi.OK
}

func (e *Env[V]) EnumItemGetName(item abi.Ref) (string, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return "", st
	}
	defer e.leave()
	v, st := e.resolve(item)
	if st != abi.OK {
		return "", st
	}
	if e.isNullish(v) {
		return "", abi.InvalidType
	}
	name, st := e.get(v, "name")
	if st != abi.OK {
		return "", st
	}
	defer e.vm.eng.Free(name)
	if t, st := e.typeOf(name); st != abi.OK || t != "string" {
		return "", abi.InvalidType
	}
	s, err := e.vm.eng.ToString(name)
	if err != nil {
		return "", e.fail(err)
	}
	return s, abi.OK
}

func (e *Env[V]) ThrowError(err abi.Ref) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	v, st := e.resolve(err)
	if st != abi.OK {
		return st
	}
	e.setPending(e.vm.eng.Dup(v))
	return abi.OK
}

func (e *Env[V]) ExistUnhandledError() (bool, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return false, st
	}
	defer e.leave()
	return e.hasPending, abi.OK
}

func (e *Env[V]) GetUnhandledError() (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	if !e.hasPending {
		return 0, abi.NotFound
	}
	return e.push(e.takePending()), abi.OK
}

func (e *Env[V]) ResetError() abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	if e.hasPending {
		e.vm.eng.Free(e.takePending())
	}
	return abi.OK
}

func (e *Env[V]) DescribeError() (string, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return "", st
	}
	defer e.leave()
	if !e.hasPending {
		return "", abi.OK
	}
	exc := e.takePending()
	defer e.vm.eng.Free(exc)
	d, st := e.call(e.vm.pre.describe, exc)
	if st != abi.OK {
		return "", st
	}
	defer e.vm.eng.Free(d)
	s, err := e.vm.eng.ToString(d)
	if err != nil {
		return "", e.fail(err)
	}
	return s, abi.OK
}

// BindNativeFunctions installs fns on target. When target is a class,
// non-static functions go on its prototype.
func (e *Env[V]) BindNativeFunctions(target abi.Ref, fns []abi.NativeFunction) abi.Status {
	if st := e.enter(); st != abi.OK {
		return st
	}
	defer e.leave()
	t, st := e.resolve(target)
	if st != abi.OK {
		return st
	}
	if e.isNullish(t) {
		return abi.InvalidArgs
	}
	eng := e.vm.eng
	isClass := e.isFunction(t)

	var proto V
	if isClass {
		if proto, st = e.get(t, "prototype"); st != abi.OK {
			return st
		}
		defer eng.Free(proto)
	}
	for _, fn := range fns {
		if fn.Name == "" || fn.Fn == nil {
			return abi.InvalidArgs
		}
		holder := t
		if isClass && !fn.Static {
			holder = proto
		}
		exists, st := e.hasOwn(holder, fn.Name)
		if st != abi.OK {
			return st
		}
		if exists {
			return abi.AlreadyBinded
		}
		f, err := eng.NewFunction(fn.Name, e.vm.hostFunc(fn.Name, fn.Fn))
		if err != nil {
			return e.fail(err)
		}
		err = eng.Set(holder, fn.Name, f)
		eng.Free(f)
		if err != nil {
			return e.fail(err)
		}
	}
	return abi.OK
}

// Eval runs a script in the engine and returns its completion value. It is
// not part of the abi table; hosts reach it through a type assertion.
func (e *Env[V]) Eval(code, filename string) (abi.Ref, abi.Status) {
	if st := e.enter(); st != abi.OK {
		return 0, st
	}
	defer e.leave()
	v, err := e.vm.eng.Eval(code, filename)
	if err != nil {
		return 0, e.fail(err)
	}
	return e.push(v), abi.OK
}

// LocalCount reports the number of live local references.
func (e *Env[V]) LocalCount() int {
	if e.enter() != abi.OK {
		return 0
	}
	defer e.leave()
	return len(e.locals)
}
