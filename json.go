package ffibridge

import "github.com/Gaurav-Gosain/ffibridge/abi"

// JSONValue is a foreign value kept as a reference. It serializes and
// deserializes as itself and converts to and from JSON text through the
// runtime's JSON object.
type JSONValue Ref

// JSONStringify renders r with the runtime's JSON.stringify. Values without
// a JSON form, such as undefined or a function, are a ConversionError, and
// so is a thrown exception, which is described and cleared.
func (e *Env) JSONStringify(r Ref) (string, error) {
	out, err := e.callJSON("stringify", r)
	if err != nil {
		return "", err
	}
	if undef, _ := e.IsUndefined(out); undef {
		return "", newError(ConversionError, "json stringify").name(r.String()).
			detail("value has no JSON form").build()
	}
	return e.GetString(out)
}

// JSONParse builds a foreign value from JSON text with the runtime's
// JSON.parse. Malformed text is a ConversionError.
func (e *Env) JSONParse(text string) (Ref, error) {
	s, err := e.NewString(text)
	if err != nil {
		return 0, err
	}
	return e.callJSON("parse", s)
}

func (e *Env) callJSON(method string, arg Ref) (Ref, error) {
	ns, err := e.FindNamespace("JSON")
	if err != nil {
		return 0, err
	}
	r, err := e.CallMethodByName(ns, method, arg)
	if err == nil {
		return r, nil
	}
	if StatusOf(err) != abi.PendingError {
		return 0, err
	}
	b := newError(ConversionError, "json "+method).cause(err)
	if msg, _ := e.DescribeError(); msg != "" {
		b.detail("%s", msg)
	}
	return 0, b.build()
}

// ParseJSON is JSONParse returning a JSONValue.
func ParseJSON(env *Env, text string) (JSONValue, error) {
	r, err := env.JSONParse(text)
	return JSONValue(r), err
}

// Ref returns the underlying reference.
func (j JSONValue) Ref() Ref { return Ref(j) }

// Stringify renders j as JSON text.
func (j JSONValue) Stringify(env *Env) (string, error) {
	return env.JSONStringify(Ref(j))
}

// IntoGlobal promotes j so it outlives the current local scope.
func (j JSONValue) IntoGlobal(env *Env) (*GlobalRef, error) {
	return env.Promote(Ref(j))
}
