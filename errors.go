package ffibridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

// ErrorKind classifies bridge failures.
type ErrorKind uint8

const (
	// EnvironmentError is a raw environment failure that fits no other kind.
	EnvironmentError ErrorKind = iota
	// LookupError means a class, enum, namespace, method or function was not
	// found by name.
	LookupError
	// AccessError means reading or writing a property, field, element or
	// primitive failed.
	AccessError
	// ConstructionError means allocating an object or array failed.
	ConstructionError
	// UnsupportedTypeError rejects unsigned and 128-bit integers and
	// sequences without a length.
	UnsupportedTypeError
	// ConversionError means a string or char could not be converted.
	ConversionError
	// ThreadStateError means the calling goroutine has no usable
	// environment.
	ThreadStateError
	// VariantResolutionError means no enum variant matched a value.
	VariantResolutionError
)

var kindNames = [...]string{
	EnvironmentError:       "environment error",
	LookupError:            "lookup error",
	AccessError:            "access error",
	ConstructionError:      "construction error",
	UnsupportedTypeError:   "unsupported type",
	ConversionError:        "conversion error",
	ThreadStateError:       "thread state error",
	VariantResolutionError: "variant resolution error",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("error kind(%d)", uint8(k))
}

// Error is the structured error returned by every bridge operation.
type Error struct {
	Kind   ErrorKind
	Op     string     // operation, e.g. "find class"
	Name   string     // subject, e.g. a class or property name
	Status abi.Status // environment status, abi.OK when none
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("ffibridge: ")
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%q", e.Name))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Status != abi.OK {
		b.WriteString(" [")
		b.WriteString(e.Status.String())
		b.WriteByte(']')
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap exposes the cause and the environment status.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Status != abi.OK {
		errs = append(errs, e.Status)
	}
	return errs
}

// Is matches another *Error of the same kind. Op and Detail of the target
// must also match when set, so the Err* sentinels match a whole kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return (t.Op == "" || t.Op == e.Op) && (t.Detail == "" || t.Detail == e.Detail)
}

// Sentinels for errors.Is.
var (
	ErrEnvironment       = &Error{Kind: EnvironmentError}
	ErrLookup            = &Error{Kind: LookupError}
	ErrAccess            = &Error{Kind: AccessError}
	ErrConstruction      = &Error{Kind: ConstructionError}
	ErrUnsupportedType   = &Error{Kind: UnsupportedTypeError}
	ErrConversion        = &Error{Kind: ConversionError}
	ErrThreadState       = &Error{Kind: ThreadStateError}
	ErrVariantResolution = &Error{Kind: VariantResolutionError}
)

// errorBuilder assembles an *Error.
type errorBuilder struct {
	err Error
}

func newError(kind ErrorKind, op string) *errorBuilder {
	return &errorBuilder{err: Error{Kind: kind, Op: op}}
}

func (b *errorBuilder) name(n string) *errorBuilder {
	b.err.Name = n
	return b
}

func (b *errorBuilder) status(st abi.Status) *errorBuilder {
	b.err.Status = st
	return b
}

func (b *errorBuilder) detail(msg string, args ...any) *errorBuilder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *errorBuilder) cause(err error) *errorBuilder {
	b.err.Cause = err
	return b
}

func (b *errorBuilder) build() *Error {
	return &b.err
}

// statusError converts a failed status into an *Error of the given kind.
// It returns nil for abi.OK.
func statusError(st abi.Status, kind ErrorKind, op, name string) error {
	if st == abi.OK {
		return nil
	}
	return newError(kind, op).name(name).status(st).build()
}

// unsupported reports a value or type the foreign runtime cannot represent.
func unsupported(what string) error {
	return newError(UnsupportedTypeError, "").detail("%s is not supported", what).build()
}

// ArrayWithoutLengthError is returned when a sequence without a known length
// is serialized.
var ArrayWithoutLengthError = newError(UnsupportedTypeError, "serialize").
	detail("sequence without a known length").build()

// StatusOf returns the environment status carried by err, or abi.OK.
func StatusOf(err error) abi.Status {
	var e *Error
	if errors.As(err, &e) && e.Status != abi.OK {
		return e.Status
	}
	var st abi.Status
	if errors.As(err, &st) {
		return st
	}
	return abi.OK
}
