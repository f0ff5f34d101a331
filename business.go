package ffibridge

import (
	"errors"
	"fmt"

	"github.com/Gaurav-Gosain/ffibridge/abi"
	"github.com/Gaurav-Gosain/ffibridge/internal/jsvm"
)

// Business error codes.
const (
	CodeOK         int32 = 0
	CodeUnknown    int32 = -1
	CodePermission int32 = 201
	CodeParameter  int32 = 401
)

// BusinessError is the code and message surfaced to foreign callers when a
// native call fails.
type BusinessError struct {
	Code    int32
	Message string
}

// Predefined business errors.
var (
	PermissionError = &BusinessError{Code: CodePermission, Message: "Permission denied"}
	ParameterError  = &BusinessError{Code: CodeParameter, Message: "Parameter error"}
)

func NewBusinessError(code int32, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// Ok is the business error async completions report on success.
func Ok() *BusinessError {
	return &BusinessError{Code: CodeOK, Message: "Ok"}
}

func (b *BusinessError) Error() string {
	return fmt.Sprintf("business error %d: %s", b.Code, b.Message)
}

// IsOk reports whether b is nil or carries CodeOK.
func (b *BusinessError) IsOk() bool { return b == nil || b.Code == CodeOK }

// BusinessErrorFrom converts err. A wrapped *BusinessError is returned as
// is; otherwise the code is the environment status carried by err, or
// CodeUnknown.
func BusinessErrorFrom(err error) *BusinessError {
	if err == nil {
		return nil
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return be
	}
	code := CodeUnknown
	if st := StatusOf(err); st != abi.OK {
		code = int32(st)
	}
	return &BusinessError{Code: code, Message: err.Error()}
}

var businessErrorClass = jsvm.Namespace + ".BusinessError"

// NewBusinessError constructs the foreign form of be: an Error carrying a
// numeric code and a message.
func (e *Env) NewBusinessError(be *BusinessError) (Ref, error) {
	code, err := Box(e, be.Code)
	if err != nil {
		return 0, err
	}
	msg, err := e.NewString(be.Message)
	if err != nil {
		return 0, err
	}
	return e.NewObjectByName(businessErrorClass, code, msg)
}

// ThrowBusinessError makes be the pending error.
func (e *Env) ThrowBusinessError(be *BusinessError) error {
	r, err := e.NewBusinessError(be)
	if err != nil {
		return err
	}
	return e.ThrowError(r)
}
