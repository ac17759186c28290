// Package rferrors defines the kind-based error taxonomy used across the
// session and engine runtime. Every error surfaced above the engine layer
// is one of a fixed set of kinds, never a bare wrapped error, so that HTTP
// handlers and the stdio adapter can map failures to the wire without
// inspecting error strings.
package rferrors

import "fmt"

// Kind names a class of failure, per the taxonomy in the core error design.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindOverloaded  Kind = "overloaded"
	KindInUse       Kind = "in_use"
	KindTimeout     Kind = "timeout"
	KindCancelled   Kind = "cancelled"
	KindEngineFault Kind = "engine_fault"
	KindEngineGone  Kind = "engine_gone"
	KindToolError   Kind = "tool_error"
	KindInternal    Kind = "internal"
)

// Error is the single error shape used throughout the runtime.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewNotFound(message string, cause error) *Error {
	return New(KindNotFound, message, cause)
}

func NewValidation(message string, cause error) *Error {
	return New(KindValidation, message, cause)
}

func NewOverloaded(message string, cause error) *Error {
	return New(KindOverloaded, message, cause)
}

func NewInUse(message string, cause error) *Error {
	return New(KindInUse, message, cause)
}

func NewTimeout(message string, cause error) *Error {
	return New(KindTimeout, message, cause)
}

func NewCancelled(message string, cause error) *Error {
	return New(KindCancelled, message, cause)
}

func NewEngineFault(message string, cause error) *Error {
	return New(KindEngineFault, message, cause)
}

func NewEngineGone(message string, cause error) *Error {
	return New(KindEngineGone, message, cause)
}

func NewToolError(message string, cause error) *Error {
	return New(KindToolError, message, cause)
}

func NewInternal(message string, cause error) *Error {
	return New(KindInternal, message, cause)
}

func is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	rfErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return rfErr.Kind == kind
}

func IsNotFound(err error) bool    { return is(err, KindNotFound) }
func IsValidation(err error) bool  { return is(err, KindValidation) }
func IsOverloaded(err error) bool  { return is(err, KindOverloaded) }
func IsInUse(err error) bool       { return is(err, KindInUse) }
func IsTimeout(err error) bool     { return is(err, KindTimeout) }
func IsCancelled(err error) bool   { return is(err, KindCancelled) }
func IsEngineFault(err error) bool { return is(err, KindEngineFault) }
func IsEngineGone(err error) bool  { return is(err, KindEngineGone) }
func IsToolError(err error) bool   { return is(err, KindToolError) }
func IsInternal(err error) bool    { return is(err, KindInternal) }

// HTTPStatus implements the status-code mapping table from the HTTP
// surface definition directly on the error, so handlers never hand-roll a
// switch over kinds.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindInUse:
		return 409
	case KindOverloaded:
		return 429
	case KindTimeout:
		return 504
	case KindCancelled:
		return 499
	case KindEngineGone:
		return 410
	case KindToolError:
		return 500
	case KindEngineFault, KindInternal:
		return 500
	default:
		return 500
	}
}
