package coregrpc

import (
	"errors"
	"fmt"
)

// Status is the terminal outcome of one call: a code, a human-readable
// detail message, and an optional cause. It is encoded into the response
// trailers by consolidateTrailers; it never appears on the wire in any
// other form (this core does not implement status-details-bin).
type Status struct {
	Code   Code
	Detail string
	Cause  error
}

// OK reports whether the status represents success.
func (s Status) OK() bool {
	return s.Code == CodeOK
}

// Error adapts a Status to the error interface, so handlers can return a
// single error value while interceptors and the error mapper can recover
// the original status with AsError.
type Error struct {
	status Status
	// trailer carries response-trailer metadata the handler wants sent
	// alongside this status, independent of Status itself.
	trailer Metadata
}

// NewError constructs an *Error carrying the given code and detail message.
func NewError(code Code, detail string) *Error {
	return &Error{status: Status{Code: code, Detail: detail}}
}

// NewErrorf is NewError with fmt.Sprintf-style formatting.
func NewErrorf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap adapts an arbitrary error into an *Error with the given code,
// preserving it as Cause. If err already is, or wraps, an *Error, Wrap
// returns that *Error unchanged (code included) instead of double-wrapping.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	if existing, ok := AsError(err); ok {
		return existing
	}
	return &Error{status: Status{Code: code, Detail: err.Error(), Cause: err}}
}

func (e *Error) Error() string {
	if e == nil {
		return CodeOK.String()
	}
	return fmt.Sprintf("%s: %s", e.status.Code, e.status.Detail)
}

// Unwrap exposes the wrapped cause, if any, so errors.Is/errors.As see
// through an *Error to the original failure.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.status.Cause
}

// Code returns the status code this error carries.
func (e *Error) Code() Code {
	if e == nil {
		return CodeOK
	}
	return e.status.Code
}

// Status returns the full status this error wraps.
func (e *Error) Status() Status {
	if e == nil {
		return Status{Code: CodeOK}
	}
	return e.status
}

// Trailer returns the response-trailer metadata attached to this error, if
// any. Never nil.
func (e *Error) Trailer() Metadata {
	if e == nil || e.trailer == nil {
		return make(Metadata)
	}
	return e.trailer
}

// SetTrailer replaces the response-trailer metadata carried alongside this
// error's status.
func (e *Error) SetTrailer(m Metadata) {
	e.trailer = m
}

// AsError reports whether err is, or wraps, an *Error, mirroring
// errors.As(err, &target) but returning the concrete pointer for
// convenience at call sites throughout the error mapper.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf extracts the Code carried by err, defaulting to CodeUnknown for
// errors that were never wrapped by this package.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if e, ok := AsError(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsCanceled reports whether err is, or wraps, errCallCanceled: the cause
// recorded when the call's own deadline fires or its transport aborts. A
// bare context.Canceled is not recognized (isCancellationShaped covers that).
func IsCanceled(err error) bool {
	return errors.Is(err, errCallCanceled)
}
