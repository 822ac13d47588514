package coregrpc

import (
	"fmt"
	"strconv"
)

// A Code is one of gRPC's canonical status codes. There are no user-defined
// codes, so only the codes enumerated below are valid.
//
// See the specification at
// https://github.com/grpc/grpc/blob/master/doc/statuscodes.md for detailed
// descriptions of each code and example usage.
type Code uint32

const (
	CodeOK                 Code = 0  // success
	CodeCanceled           Code = 1  // canceled, usually by the caller
	CodeUnknown            Code = 2  // unknown error
	CodeInvalidArgument    Code = 3  // argument invalid regardless of system state
	CodeDeadlineExceeded   Code = 4  // operation expired, may or may not have completed
	CodeNotFound           Code = 5  // entity not found
	CodeAlreadyExists      Code = 6  // entity already exists
	CodePermissionDenied   Code = 7  // operation not authorized
	CodeResourceExhausted  Code = 8  // quota exhausted
	CodeFailedPrecondition Code = 9  // argument invalid in current system state
	CodeAborted            Code = 10 // operation aborted
	CodeOutOfRange         Code = 11 // out of bounds, use instead of CodeFailedPrecondition
	CodeUnimplemented      Code = 12 // operation not implemented or disabled
	CodeInternal           Code = 13 // internal error, reserved for "serious errors"
	CodeUnavailable        Code = 14 // unavailable, client should back off and retry
	CodeDataLoss           Code = 15 // unrecoverable data loss or corruption
	CodeUnauthenticated    Code = 16 // request isn't authenticated

	minCode Code = CodeOK
	maxCode Code = CodeUnauthenticated
)

var stringToCode = map[string]Code{
	"OK":                  CodeOK,
	"CANCELLED":           CodeCanceled, // the gRPC spec uses the British spelling
	"UNKNOWN":             CodeUnknown,
	"INVALID_ARGUMENT":    CodeInvalidArgument,
	"DEADLINE_EXCEEDED":   CodeDeadlineExceeded,
	"NOT_FOUND":           CodeNotFound,
	"ALREADY_EXISTS":      CodeAlreadyExists,
	"PERMISSION_DENIED":   CodePermissionDenied,
	"RESOURCE_EXHAUSTED":  CodeResourceExhausted,
	"FAILED_PRECONDITION": CodeFailedPrecondition,
	"ABORTED":             CodeAborted,
	"OUT_OF_RANGE":        CodeOutOfRange,
	"UNIMPLEMENTED":       CodeUnimplemented,
	"INTERNAL":            CodeInternal,
	"UNAVAILABLE":         CodeUnavailable,
	"DATA_LOSS":           CodeDataLoss,
	"UNAUTHENTICATED":     CodeUnauthenticated,
}

// MarshalText implements encoding.TextMarshaler. Codes are marshaled in their
// numeric representation, which is what gRPC puts on the wire in the
// grpc-status trailer.
func (c Code) MarshalText() ([]byte, error) {
	if c < minCode || c > maxCode {
		return nil, fmt.Errorf("invalid code %v", c)
	}
	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both numeric
// representations (as produced by MarshalText) and the all-caps strings from
// the gRPC specification.
func (c *Code) UnmarshalText(b []byte) error {
	if n, ok := stringToCode[string(b)]; ok {
		*c = n
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10 /* base */, 32 /* bitsize */)
	if err != nil {
		return fmt.Errorf("invalid code %q", string(b))
	}
	code := Code(n)
	if code < minCode || code > maxCode {
		return fmt.Errorf("invalid code %v", n)
	}
	*c = code
	return nil
}

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeCanceled:
		return "Canceled"
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeDeadlineExceeded:
		return "DeadlineExceeded"
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeResourceExhausted:
		return "ResourceExhausted"
	case CodeFailedPrecondition:
		return "FailedPrecondition"
	case CodeAborted:
		return "Aborted"
	case CodeOutOfRange:
		return "OutOfRange"
	case CodeUnimplemented:
		return "Unimplemented"
	case CodeInternal:
		return "Internal"
	case CodeUnavailable:
		return "Unavailable"
	case CodeDataLoss:
		return "DataLoss"
	case CodeUnauthenticated:
		return "Unauthenticated"
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// httpStatusUnsupportedMediaType and httpStatusUpgradeRequired are the HTTP
// statuses the handler skeleton writes when a request fails a
// transport-level precondition (content-type or protocol version). A
// grpc-status response header is still written alongside them (no trailers
// follow, since no framed body is sent).
const (
	httpStatusUnsupportedMediaType = 415
	httpStatusUpgradeRequired      = 426
)
