package coregrpc

import "strings"

// Well-known header and trailer names. gRPC headers are conventionally
// written in this mixed case in examples, but HTTP header lookups are
// case-insensitive, so Metadata lower-cases every key on the way in.
const (
	headerContentType        = "content-type"
	headerGRPCEncoding       = "grpc-encoding"
	headerGRPCAcceptEncoding = "grpc-accept-encoding"
	headerGRPCTimeout        = "grpc-timeout"
	headerTE                 = "te"
	headerHost               = "host"
	headerAcceptEncoding     = "accept-encoding"

	trailerGRPCStatus  = "grpc-status"
	trailerGRPCMessage = "grpc-message"

	// internalEncodingOverrideKey is consumed by ServerCallContext's
	// WriteResponseHeader to pick the per-call response encoding; it is never
	// copied verbatim into the response, only reflected into grpc-encoding.
	internalEncodingOverrideKey = "grpc-internal-encoding-request"

	binaryHeaderSuffix = "-bin"

	// contentTypeDefault is the bare, subtype-less gRPC content type; it
	// implies the "proto" codec.
	contentTypeDefault = "application/grpc"
	contentTypePrefix  = contentTypeDefault // shared prefix for +subtype / ;subtype forms
)

// filteredRequestHeaders never appear in the user-visible request headers
// view built by ServerCallContext: they're either HTTP/2 pseudo-headers
// (handled separately), transport plumbing, or already surfaced through
// typed accessors (Timeout, peer, etc).
var filteredRequestHeaders = map[string]bool{
	headerContentType:        true,
	headerTE:                 true,
	headerHost:               true,
	headerAcceptEncoding:     true,
	headerGRPCEncoding:       true,
	headerGRPCAcceptEncoding: true,
	headerGRPCTimeout:        true,
}

// codecNameFromContentType extracts the codec name implied by an
// already-validated gRPC content type. acceptContentType must be called
// first; this assumes the "application/grpc" prefix is present.
//
// application/grpc            -> "proto" (implicit default subtype)
// application/grpc+proto      -> "proto"
// application/grpc;proto      -> "proto"
// application/grpc+json       -> "json"
func codecNameFromContentType(contentType string) string {
	rest := strings.TrimPrefix(contentType, contentTypePrefix)
	if rest == "" {
		return "proto"
	}
	switch rest[0] {
	case '+', ';':
		name := strings.TrimSpace(rest[1:])
		if name == "" {
			return "proto"
		}
		return name
	default:
		return "proto"
	}
}

// acceptContentType reports whether contentType is one this core handles:
// exactly "application/grpc", or that prefix followed by "+" or ";" and a
// non-empty subtype. grpc-web content types are recognized as pass-through
// framing per spec but are out of scope for behavior beyond this check; we
// report them as not-accepted since this core never activates grpc-web
// handling.
func acceptContentType(contentType string) bool {
	if contentType == contentTypeDefault {
		return true
	}
	rest := strings.TrimPrefix(contentType, contentTypePrefix)
	if rest == contentType {
		// no prefix match at all
		return false
	}
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '+', ';':
		return len(rest) > 1
	default:
		return false
	}
}

// isGRPCWebContentType reports whether contentType names one of the
// pass-through grpc-web framing variants. Recognized only so the handler
// skeleton can give a clearer 415 message; grpc-web bridging itself is out
// of scope.
func isGRPCWebContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "application/grpc-web")
}
