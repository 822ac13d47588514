package coregrpc

import "fmt"

// defaultMaxReceiveBytes is spec §3's MethodOptions default: 4 MiB.
const defaultMaxReceiveBytes = 4 * 1024 * 1024

// Interceptor wraps a handler's unary or streaming invocation. The ordered
// chain is concatenation of global-then-service interceptors, per spec
// §4.7.
type Interceptor interface {
	WrapUnary(UnaryFunc) UnaryFunc
	WrapStreamingHandler(StreamingHandlerFunc) StreamingHandlerFunc
}

// UnaryFunc is the shape of a fully-wrapped unary call: given a decoded
// request, produce a response or an error.
type UnaryFunc func(ctx *CallContext, req any) (any, error)

// StreamingHandlerFunc is the shape of a fully-wrapped streaming call
// (client-stream, server-stream, or duplex): it drives reads/writes
// directly against the CallContext's Stream and returns only a terminal
// error (or nil for success).
type StreamingHandlerFunc func(ctx *CallContext, stream *Stream) error

// MethodOptions is the immutable, per-method configuration resolved once
// at registration time by mergeOptions, per spec §3 / §4.7.
type MethodOptions struct {
	MaxReceiveBytes            int
	MaxSendBytes               int // 0 means unbounded
	DetailedErrors             bool
	ResponseCompressionName    string // "" means "negotiate from grpc-accept-encoding"
	Compressors                *CompressionRegistry
	Codecs                     *CodecRegistry
	Interceptors               []Interceptor
}

// GlobalOptions configures every method served by a Mux unless overridden
// per-service.
type GlobalOptions struct {
	MaxReceiveBytes         int
	MaxSendBytes            int
	DetailedErrors          bool
	ResponseCompressionName string
	Compressors             *CompressionRegistry
	Codecs                  *CodecRegistry
	Interceptors            []Interceptor
}

// ServiceOptions overrides GlobalOptions for every method of one service.
// Every field is a pointer/slice so "unset" is distinguishable from "set
// to the zero value", enabling the per-field service -> global -> hard
// default fallback spec §4.7 describes.
type ServiceOptions struct {
	MaxReceiveBytes         *int
	MaxSendBytes            *int
	DetailedErrors          *bool
	ResponseCompressionName *string
	Compressors             *CompressionRegistry
	Codecs                  *CodecRegistry
	Interceptors            []Interceptor
}

// ResolveMethodOptions is the exported entry point registration code uses
// to compute one method's final MethodOptions; it is a thin wrapper over
// mergeOptions so callers outside this package never need to depend on an
// unexported function.
func ResolveMethodOptions(global GlobalOptions, svc *ServiceOptions) (MethodOptions, error) {
	return mergeOptions(global, svc)
}

// mergeOptions resolves one method's final MethodOptions: per-field
// fallback service -> global -> hard default, interceptors concatenated
// global-then-service, and validates that a configured
// ResponseCompressionName actually names a registered provider.
func mergeOptions(global GlobalOptions, svc *ServiceOptions) (MethodOptions, error) {
	out := MethodOptions{
		MaxReceiveBytes: defaultMaxReceiveBytes,
		MaxSendBytes:    0,
		Compressors:     DefaultCompressionRegistry(),
		Codecs:          DefaultCodecRegistry(),
	}

	if global.MaxReceiveBytes != 0 {
		out.MaxReceiveBytes = global.MaxReceiveBytes
	}
	if global.MaxSendBytes != 0 {
		out.MaxSendBytes = global.MaxSendBytes
	}
	out.DetailedErrors = global.DetailedErrors
	out.ResponseCompressionName = global.ResponseCompressionName
	if global.Compressors != nil {
		out.Compressors = global.Compressors
	}
	if global.Codecs != nil {
		out.Codecs = global.Codecs
	}
	out.Interceptors = append(out.Interceptors, global.Interceptors...)

	if svc != nil {
		if svc.MaxReceiveBytes != nil {
			out.MaxReceiveBytes = *svc.MaxReceiveBytes
		}
		if svc.MaxSendBytes != nil {
			out.MaxSendBytes = *svc.MaxSendBytes
		}
		if svc.DetailedErrors != nil {
			out.DetailedErrors = *svc.DetailedErrors
		}
		if svc.ResponseCompressionName != nil {
			out.ResponseCompressionName = *svc.ResponseCompressionName
		}
		if svc.Compressors != nil {
			out.Compressors = svc.Compressors
		}
		if svc.Codecs != nil {
			out.Codecs = svc.Codecs
		}
		out.Interceptors = append(out.Interceptors, svc.Interceptors...)
	}

	if out.ResponseCompressionName != "" && !out.Compressors.Has(out.ResponseCompressionName) {
		return MethodOptions{}, fmt.Errorf(
			"coregrpc: response_compression_name %q is not a registered compression provider",
			out.ResponseCompressionName,
		)
	}
	return out, nil
}
