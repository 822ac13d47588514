package coregrpc

import (
	"context"
	"net/http"
	"time"

	"github.com/coregrpc/coregrpc/internal/bufferpool"
)

// Handler is one registered method's full HTTP entry point: content-type
// and protocol gating, call-context construction, deadline arming,
// interceptor dispatch, and trailer consolidation, per spec §4.5. The four
// New*Handler constructors below are the only way to build one, so that a
// Handler can never skip a step of this sequence.
type Handler struct {
	method MethodDescriptor
	spec   MethodOptions
	pool   *bufferpool.Pool
	invoke func(ctx *CallContext, stream *Stream) error
}

var sharedBufferPool = &bufferpool.Pool{}

// ServeHTTP is the http.Handler entry point a Mux routes one method's
// requests to.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	obs := observabilityFromContext(r.Context())

	contentType := r.Header.Get(headerContentType)
	if !acceptContentType(contentType) {
		writePreconditionFailure(w, contentType)
		return
	}
	if r.ProtoMajor < 2 {
		w.Header().Set(trailerGRPCStatus, itoaCode(CodeInternal))
		w.WriteHeader(httpStatusUpgradeRequired)
		return
	}
	codecName := codecNameFromContentType(contentType)
	codec, ok := h.spec.Codecs.Lookup(codecName)
	if !ok {
		writeUnsupportedCodec(w, codecName)
		return
	}

	call := newCallContext(h.method, h.spec, r, obs)
	obs.CallStarted(h.method.FullName())

	// rc lets a fired deadline force the transport to give up a blocked
	// read/write: canceling dm's derived context alone does not unblock an
	// io.ReadFull on r.Body, since body reads are tied to r.Context(), not
	// to this child. Setting both deadlines to a moment already past is
	// the closest the stdlib offers to the HTTP/2 RST_STREAM(NO_ERROR)
	// (0x8) / HTTP/3 (0x010c) reset spec §4.3 describes.
	rc := http.NewResponseController(w)
	timeout := parseCallTimeout(r.Header.Get(headerGRPCTimeout))
	dm := NewDeadlineManager(r.Context(), timeout, func() {
		obs.DeadlineExceeded(h.method.FullName())
		call.SetStatus(Status{Code: CodeDeadlineExceeded, Detail: "Deadline Exceeded"})
	}, func() {
		past := time.Now().Add(-time.Second)
		_ = rc.SetReadDeadline(past)
		_ = rc.SetWriteDeadline(past)
	})
	call.SetDeadlineManager(dm)

	// Register cancellation with the transport's own request-abort signal
	// (spec §4.3/§5): a client disconnect or proxy-initiated reset surfaces
	// through r.Context() independently of our deadline timer, and must
	// cancel the call the same way a deadline firing does.
	transportAborted := make(chan struct{})
	defer close(transportAborted)
	go func() {
		select {
		case <-r.Context().Done():
			dm.CancelFromTransportAbort()
		case <-transportAborted:
		}
	}()

	respEncoding := h.negotiateResponseEncoding(r.Header.Get(headerGRPCAcceptEncoding))
	call.setResponseEncoding(respEncoding)

	reqEncoding := r.Header.Get(headerGRPCEncoding)
	if reqEncoding == "" {
		reqEncoding = CompressionIdentity
	}
	frameOpts := frameOptions{
		MaxReceiveBytes:    h.spec.MaxReceiveBytes,
		MaxSendBytes:       h.spec.MaxSendBytes,
		BufferPool:         h.pool,
		SupportedEncodings: h.spec.Compressors.Names(),
	}
	if c, ok := h.spec.Compressors.Lookup(reqEncoding); ok {
		frameOpts.Compressor = c
	}

	conn := newStreamingHandlerConn(call, w, r.Body, codec, frameOpts, reqEncoding)
	if c, ok := h.spec.Compressors.Lookup(respEncoding); ok {
		conn.setResponseCompressor(c)
	}

	h.writeProvisionalHeader(w, call, codecName, respEncoding)

	invokeErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				obs.HandlerPanic(h.method.FullName(), recovered)
				err = recoverHandlerPanic(recovered)
			}
		}()
		return h.invoke(call, conn)
	}()

	// Claim the non-firing terminal branch before recording invokeErr's
	// status: if the deadline already fired, onDeadlineExceeded already set
	// the authoritative DeadlineExceeded status and invokeErr is just the
	// cancellation that firing caused, not a separate failure to report.
	if dm.TrySetComplete() && invokeErr != nil {
		if IsCanceled(invokeErr) {
			obs.ServiceMethodCanceled(h.method.FullName())
		}
		// A cancellation keeps a status the handler already set explicitly.
		mapped := mapError(invokeErr, call.Context(), h.spec.DetailedErrors)
		_, explicit := AsError(invokeErr)
		if explicit || mapped.Code != CodeCanceled || call.Status().OK() {
			call.SetStatus(mapped)
		}
	}
	dm.Dispose()

	conn.markCompleted()
	consolidateTrailers(w, call)
	obs.CallCompleted(h.method.FullName(), call.Status().Code)
}

// negotiateResponseEncoding honors a hard-configured ResponseCompressionName
// before falling back to negotiating against the client's
// grpc-accept-encoding header.
func (h *Handler) negotiateResponseEncoding(clientAccept string) string {
	if h.spec.ResponseCompressionName != "" {
		return h.spec.ResponseCompressionName
	}
	return h.spec.Compressors.negotiateResponseEncoding(clientAccept)
}

// writeProvisionalHeader emits the response content-type, grpc-encoding, and
// grpc-accept-encoding headers immediately, ahead of any message or the
// trailers: unlike a handler's own WriteResponseHeader call, this doesn't
// latch the "response started" flag, since an empty unary response that
// never calls WriteResponseHeader must still carry these.
func (h *Handler) writeProvisionalHeader(w http.ResponseWriter, call *CallContext, codecName, respEncoding string) {
	w.Header().Set(headerContentType, contentTypeDefault+"+"+codecName)
	if respEncoding != CompressionIdentity {
		w.Header().Set(headerGRPCEncoding, respEncoding)
	}
	w.Header().Set(headerGRPCAcceptEncoding, call.Spec.Compressors.AcceptEncodingHeader())
}

// parseCallTimeout resolves a grpc-timeout header into a duration, treating
// a malformed or absent value as "no deadline" per spec §4.3.
func parseCallTimeout(raw string) time.Duration {
	parsed, ok := parseTimeout(raw)
	if !ok {
		return 0
	}
	return parsed.Duration
}

// consolidateTrailers writes the final grpc-status/grpc-message (and any
// handler-set) trailers to w, per spec §4.6. Because Go's net/http only
// supports trailers declared via the "Trailer:" pseudo-mechanism (setting a
// header named in advance, or via http.TrailerPrefix), we use the
// TrailerPrefix convention so this works over both h2c and TLS HTTP/2
// without the handler needing to predeclare trailer names.
func consolidateTrailers(w http.ResponseWriter, call *CallContext) {
	status := call.Status()
	trailer := call.ResponseTrailer().Clone()
	if errWithTrailer, ok := statusTrailerOf(status); ok {
		trailer.merge(errWithTrailer)
	}

	setTrailer(w, trailerGRPCStatus, itoaCode(status.Code))
	if status.Detail != "" {
		setTrailer(w, trailerGRPCMessage, percentEncode(status.Detail))
	}
	for k, vs := range trailer {
		canonical := http.TrailerPrefix + httpCanonical(k)
		for _, v := range vs {
			w.Header().Add(canonical, v)
		}
	}
}

func statusTrailerOf(status Status) (Metadata, bool) {
	if status.Cause == nil {
		return nil, false
	}
	if e, ok := AsError(status.Cause); ok && e.trailer != nil {
		return e.trailer, true
	}
	return nil, false
}

func setTrailer(w http.ResponseWriter, key, value string) {
	w.Header().Set(http.TrailerPrefix+httpCanonical(key), value)
}

func itoaCode(c Code) string {
	b, _ := c.MarshalText()
	return string(b)
}

func writePreconditionFailure(w http.ResponseWriter, contentType string) {
	w.Header().Set(headerContentType, "text/plain; charset=utf-8")
	w.Header().Set(trailerGRPCStatus, itoaCode(CodeInternal))
	if isGRPCWebContentType(contentType) {
		w.WriteHeader(httpStatusUnsupportedMediaType)
		_, _ = w.Write([]byte("grpc-web is not supported by this server"))
		return
	}
	w.WriteHeader(httpStatusUnsupportedMediaType)
	_, _ = w.Write([]byte("unsupported content-type: " + contentType))
}

func writeUnsupportedCodec(w http.ResponseWriter, codecName string) {
	w.Header().Set(headerContentType, "text/plain; charset=utf-8")
	w.Header().Set(trailerGRPCStatus, itoaCode(CodeUnimplemented))
	w.WriteHeader(httpStatusUnsupportedMediaType)
	_, _ = w.Write([]byte("unsupported codec: " + codecName))
}

// observabilityContextKey is unexported so only this package can stash an
// Observability sink on a request's context (done by the Mux before
// ServeHTTP dispatch reaches a Handler).
type observabilityContextKey struct{}

func contextWithObservability(ctx context.Context, obs Observability) context.Context {
	return context.WithValue(ctx, observabilityContextKey{}, obs)
}

func observabilityFromContext(ctx context.Context) Observability {
	if obs, ok := ctx.Value(observabilityContextKey{}).(Observability); ok {
		return obs
	}
	return NewZapObservability(nil)
}

// chainUnary builds the single UnaryFunc resulting from wrapping next with
// every interceptor in order (global-then-service, outermost first), per
// spec §4.7.
func chainUnary(interceptors []Interceptor, next UnaryFunc) UnaryFunc {
	for i := len(interceptors) - 1; i >= 0; i-- {
		next = interceptors[i].WrapUnary(next)
	}
	return next
}

func chainStreaming(interceptors []Interceptor, next StreamingHandlerFunc) StreamingHandlerFunc {
	for i := len(interceptors) - 1; i >= 0; i-- {
		next = interceptors[i].WrapStreamingHandler(next)
	}
	return next
}

// NewUnaryHandler builds a Handler for a unary method: exactly one request
// message in, exactly one response message out.
func NewUnaryHandler[Req, Res any](service, method string, opts MethodOptions, fn func(ctx *CallContext, req *Request[Req]) (*Response[Res], error)) (MethodDescriptor, *Handler, error) {
	desc, err := newMethodDescriptor(service, method, StreamTypeUnary)
	if err != nil {
		return MethodDescriptor{}, nil, err
	}

	base := func(call *CallContext, reqAny any) (any, error) {
		req := reqAny.(*Request[Req])
		return fn(call, req)
	}
	wrapped := chainUnary(opts.Interceptors, base)

	h := &Handler{
		method: desc,
		spec:   opts,
		pool:   sharedBufferPool,
		invoke: func(call *CallContext, stream *Stream) error {
			var msg Req
			if err := stream.ReceiveUnary(&msg); err != nil {
				return err
			}
			req := &Request[Req]{Msg: &msg, call: call}
			resAny, err := wrapped(call, req)
			if err != nil {
				return err
			}
			res := resAny.(*Response[Res])
			if len(res.header) > 0 {
				if err := stream.WriteResponseHeader(res.header); err != nil {
					return err
				}
			}
			if len(res.trailer) > 0 {
				call.ResponseTrailer().merge(res.trailer)
			}
			return stream.Send(res.Msg)
		},
	}
	return desc, h, nil
}

// NewClientStreamHandler builds a Handler for a client-streaming method: any
// number of request messages in, exactly one response message out.
func NewClientStreamHandler[Req, Res any](service, method string, opts MethodOptions, fn func(ctx *CallContext, stream *ClientStream[Req]) (*Response[Res], error)) (MethodDescriptor, *Handler, error) {
	desc, err := newMethodDescriptor(service, method, StreamTypeClientStream)
	if err != nil {
		return MethodDescriptor{}, nil, err
	}

	wrapped := chainStreaming(opts.Interceptors, func(call *CallContext, stream *Stream) error {
		cs := &ClientStream[Req]{conn: stream}
		res, err := fn(call, cs)
		if err != nil {
			return err
		}
		if len(res.header) > 0 {
			if err := stream.WriteResponseHeader(res.header); err != nil {
				return err
			}
		}
		if len(res.trailer) > 0 {
			call.ResponseTrailer().merge(res.trailer)
		}
		return stream.Send(res.Msg)
	})

	h := &Handler{
		method: desc,
		spec:   opts,
		pool:   sharedBufferPool,
		invoke: wrapped,
	}
	return desc, h, nil
}

// NewServerStreamHandler builds a Handler for a server-streaming method:
// exactly one request message in, any number of response messages out.
func NewServerStreamHandler[Req, Res any](service, method string, opts MethodOptions, fn func(ctx *CallContext, req *Request[Req], stream *ServerStream[Res]) error) (MethodDescriptor, *Handler, error) {
	desc, err := newMethodDescriptor(service, method, StreamTypeServerStream)
	if err != nil {
		return MethodDescriptor{}, nil, err
	}

	wrapped := chainStreaming(opts.Interceptors, func(call *CallContext, stream *Stream) error {
		var msg Req
		if err := stream.ReceiveUnary(&msg); err != nil {
			return err
		}
		req := &Request[Req]{Msg: &msg, call: call}
		ss := &ServerStream[Res]{conn: stream}
		return fn(call, req, ss)
	})

	h := &Handler{
		method: desc,
		spec:   opts,
		pool:   sharedBufferPool,
		invoke: wrapped,
	}
	return desc, h, nil
}

// NewBidiStreamHandler builds a Handler for a full-duplex method: any number
// of request and response messages, interleaved freely by the handler.
func NewBidiStreamHandler[Req, Res any](service, method string, opts MethodOptions, fn func(ctx *CallContext, stream *BidiStream[Req, Res]) error) (MethodDescriptor, *Handler, error) {
	desc, err := newMethodDescriptor(service, method, StreamTypeDuplex)
	if err != nil {
		return MethodDescriptor{}, nil, err
	}

	wrapped := chainStreaming(opts.Interceptors, func(call *CallContext, stream *Stream) error {
		return fn(call, &BidiStream[Req, Res]{conn: stream})
	})

	h := &Handler{
		method: desc,
		spec:   opts,
		pool:   sharedBufferPool,
		invoke: wrapped,
	}
	return desc, h, nil
}
