package coregrpc

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
)

// Stream is the untyped view of a call's duplex conduit passed through the
// Interceptor chain; typed handlers wrap it in Request/Response or one of
// the generic Stream wrappers (ClientStream, ServerStream, BidiStream)
// before user code ever sees it.
type Stream = StreamingHandlerConn

// StreamingHandlerConn is the per-call duplex conduit every typed stream
// wrapper (ClientStream, ServerStream, BidiStream) is built on top of. It
// is the Go analogue of spec §4.4's Stream Reader/Writer: Receive iterates
// decoded request messages, Send serializes and frames one response
// message, both honoring single-in-flight and post-completion rules.
type StreamingHandlerConn struct {
	call *CallContext
	w    http.ResponseWriter

	reader *envelopeReader
	writer *envelopeWriter

	// writeInFlight enforces "at most one in-flight write per call" from
	// spec §4.4, independent of whether the caller is also reading
	// concurrently (duplex streaming permits concurrent read+write, each
	// side honoring its own discipline).
	writeInFlight int32

	completed atomic.Bool
	readDone  atomic.Bool

	codec Codec

	flusher http.Flusher
}

func newStreamingHandlerConn(call *CallContext, w http.ResponseWriter, body io.Reader, codec Codec, frameOpts frameOptions, reqEncoding string) *StreamingHandlerConn {
	flusher, _ := w.(http.Flusher)
	conn := &StreamingHandlerConn{
		call:    call,
		w:       w,
		codec:   codec,
		flusher: flusher,
	}
	conn.reader = newEnvelopeReader(body, reqEncoding, frameOpts)
	conn.writer = newEnvelopeWriter(w, nil, frameOpts.MaxSendBytes, frameOpts.BufferPool)
	return conn
}

// setResponseCompressor wires the writer's compressor once the per-call
// response encoding has been finalized (it may change up until the first
// WriteResponseHeader call via grpc-internal-encoding-request).
func (c *StreamingHandlerConn) setResponseCompressor(compressor Compressor) {
	c.writer.compressor = compressor
}

// Context returns the call's cancellation context.
func (c *StreamingHandlerConn) Context() context.Context { return c.call.Context() }

// Peer returns the remote peer string.
func (c *StreamingHandlerConn) Peer() string { return c.call.Peer() }

// RequestHeader returns the user-visible request headers.
func (c *StreamingHandlerConn) RequestHeader() Metadata { return c.call.RequestHeader() }

// ResponseTrailer returns the writable response trailer metadata.
func (c *StreamingHandlerConn) ResponseTrailer() Metadata { return c.call.ResponseTrailer() }

// WriteResponseHeader commits response headers exactly once, per spec §4.2.
func (c *StreamingHandlerConn) WriteResponseHeader(header Metadata) error {
	if err := c.call.WriteResponseHeader(header); err != nil {
		return err
	}
	// Apply a grpc-internal-encoding-request override, if the handler sent
	// one naming a registered provider.
	if compressor, ok := c.call.Spec.Compressors.Lookup(c.call.ResponseEncoding()); ok {
		c.setResponseCompressor(compressor)
		if compressor.Name() == CompressionIdentity {
			c.w.Header().Del(headerGRPCEncoding)
		} else {
			c.w.Header().Set(headerGRPCEncoding, compressor.Name())
		}
	}
	c.call.responseHeaderSnapshot().writeToHTTPHeader(c.w.Header())
	return nil
}

// Receive reads and decodes the next request message into msg, which must
// be a pointer the Codec can unmarshal into. It returns io.EOF at a clean
// end of stream.
func (c *StreamingHandlerConn) Receive(msg any) error {
	if c.completed.Load() || c.readDone.Load() {
		return NewError(CodeInternal, "Can't read messages after the request is complete.")
	}
	select {
	case <-c.call.Context().Done():
		c.readDone.Store(true)
		return NewError(CodeInternal, "Can't read messages after the request is complete.")
	default:
	}
	payload, err := c.reader.Next()
	if err != nil {
		if err == io.EOF {
			c.readDone.Store(true)
		}
		return err
	}
	if err := c.codec.Unmarshal(payload, msg); err != nil {
		return NewErrorf(CodeInvalidArgument, "unmarshal request: %v", err)
	}
	c.call.observability.MessageReceived(c.call.Method.FullName())
	return nil
}

// ReceiveUnary reads exactly one message and verifies no additional data
// follows, per the unary/server-stream-request "no additional data"
// invariant.
func (c *StreamingHandlerConn) ReceiveUnary(msg any) error {
	if c.completed.Load() {
		return NewError(CodeInternal, "Can't read messages after the request is complete.")
	}
	payload, err := readSingle(c.singleReadSource(), c.reader.grpcEncoding, c.reader.opts)
	if err != nil {
		return err
	}
	if err := c.codec.Unmarshal(payload, msg); err != nil {
		return NewErrorf(CodeInvalidArgument, "unmarshal request: %v", err)
	}
	c.call.observability.MessageReceived(c.call.Method.FullName())
	return nil
}

func (c *StreamingHandlerConn) singleReadSource() io.Reader {
	return c.reader.src
}

// Send serializes msg and writes one framed message. At most one Send may
// be in flight at a time; a second concurrent call fails immediately
// rather than interleaving frames.
func (c *StreamingHandlerConn) Send(msg any) error {
	return c.SendWithOptions(msg, WriteOptions{})
}

// SendWithOptions is Send with explicit per-write flags (buffer_hint,
// no_compress), per spec §4.4.
func (c *StreamingHandlerConn) SendWithOptions(msg any, opts WriteOptions) error {
	if c.completed.Load() {
		return NewError(CodeInternal, "Can't write the message because the request is complete.")
	}
	select {
	case <-c.call.Context().Done():
		return NewError(CodeInternal, "Can't write the message because the request is complete.")
	default:
	}
	if !atomic.CompareAndSwapInt32(&c.writeInFlight, 0, 1) {
		return NewError(CodeInternal, "Can't write the message because the previous write is in progress.")
	}
	defer atomic.StoreInt32(&c.writeInFlight, 0)

	if !c.call.ResponseStarted() {
		if err := c.call.markResponseStarted(); err != nil {
			return err
		}
		c.call.responseHeaderSnapshot().writeToHTTPHeader(c.w.Header())
	}

	payload, err := c.codec.Marshal(msg)
	if err != nil {
		return NewErrorf(CodeInternal, "marshal response: %v", err)
	}
	if err := c.writer.Write(payload, opts); err != nil {
		return err
	}
	c.call.observability.MessageSent(c.call.Method.FullName())
	if !opts.BufferHint && c.flusher != nil {
		c.flusher.Flush()
	}
	return nil
}

// markCompleted marks the conn as no longer readable/writable, used once
// trailers have been consolidated.
func (c *StreamingHandlerConn) markCompleted() {
	c.completed.Store(true)
}

func httpCanonical(key string) string {
	return http.CanonicalHeaderKey(key)
}
