package coregrpc

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"
)

// CallContext is the per-call state spec §3 calls the "Server Call
// Context": method descriptor, options, peer, deadline, cancellation,
// status, metadata, and a user-state bag. Exactly one CallContext exists
// per RPC; it is created before handler dispatch and released after
// trailers are committed. It must only be mutated by the owning call flow
// (the dispatching goroutine and the deadline timer, synchronized through
// the DeadlineManager's completion gate) — see spec §5.
type CallContext struct {
	Method MethodDescriptor
	Spec   MethodOptions

	host string
	peer string

	deadlineMgr *DeadlineManager

	requestHeaderRaw http.Header
	requestHeader    Metadata
	requestHeaderMu  sync.Once

	mu                sync.Mutex
	responseStarted   bool
	responseHeader    Metadata
	responseTrailer   Metadata
	status            Status
	responseEncoding  string // resolved per-call response grpc-encoding

	userState map[any]any

	auth *AuthContext

	observability Observability
}

// newCallContext constructs the per-call context from the incoming
// request. It does not start the deadline timer itself; callers arm it via
// SetDeadlineManager once the timeout has been parsed, so that parse
// errors can still produce a well-formed status.
func newCallContext(method MethodDescriptor, opts MethodOptions, r *http.Request, obs Observability) *CallContext {
	var tlsState *tls.ConnectionState
	if r.TLS != nil {
		tlsState = r.TLS
	}
	return &CallContext{
		Method:           method,
		Spec:             opts,
		host:             r.Host,
		peer:             peerString(r.RemoteAddr),
		requestHeaderRaw: r.Header,
		responseHeader:   make(Metadata),
		responseTrailer:  make(Metadata),
		responseEncoding: CompressionIdentity,
		auth:             newAuthContext(tlsState),
		observability:    obs,
	}
}

// SetDeadlineManager attaches the armed (or timeout-less) DeadlineManager
// for this call. Must be called exactly once, before the handler runs.
func (c *CallContext) SetDeadlineManager(dm *DeadlineManager) {
	c.deadlineMgr = dm
}

// Context returns the call's cancellation context: canceled when the
// deadline fires or the transport aborts the request.
func (c *CallContext) Context() context.Context {
	return c.deadlineMgr.Context()
}

// Deadline returns the call's absolute deadline, if any.
func (c *CallContext) Deadline() (time.Time, bool) {
	return c.deadlineMgr.Deadline()
}

// Peer returns the peer string for the remote endpoint. It is computed from
// the request's remote address when the CallContext is created, not on
// first access.
func (c *CallContext) Peer() string { return c.peer }

// Host returns the ":authority"/Host the request was addressed to.
func (c *CallContext) Host() string { return c.host }

// Auth returns this call's AuthContext (never nil; the unauthenticated
// singleton if no peer certificate was presented).
func (c *CallContext) Auth() *AuthContext { return c.auth }

// RequestHeader returns the user-visible request headers, built lazily on
// first access per spec §4.2.
func (c *CallContext) RequestHeader() Metadata {
	c.requestHeaderMu.Do(func() {
		c.requestHeader = newRequestMetadataFromHTTP(c.requestHeaderRaw)
	})
	return c.requestHeader
}

// ResponseTrailer returns the writable response-trailer metadata. Handlers
// may add to it at any time before the call completes.
func (c *CallContext) ResponseTrailer() Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseTrailer
}

// SetStatus records the status that will be written into the
// grpc-status/grpc-message trailers at call completion. The zero Status
// (CodeOK) is the default.
func (c *CallContext) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// Status returns the currently recorded status.
func (c *CallContext) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ResponseStarted reports whether WriteResponseHeader has already latched
// the response headers.
func (c *CallContext) ResponseStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseStarted
}

// ResponseEncoding returns the resolved per-call response grpc-encoding
// (possibly overridden by a handler via WriteResponseHeader's
// grpc-internal-encoding-request key).
func (c *CallContext) ResponseEncoding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseEncoding
}

func (c *CallContext) setResponseEncoding(name string) {
	c.mu.Lock()
	c.responseEncoding = name
	c.mu.Unlock()
}

// markResponseStarted latches the "started" flag; it returns an error if
// called twice, enforcing the "headers sent once" invariant from spec
// §4.2. Callers that only need to test-and-set without writing user
// headers (e.g. the first compressed frame) should use this directly.
func (c *CallContext) markResponseStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responseStarted {
		return NewError(CodeInternal, "response has already started")
	}
	c.responseStarted = true
	return nil
}

// WriteResponseHeader commits additional user response headers and
// latches the response as "started". It may be called at most once per
// call; a second call (or a call after the response has otherwise already
// started, e.g. because a frame was already written) is an
// Invalid/Internal error per spec §4.2.
//
// A "grpc-internal-encoding-request" entry in header is consumed to
// override the per-call response compression rather than copied verbatim:
// it is reflected into the grpc-encoding header instead.
func (c *CallContext) WriteResponseHeader(header Metadata) error {
	c.mu.Lock()
	if c.responseStarted {
		c.mu.Unlock()
		return NewError(CodeInternal, "Response headers can only be sent once per call.")
	}
	c.responseStarted = true

	if override := header[internalEncodingOverrideKey]; len(override) > 0 {
		c.responseEncoding = override[0]
		delete(header, internalEncodingOverrideKey)
	}
	for k, vs := range header {
		c.responseHeader[k] = append(c.responseHeader[k], vs...)
	}
	c.mu.Unlock()
	return nil
}

// responseHeaderSnapshot returns a copy of the response headers latched so
// far, for the transport adapter to flush.
func (c *CallContext) responseHeaderSnapshot() Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseHeader.Clone()
}

// UserState is a per-call bag for arbitrary handler/interceptor state,
// keyed by arbitrary comparable tokens (conventionally a package-local
// unexported type to avoid collisions, mirroring context.Value's
// convention).
func (c *CallContext) UserState() map[any]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userState == nil {
		c.userState = make(map[any]any)
	}
	return c.userState
}
