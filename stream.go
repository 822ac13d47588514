package coregrpc

import (
	"context"
	"io"
)

// Request wraps one decoded request message together with the call's
// request headers and peer, for unary and server-streaming handlers.
type Request[T any] struct {
	Msg  *T
	call *CallContext
}

func (r *Request[T]) Header() Metadata { return r.call.RequestHeader() }
func (r *Request[T]) Peer() string     { return r.call.Peer() }

// Response wraps one outgoing response message together with any extra
// response headers/trailers a handler wants to attach.
type Response[T any] struct {
	Msg     *T
	header  Metadata
	trailer Metadata
}

// NewResponse wraps msg as a Response with empty header/trailer sets.
func NewResponse[T any](msg *T) *Response[T] {
	return &Response[T]{Msg: msg, header: make(Metadata), trailer: make(Metadata)}
}

func (r *Response[T]) Header() Metadata  { return r.header }
func (r *Response[T]) Trailer() Metadata { return r.trailer }

// ClientStream lets a client-streaming handler iterate incoming request
// messages one at a time, matching spec §4.4's reader discipline:
// Receive() clears the previous message before decoding the next so long
// streams don't pin every message in memory at once.
type ClientStream[T any] struct {
	conn *StreamingHandlerConn
	msg  T
	err  error
}

// Receive decodes the next message. It returns false at end of stream or
// on error; callers must check Err() afterward to distinguish the two.
func (s *ClientStream[T]) Receive() bool {
	var zero T
	s.msg = zero
	if err := s.conn.Receive(&s.msg); err != nil {
		if err != io.EOF {
			s.err = err
		}
		return false
	}
	return true
}

// Msg returns the most recently decoded message.
func (s *ClientStream[T]) Msg() *T { return &s.msg }

// Err returns the terminal read error, if Receive stopped because of one
// rather than a clean end of stream.
func (s *ClientStream[T]) Err() error { return s.err }

func (s *ClientStream[T]) Peer() string       { return s.conn.Peer() }
func (s *ClientStream[T]) RequestHeader() Metadata { return s.conn.RequestHeader() }

// ServerStream lets a server-streaming handler send any number of response
// messages.
type ServerStream[T any] struct {
	conn *StreamingHandlerConn
}

// Send serializes and frames one response message.
func (s *ServerStream[T]) Send(msg *T) error {
	return s.conn.Send(msg)
}

// SendWithOptions is Send with explicit per-write flags.
func (s *ServerStream[T]) SendWithOptions(msg *T, opts WriteOptions) error {
	return s.conn.SendWithOptions(msg, opts)
}

func (s *ServerStream[T]) ResponseHeader() Metadata  { return nil }
func (s *ServerStream[T]) ResponseTrailer() Metadata { return s.conn.ResponseTrailer() }

// BidiStream lets a duplex handler read and write concurrently; each
// direction still honors its own single-in-flight discipline (see
// StreamingHandlerConn).
type BidiStream[Req, Res any] struct {
	conn *StreamingHandlerConn
}

// Receive decodes the next request message, returning io.EOF at a clean
// end of stream.
func (s *BidiStream[Req, Res]) Receive() (*Req, error) {
	var msg Req
	if err := s.conn.Receive(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Send serializes and frames one response message.
func (s *BidiStream[Req, Res]) Send(msg *Res) error {
	return s.conn.Send(msg)
}

func (s *BidiStream[Req, Res]) RequestHeader() Metadata   { return s.conn.RequestHeader() }
func (s *BidiStream[Req, Res]) ResponseTrailer() Metadata { return s.conn.ResponseTrailer() }
func (s *BidiStream[Req, Res]) Context() context.Context  { return s.conn.Context() }
