package coregrpc

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps a Mux in the cleartext-HTTP/2 (h2c) bootstrap spec §4
// assumes as this core's transport: gRPC-over-HTTP/2 without requiring TLS
// for local and test deployments, via golang.org/x/net/http2/h2c — the same
// package the teacher's own example entry point used.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server listening on addr, serving mux over h2c.
// ReadHeaderTimeout is set defensively since h2c bypasses the usual TLS
// handshake timeout a production deployment would otherwise get for free.
func NewServer(addr string, mux *Mux) *Server {
	h2s := &http2.Server{}
	handler := h2c.NewHandler(mux, h2s)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving until the listener errors or Shutdown is
// called, returning http.ErrServerClosed on a clean shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight calls, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
