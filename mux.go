package coregrpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mux is the Service Registry of spec §4.9: it maps "<service>/<method>"
// paths to registered Handlers, answering anything else with HTTP 200 and
// an Unimplemented grpc-status trailer, and stamps every request's context with the shared Observability
// sink before dispatch. It is built on github.com/go-chi/chi/v5, the same
// router keploy-keploy uses for its own HTTP surface.
type Mux struct {
	router        chi.Router
	observability Observability
	descriptors   []MethodDescriptor
}

// NewMux builds an empty Mux. obs is shared by every registered Handler's
// call-context construction; pass nil to get a no-op zap logger with
// working counters.
func NewMux(obs Observability) *Mux {
	if obs == nil {
		obs = NewZapObservability(nil)
	}
	r := chi.NewRouter()
	m := &Mux{router: r, observability: obs}
	r.NotFound(m.serveUnimplemented)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { m.serveUnimplemented(w, r) })
	return m
}

// Register wires one method's Handler under its full name
// ("/<service>/<method>", the path form HTTP/2 gRPC requests use).
func (m *Mux) Register(desc MethodDescriptor, h *Handler) {
	path := "/" + desc.FullName()
	m.descriptors = append(m.descriptors, desc)
	m.router.Post(path, h.ServeHTTP)
}

// RegisterService registers every (MethodDescriptor, *Handler) pair a
// service binder produces in one call, so a generated (or hand-built, as
// here) service registration function can hand the Mux its whole surface
// at once.
func (m *Mux) RegisterService(bindings ...ServiceBinding) {
	for _, b := range bindings {
		m.Register(b.Descriptor, b.Handler)
	}
}

// ServiceBinding pairs one method's descriptor with its Handler; the
// pairing New*Handler constructors already return, bundled for
// RegisterService's variadic convenience.
type ServiceBinding struct {
	Descriptor MethodDescriptor
	Handler    *Handler
}

// Bind is a small constructor so service registration code reads as a flat
// list of bindings rather than repeated two-value destructuring.
func Bind(desc MethodDescriptor, h *Handler, err error) ServiceBinding {
	if err != nil {
		panic(err) // registration-time only: a malformed service/method name is a programmer error
	}
	return ServiceBinding{Descriptor: desc, Handler: h}
}

// Descriptors returns every method registered on this Mux, in registration
// order — used by the reflection/introspection-free "list services" debug
// affordance a deployment might want to expose separately.
func (m *Mux) Descriptors() []MethodDescriptor {
	out := make([]MethodDescriptor, len(m.descriptors))
	copy(out, m.descriptors)
	return out
}

// ServeHTTP implements http.Handler, dispatching through the chi router
// after stamping the request's context with this Mux's Observability sink.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(contextWithObservability(r.Context(), m.observability))
	m.router.ServeHTTP(w, r)
}

// serveUnimplemented answers any request that doesn't match a registered
// method with CodeUnimplemented in the grpc-status trailer, per spec §4.9's
// "no handler registered" case — rather than a bare HTTP 404, which a gRPC
// client wouldn't know how to interpret as a status code.
func (m *Mux) serveUnimplemented(w http.ResponseWriter, r *http.Request) {
	m.observability.Unimplemented(r.URL.Path)
	w.Header().Set(headerContentType, contentTypeDefault)
	w.Header().Set(http.TrailerPrefix+httpCanonical(trailerGRPCStatus), itoaCode(CodeUnimplemented))
	w.Header().Set(http.TrailerPrefix+httpCanonical(trailerGRPCMessage), percentEncode("Method is unimplemented."))
	w.WriteHeader(http.StatusOK)
}
