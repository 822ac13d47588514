package coregrpc

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Activator owns the lifecycle of one service's instances, per spec §4.11:
// Acquire hands a Handler a live instance for the duration of one call;
// the returned release func is invoked exactly once, regardless of whether
// the call succeeded, failed, or panicked. Implementations decide what
// "instance" means — a process-wide singleton, a pooled object, or a
// freshly constructed value per call.
type Activator[S any] interface {
	Acquire(ctx context.Context) (instance S, release func(), err error)
}

// SingletonActivator is the default Activator: one instance, constructed
// once, shared by every call. Release is a no-op.
type SingletonActivator[S any] struct {
	instance S
}

// NewSingletonActivator wraps an already-constructed service value.
func NewSingletonActivator[S any](instance S) *SingletonActivator[S] {
	return &SingletonActivator[S]{instance: instance}
}

func (a *SingletonActivator[S]) Acquire(context.Context) (S, func(), error) {
	return a.instance, func() {}, nil
}

// PerCallActivator constructs a fresh instance for every call via factory,
// and disposes of it asynchronously afterward through an errgroup so a slow
// Close doesn't hold up the response that already went out — mirroring
// keploy-keploy's use of golang.org/x/sync/errgroup to fan out background
// cleanup without blocking the request path.
type PerCallActivator[S any] struct {
	factory func(ctx context.Context) (S, error)
	dispose func(S) error
	group   *errgroup.Group
}

// NewPerCallActivator builds a PerCallActivator. dispose may be nil if
// instances need no cleanup.
func NewPerCallActivator[S any](factory func(ctx context.Context) (S, error), dispose func(S) error) *PerCallActivator[S] {
	return &PerCallActivator[S]{factory: factory, dispose: dispose, group: &errgroup.Group{}}
}

func (a *PerCallActivator[S]) Acquire(ctx context.Context) (S, func(), error) {
	instance, err := a.factory(ctx)
	if err != nil {
		var zero S
		return zero, nil, fmt.Errorf("coregrpc: activate service instance: %w", err)
	}
	release := func() {
		if a.dispose == nil {
			return
		}
		a.group.Go(func() error {
			return a.dispose(instance)
		})
	}
	return instance, release, nil
}

// Wait blocks until every asynchronously disposed instance from this
// activator has finished disposing, and returns the first error
// encountered, if any. Intended for graceful-shutdown paths.
func (a *PerCallActivator[S]) Wait() error {
	return a.group.Wait()
}

// BindUnary curries a service-scoped unary method against an Activator,
// producing the plain func(ctx, req) (*Response, error) NewUnaryHandler
// expects. Acquire/Release bracket exactly one call.
func BindUnary[S, Req, Res any](activator Activator[S], fn func(svc S, ctx *CallContext, req *Request[Req]) (*Response[Res], error)) func(ctx *CallContext, req *Request[Req]) (*Response[Res], error) {
	return func(ctx *CallContext, req *Request[Req]) (*Response[Res], error) {
		svc, release, err := activator.Acquire(ctx.Context())
		if err != nil {
			return nil, Wrap(CodeUnavailable, err)
		}
		defer release()
		return fn(svc, ctx, req)
	}
}

// BindClientStream is BindUnary for client-streaming methods.
func BindClientStream[S, Req, Res any](activator Activator[S], fn func(svc S, ctx *CallContext, stream *ClientStream[Req]) (*Response[Res], error)) func(ctx *CallContext, stream *ClientStream[Req]) (*Response[Res], error) {
	return func(ctx *CallContext, stream *ClientStream[Req]) (*Response[Res], error) {
		svc, release, err := activator.Acquire(ctx.Context())
		if err != nil {
			return nil, Wrap(CodeUnavailable, err)
		}
		defer release()
		return fn(svc, ctx, stream)
	}
}

// BindServerStream is BindUnary for server-streaming methods.
func BindServerStream[S, Req, Res any](activator Activator[S], fn func(svc S, ctx *CallContext, req *Request[Req], stream *ServerStream[Res]) error) func(ctx *CallContext, req *Request[Req], stream *ServerStream[Res]) error {
	return func(ctx *CallContext, req *Request[Req], stream *ServerStream[Res]) error {
		svc, release, err := activator.Acquire(ctx.Context())
		if err != nil {
			return Wrap(CodeUnavailable, err)
		}
		defer release()
		return fn(svc, ctx, req, stream)
	}
}

// BindBidi is BindUnary for full-duplex methods.
func BindBidi[S, Req, Res any](activator Activator[S], fn func(svc S, ctx *CallContext, stream *BidiStream[Req, Res]) error) func(ctx *CallContext, stream *BidiStream[Req, Res]) error {
	return func(ctx *CallContext, stream *BidiStream[Req, Res]) error {
		svc, release, err := activator.Acquire(ctx.Context())
		if err != nil {
			return Wrap(CodeUnavailable, err)
		}
		defer release()
		return fn(svc, ctx, stream)
	}
}
