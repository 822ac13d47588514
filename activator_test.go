package coregrpc

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterService struct {
	calls *int64
}

func TestSingletonActivatorSharesInstance(t *testing.T) {
	var calls int64
	activator := NewSingletonActivator(counterService{calls: &calls})

	inst1, release1, err := activator.Acquire(context.Background())
	require.NoError(t, err)
	inst2, release2, err := activator.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, inst1.calls, inst2.calls)
	release1()
	release2()
}

func TestPerCallActivatorDisposesAsynchronously(t *testing.T) {
	var disposed int64
	activator := NewPerCallActivator(
		func(context.Context) (*counterService, error) {
			return &counterService{}, nil
		},
		func(*counterService) error {
			atomic.AddInt64(&disposed, 1)
			return nil
		},
	)

	_, release, err := activator.Acquire(context.Background())
	require.NoError(t, err)
	release()

	require.NoError(t, activator.Wait())
	assert.Equal(t, int64(1), atomic.LoadInt64(&disposed))
}

func TestBindUnaryAcquiresAndInvokesService(t *testing.T) {
	var calls int64
	activator := NewSingletonActivator(&counterService{calls: &calls})

	fn := BindUnary(activator, func(svc *counterService, ctx *CallContext, req *Request[int]) (*Response[int], error) {
		atomic.AddInt64(svc.calls, 1)
		return NewResponse(req.Msg), nil
	})

	call := &CallContext{deadlineMgr: NewDeadlineManager(context.Background(), 0, nil, nil)}
	n := 5
	_, err := fn(call, &Request[int]{Msg: &n, call: call})
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestPerCallActivatorPropagatesFactoryError(t *testing.T) {
	activator := NewPerCallActivator(
		func(context.Context) (*counterService, error) {
			return nil, assertErr
		},
		nil,
	)
	_, _, err := activator.Acquire(context.Background())
	assert.Error(t, err)
}

var assertErr = errTestSentinel{}

type errTestSentinel struct{}

func (errTestSentinel) Error() string { return "boom" }
