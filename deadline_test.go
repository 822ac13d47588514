package coregrpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineManagerNoTimeoutNeverFires(t *testing.T) {
	var fired bool
	dm := NewDeadlineManager(context.Background(), 0, func() { fired = true }, nil)
	_, hasDeadline := dm.Deadline()
	assert.False(t, hasDeadline)

	assert.True(t, dm.TrySetComplete())
	dm.Dispose()
	assert.False(t, fired)
}

func TestDeadlineManagerFiresOnTimeout(t *testing.T) {
	done := make(chan struct{})
	dm := NewDeadlineManager(context.Background(), 10*time.Millisecond, func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}
	dm.Dispose()

	select {
	case <-dm.Context().Done():
	default:
		t.Fatal("context should be canceled once the deadline fires")
	}
	assert.ErrorIs(t, context.Cause(dm.Context()), errCallCanceled)
}

func TestDeadlineManagerFireAbortsTransport(t *testing.T) {
	done := make(chan struct{})
	var aborted bool
	dm := NewDeadlineManager(context.Background(), 10*time.Millisecond, func() { close(done) }, func() {
		aborted = true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}
	dm.Dispose()

	assert.True(t, aborted, "a fired deadline must also abort the transport, not just cancel the internal context")
}

func TestDeadlineManagerCompleteBeforeFireWinsTheRace(t *testing.T) {
	dm := NewDeadlineManager(context.Background(), time.Hour, func() {
		t.Fatal("onDeadlineExceeded must not run once TrySetComplete wins")
	}, nil)
	require.True(t, dm.TrySetComplete())
	// A second call must report the branch is already claimed.
	assert.False(t, dm.TrySetComplete())
	dm.Dispose()
}

func TestDeadlineManagerCancelFromTransportAbortDoesNotClaimFired(t *testing.T) {
	dm := NewDeadlineManager(context.Background(), time.Hour, func() {
		t.Fatal("onDeadlineExceeded must not run on a transport abort")
	}, nil)
	dm.CancelFromTransportAbort()

	select {
	case <-dm.Context().Done():
	default:
		t.Fatal("context should be canceled after transport abort")
	}
	// The deadline branch itself was never claimed, so TrySetComplete still
	// succeeds afterward (the call can still record its own terminal status).
	assert.True(t, dm.TrySetComplete())
}
