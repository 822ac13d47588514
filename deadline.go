package coregrpc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errCallCanceled is the sentinel wrapped cause used to mark a call's
// context as canceled by deadline-or-abort, distinguishing it from an
// ordinary context.Canceled so IsCanceled can recognize it specifically.
var errCallCanceled = errors.New("coregrpc: call canceled")

// maxTimerDuration is the platform cap spec §4.3 refers to as "the
// platform's max timer due-time" — time.Timer has no such hard limit in Go,
// but we still honor the documented behavior (bounded rescheduling) for
// parity with the source runtime and so a single timer firing can't be
// starved by monotonic-clock skew across extremely long sleeps.
const maxTimerDuration = time.Duration(1<<31-2) * time.Millisecond

// deadlineState is the DeadlineManager's single terminal state, one of three
// mutually exclusive values. It is not an atomic: it is read and written
// only while holding DeadlineManager.mu.
type deadlineState int32

const (
	deadlineArmed deadlineState = iota
	deadlineCallCompleted
	deadlineFired
)

// DeadlineManager races an absolute deadline against the call's normal
// completion, guaranteeing exactly one terminal transition per call
// (spec §3's DeadlineManager invariants). It owns the call's cancellation
// signal: cancel fires iff the deadline fires or the transport aborts the
// request first.
type DeadlineManager struct {
	deadlineAt time.Time
	hasDeadline bool

	mu    sync.Mutex
	state deadlineState
	timer *time.Timer

	// firing is closed once a DeadlineFiring branch has fully run
	// deadlineExceeded to completion; Dispose waits on it before returning,
	// per invariant (ii).
	firing     chan struct{}
	firingOnce sync.Once

	ctx    context.Context
	cancel context.CancelCauseFunc

	onDeadlineExceeded func() // invoked under no locks, from the timer goroutine

	// abortTransport, if set, is invoked once alongside cancel when the
	// deadline actually fires, so the transport can be made to give up a
	// blocked read/write (a derived context's cancellation alone doesn't
	// unblock an io.ReadFull tied to the original request body). It is not
	// invoked by CancelFromTransportAbort, since the transport has already
	// aborted by the time that path runs.
	abortTransport func()
}

// NewDeadlineManager arms a deadline timeout.Duration from now, derived
// from parent. If timeout is <= 0, the manager never fires (hasDeadline is
// false) but still provides a live cancellation context tied to parent.
// abortTransport may be nil; when set, it is called once the deadline
// fires, in addition to onDeadlineExceeded, to force the transport to
// abandon any blocked read or write for this call.
func NewDeadlineManager(parent context.Context, timeout time.Duration, onDeadlineExceeded func(), abortTransport func()) *DeadlineManager {
	ctx, cancel := context.WithCancelCause(parent)
	dm := &DeadlineManager{
		ctx:                ctx,
		cancel:             cancel,
		firing:             make(chan struct{}),
		onDeadlineExceeded: onDeadlineExceeded,
		abortTransport:     abortTransport,
	}
	if timeout > 0 {
		dm.hasDeadline = true
		dm.deadlineAt = time.Now().Add(timeout)
		dm.armTimer(timeout)
	}
	return dm
}

func (dm *DeadlineManager) armTimer(remaining time.Duration) {
	due := remaining
	long := due > maxTimerDuration
	if long {
		due = maxTimerDuration
	}
	dm.timer = time.AfterFunc(due, func() {
		if long {
			dm.onLongTimerTick()
			return
		}
		dm.fire()
	})
}

// onLongTimerTick re-checks the remaining time on each firing of a
// bounded-duration timer and reschedules until the true deadline arrives,
// per spec §4.3's long-deadline path.
func (dm *DeadlineManager) onLongTimerTick() {
	dm.mu.Lock()
	if dm.state != deadlineArmed {
		dm.mu.Unlock()
		return
	}
	remaining := time.Until(dm.deadlineAt)
	if remaining <= 0 {
		dm.mu.Unlock()
		dm.fire()
		return
	}
	dm.armTimer(remaining)
	dm.mu.Unlock()
}

// Deadline returns the absolute deadline and whether one is armed.
func (dm *DeadlineManager) Deadline() (time.Time, bool) {
	return dm.deadlineAt, dm.hasDeadline
}

// Context returns the call's cancellation context: canceled when the
// deadline fires or the caller cancels the parent.
func (dm *DeadlineManager) Context() context.Context {
	return dm.ctx
}

// TrySetComplete is the handler's normal-finish path claiming the
// non-firing terminal branch. It returns true iff no DeadlineFiring branch
// had already been claimed; on true, any pending timer callback becomes a
// no-op.
func (dm *DeadlineManager) TrySetComplete() bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.state != deadlineArmed {
		return false
	}
	dm.state = deadlineCallCompleted
	if dm.timer != nil {
		dm.timer.Stop()
	}
	return true
}

// fire claims the DeadlineFiring branch (if not already claimed by either
// side), runs onDeadlineExceeded, and marks the firing signal done.
// deadlineExceeded in spec §4.3 is this function's body.
func (dm *DeadlineManager) fire() {
	dm.mu.Lock()
	if dm.state != deadlineArmed {
		dm.mu.Unlock()
		return
	}
	dm.state = deadlineFired
	dm.mu.Unlock()

	if dm.onDeadlineExceeded != nil {
		dm.onDeadlineExceeded()
	}
	if dm.abortTransport != nil {
		dm.abortTransport()
	}
	dm.cancel(errCallCanceled)
	dm.firingOnce.Do(func() { close(dm.firing) })
}

// CancelFromTransportAbort is called when the transport reports the
// request was aborted by the peer (not a deadline) — wired by the Handler
// to the request's own context.Done() alongside the deadline timer, per
// spec §4.3/§5's requirement that cancellation be registered with the
// transport's request-abort signal. It cancels the call's context but does
// not run onDeadlineExceeded and does not claim the "fired" terminal
// state — per spec §3 invariant (iii), cancel_source is cancelled iff the
// deadline fired OR the transport aborted, but only the deadline path is a
// terminal DeadlineFired transition.
func (dm *DeadlineManager) CancelFromTransportAbort() {
	dm.cancel(errCallCanceled)
}

// Dispose must finish any in-flight deadline callback before returning, so
// resources the callback might still touch (the trailer destination, the
// transport reset capability) are never freed out from under it. It is
// idempotent and safe to call even if the deadline never fired.
func (dm *DeadlineManager) Dispose() {
	dm.mu.Lock()
	fired := dm.state == deadlineFired
	armed := dm.state == deadlineArmed
	dm.mu.Unlock()

	if armed {
		// Neither terminal branch has been claimed, so no deadline
		// callback is in flight; nothing to wait on.
		return
	}
	if fired {
		<-dm.firing
	}
}
