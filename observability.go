package coregrpc

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Counters are the process-wide, call-independent counters spec §6 lists
// as the only persisted state this runtime carries across calls.
type Counters struct {
	TotalCalls       int64
	CurrentCalls     int64
	MessagesSent     int64
	MessagesReceived int64
	CallsFailed      int64
	DeadlineExceeded int64
	Unimplemented    int64
}

// Observability is the sink the core reports structured events and
// counters to. Logging/metrics sinks are an external collaborator per §1;
// this interface is the contract, and NewZapObservability wraps
// go.uber.org/zap (grounded in keploy-keploy's logging stack) as the
// built-in implementation so the hot-path types in this package never
// import zap directly.
type Observability interface {
	CallStarted(method string)
	CallCompleted(method string, code Code)
	MessageSent(method string)
	MessageReceived(method string)
	DeadlineExceeded(method string)
	Unimplemented(fullName string)
	HandlerPanic(method string, recovered any)
	ServiceMethodCanceled(method string)
	Snapshot() Counters
}

type zapObservability struct {
	logger   *zap.Logger
	counters atomicCounters
}

type atomicCounters struct {
	totalCalls, currentCalls                     int64
	messagesSent, messagesReceived                int64
	callsFailed, deadlineExceeded, unimplemented int64
}

// NewZapObservability builds the default Observability sink atop a
// *zap.Logger. Passing nil uses zap.NewNop(), which is handy for tests
// that don't want log noise but still want working counters.
func NewZapObservability(logger *zap.Logger) Observability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapObservability{logger: logger}
}

func (o *zapObservability) CallStarted(method string) {
	atomic.AddInt64(&o.counters.totalCalls, 1)
	atomic.AddInt64(&o.counters.currentCalls, 1)
	o.logger.Debug("call started", zap.String("method", method))
}

func (o *zapObservability) CallCompleted(method string, code Code) {
	atomic.AddInt64(&o.counters.currentCalls, -1)
	if code != CodeOK {
		atomic.AddInt64(&o.counters.callsFailed, 1)
	}
	o.logger.Debug("call completed", zap.String("method", method), zap.Stringer("code", code))
}

func (o *zapObservability) MessageSent(method string) {
	atomic.AddInt64(&o.counters.messagesSent, 1)
}

func (o *zapObservability) MessageReceived(method string) {
	atomic.AddInt64(&o.counters.messagesReceived, 1)
}

func (o *zapObservability) DeadlineExceeded(method string) {
	atomic.AddInt64(&o.counters.deadlineExceeded, 1)
	o.logger.Info("deadline exceeded", zap.String("method", method))
}

func (o *zapObservability) Unimplemented(fullName string) {
	atomic.AddInt64(&o.counters.unimplemented, 1)
	o.logger.Info("unimplemented method called", zap.String("method", fullName))
}

func (o *zapObservability) HandlerPanic(method string, recovered any) {
	o.logger.Error("service method panicked", zap.String("method", method), zap.Any("panic", recovered))
}

func (o *zapObservability) ServiceMethodCanceled(method string) {
	o.logger.Info("service method canceled", zap.String("method", method))
}

func (o *zapObservability) Snapshot() Counters {
	return Counters{
		TotalCalls:       atomic.LoadInt64(&o.counters.totalCalls),
		CurrentCalls:     atomic.LoadInt64(&o.counters.currentCalls),
		MessagesSent:     atomic.LoadInt64(&o.counters.messagesSent),
		MessagesReceived: atomic.LoadInt64(&o.counters.messagesReceived),
		CallsFailed:      atomic.LoadInt64(&o.counters.callsFailed),
		DeadlineExceeded: atomic.LoadInt64(&o.counters.deadlineExceeded),
		Unimplemented:    atomic.LoadInt64(&o.counters.unimplemented),
	}
}
