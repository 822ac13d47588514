package coregrpc

import (
	"context"
	"errors"
	"fmt"
)

// mapError implements spec §4.8's taxonomy: an *Error's status is used
// verbatim; a cancellation-shaped error while the call's context is done
// maps to CodeCanceled (Handler.ServeHTTP keeps the handler's own status
// instead, if it already set one); anything else becomes CodeUnknown, with
// detail governed by MethodOptions.DetailedErrors.
func mapError(err error, callCtx context.Context, detailedErrors bool) Status {
	if err == nil {
		return Status{Code: CodeOK}
	}
	if rpcErr, ok := AsError(err); ok {
		return rpcErr.Status()
	}

	if isCancellationShaped(err) {
		select {
		case <-callCtx.Done():
			return Status{Code: CodeCanceled, Detail: "Canceled", Cause: err}
		default:
		}
	}

	detail := "Exception was thrown by handler."
	if detailedErrors {
		detail = detail + " " + err.Error()
	}
	return Status{Code: CodeUnknown, Detail: detail, Cause: err}
}

// isCancellationShaped reports whether err looks like a cancellation
// rather than a genuine failure: context.Canceled, our own
// errCallCanceled sentinel, or anything wrapping either.
func isCancellationShaped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, errCallCanceled)
}

// recoverHandlerPanic converts a recovered panic value into an error,
// mirroring the framework-exception path: logged at error level by the
// caller, then mapped by mapError like any other handler error, so an
// untyped panic surfaces to the client as CodeUnknown with its text gated
// by DetailedErrors.
func recoverHandlerPanic(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", recovered)
}
