package coregrpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorAndStatus(t *testing.T) {
	err := NewError(CodeNotFound, "widget missing")
	assert.Equal(t, CodeNotFound, err.Code())
	assert.Equal(t, "widget missing", err.Status().Detail)
	assert.Equal(t, "NotFound: widget missing", err.Error())
}

func TestWrapPreservesExistingStatus(t *testing.T) {
	inner := NewError(CodeAlreadyExists, "dup")
	wrapped := Wrap(CodeInternal, inner)
	assert.Equal(t, CodeAlreadyExists, wrapped.Code(), "Wrap must not override an already-typed *Error's code")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, nil))
}

func TestAsErrorUnwrapsThroughJoin(t *testing.T) {
	base := NewError(CodeUnavailable, "down")
	wrapped := errors.Join(base)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeUnavailable, got.Code())
}

func TestCodeOfDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain error")))
	assert.Equal(t, CodeOK, CodeOf(nil))
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(errCallCanceled))
	assert.False(t, IsCanceled(errors.New("something else")))
}

func TestErrorTrailerDefaultsToEmpty(t *testing.T) {
	var e *Error
	assert.NotNil(t, e.Trailer())
	assert.Equal(t, CodeOK, e.Code())
}
