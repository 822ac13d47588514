package coregrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMarshalText(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeOK, "0"},
		{CodeCanceled, "1"},
		{CodeUnauthenticated, "16"},
	}
	for _, tt := range tests {
		got, err := tt.code.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}

	_, err := Code(maxCode + 1).MarshalText()
	assert.Error(t, err)
}

func TestCodeUnmarshalText(t *testing.T) {
	tests := []struct {
		raw  string
		want Code
	}{
		{"0", CodeOK},
		{"OK", CodeOK},
		{"CANCELLED", CodeCanceled},
		{"13", CodeInternal},
		{"UNAUTHENTICATED", CodeUnauthenticated},
	}
	for _, tt := range tests {
		var c Code
		require.NoError(t, c.UnmarshalText([]byte(tt.raw)))
		assert.Equal(t, tt.want, c)
	}

	var c Code
	assert.Error(t, c.UnmarshalText([]byte("NOT_A_CODE")))
	assert.Error(t, c.UnmarshalText([]byte("999")))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "OK", CodeOK.String())
	assert.Equal(t, "Unimplemented", CodeUnimplemented.String())
	assert.Contains(t, Code(999).String(), "Code(999)")
}
