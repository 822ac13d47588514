package coregrpc

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataAddAndGet(t *testing.T) {
	m := make(Metadata)
	m.Add("X-Custom", "one")
	m.Add("x-custom", "two")

	assert.Equal(t, "one", m.Get("X-CUSTOM"))
	assert.Equal(t, []string{"one", "two"}, m.Values("x-custom"))
}

func TestMetadataSetReplaces(t *testing.T) {
	m := make(Metadata)
	m.Add("k", "a")
	m.Set("k", "b")
	assert.Equal(t, []string{"b"}, m.Values("k"))
}

func TestMetadataBinaryRoundTrip(t *testing.T) {
	m := make(Metadata)
	require.NoError(t, m.AddBinary("trace-bin", []byte{0x01, 0x02, 0x03}))

	got, err := m.GetBinary("trace-bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}

func TestMetadataAddBinaryRejectsNonBinaryKey(t *testing.T) {
	m := make(Metadata)
	err := m.AddBinary("trace", []byte("x"))
	assert.Error(t, err)
}

func TestDecodeBinaryValueTolerantPadding(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"unpadded mod3", "YWI", false},
		{"fully padded", "YWJj", false},
		{"invalid mod1 length", "YWJjZ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBinaryValue(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRequestMetadataFromHTTPFiltersTransportHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", contentTypeDefault)
	h.Set("Grpc-Timeout", "10S")
	h.Set("Authorization", "Bearer xyz")

	m := newRequestMetadataFromHTTP(h)
	assert.Empty(t, m.Get("content-type"))
	assert.Empty(t, m.Get("grpc-timeout"))
	assert.Equal(t, "Bearer xyz", m.Get("authorization"))
}

func TestMetadataCloneIsIndependent(t *testing.T) {
	m := make(Metadata)
	m.Add("k", "v1")
	clone := m.Clone()
	clone.Add("k", "v2")

	assert.Equal(t, []string{"v1"}, m.Values("k"))
	assert.Equal(t, []string{"v1", "v2"}, clone.Values("k"))
}
