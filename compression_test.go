package coregrpc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCompressionRegistryNames(t *testing.T) {
	reg := DefaultCompressionRegistry()
	assert.Equal(t, []string{"deflate", "gzip", "identity"}, sortedNames(reg.Names()))
	assert.True(t, reg.Has(CompressionIdentity))
}

func TestCompressionRegistryRoundTrip(t *testing.T) {
	reg := DefaultCompressionRegistry()
	payload := []byte("the quick brown fox jumps over the lazy dog")

	for _, name := range []string{"gzip", "deflate"} {
		t.Run(name, func(t *testing.T) {
			compressor, ok := reg.Lookup(name)
			require.True(t, ok)

			var buf bytes.Buffer
			w, err := compressor.NewWriter(&buf)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := compressor.NewReader(&buf)
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestNegotiateResponseEncodingPrefersClientSupportedNonIdentity(t *testing.T) {
	reg := DefaultCompressionRegistry()

	assert.Equal(t, "gzip", reg.negotiateResponseEncoding("gzip,br"))
	assert.Equal(t, CompressionIdentity, reg.negotiateResponseEncoding(""))
	assert.Equal(t, CompressionIdentity, reg.negotiateResponseEncoding("identity"))
	assert.Equal(t, CompressionIdentity, reg.negotiateResponseEncoding("br"))
}

func TestIdentityCompressorIsNoop(t *testing.T) {
	var buf bytes.Buffer
	compressor := identityCompressor{}
	w, err := compressor.NewWriter(&buf)
	require.NoError(t, err)
	_, _ = w.Write([]byte("hello"))
	require.NoError(t, w.Close())
	assert.Equal(t, "hello", buf.String())
}
