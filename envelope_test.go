package coregrpc

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregrpc/coregrpc/internal/bufferpool"
)

func TestEnvelopeWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writer := newEnvelopeWriter(&buf, nil, 0, &bufferpool.Pool{})
	require.NoError(t, writer.Write([]byte("hello"), WriteOptions{}))
	require.NoError(t, writer.Write([]byte("world"), WriteOptions{}))

	reader := newEnvelopeReader(&buf, CompressionIdentity, frameOptions{})
	msg1, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg1))

	msg2, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "world", string(msg2))

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEnvelopeWriterCompressedRoundTrip(t *testing.T) {
	gzipCompressor := newGzipCompressor(6)
	var buf bytes.Buffer
	writer := newEnvelopeWriter(&buf, gzipCompressor, 0, &bufferpool.Pool{})
	require.NoError(t, writer.Write([]byte("compress me"), WriteOptions{}))

	opts := frameOptions{Compressor: gzipCompressor}
	reader := newEnvelopeReader(&buf, "gzip", opts)
	msg, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "compress me", string(msg))
}

func TestReadOneEnvelopeEnforcesMaxReceiveBytes(t *testing.T) {
	var buf bytes.Buffer
	writer := newEnvelopeWriter(&buf, nil, 0, &bufferpool.Pool{})
	require.NoError(t, writer.Write(bytes.Repeat([]byte("x"), 100), WriteOptions{}))

	_, err := readOneEnvelope(&buf, CompressionIdentity, frameOptions{MaxReceiveBytes: 10})
	require.Error(t, err)
	assert.Equal(t, CodeResourceExhausted, CodeOf(err))
}

func TestDecompressPayloadRejectsMissingEncoding(t *testing.T) {
	_, err := decompressPayload([]byte("junk"), "", frameOptions{})
	require.Error(t, err)
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestDecompressPayloadRejectsIdentityCompressedFlag(t *testing.T) {
	_, err := decompressPayload([]byte("junk"), CompressionIdentity, frameOptions{})
	require.Error(t, err)
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestDecompressPayloadRejectsUnknownEncoding(t *testing.T) {
	_, err := decompressPayload([]byte("junk"), "snappy", frameOptions{
		Compressor:         newGzipCompressor(6),
		SupportedEncodings: []string{"identity", "gzip"},
	})
	require.Error(t, err)
	assert.Equal(t, CodeUnimplemented, CodeOf(err))
	rpcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Unsupported grpc-encoding value 'snappy'. Supported encodings: identity, gzip", rpcErr.Status().Detail)
}

func TestReadOneEnvelopeReportsCancellationDistinctlyFromTruncation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := readOneEnvelope(&cancelingReader{err: ctx.Err()}, CompressionIdentity, frameOptions{})
	require.Error(t, err)
	rpcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Incoming message cancelled.", rpcErr.Status().Detail)
}

func TestReadOneEnvelopeReportsTruncationWhenNotCanceled(t *testing.T) {
	_, err := readOneEnvelope(bytes.NewReader([]byte{0, 0}), CompressionIdentity, frameOptions{})
	require.Error(t, err)
	rpcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Incomplete message.", rpcErr.Status().Detail)
}

// cancelingReader always fails its Read with a fixed, already-shaped error
// (e.g. a canceled context), simulating a transport that gave up mid-frame
// rather than one that merely ran out of bytes.
type cancelingReader struct{ err error }

func (r *cancelingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadSingleRejectsAdditionalData(t *testing.T) {
	var buf bytes.Buffer
	writer := newEnvelopeWriter(&buf, nil, 0, &bufferpool.Pool{})
	require.NoError(t, writer.Write([]byte("one"), WriteOptions{}))
	require.NoError(t, writer.Write([]byte("two"), WriteOptions{}))

	_, err := readSingle(&buf, CompressionIdentity, frameOptions{})
	require.Error(t, err)
	assert.Equal(t, CodeInternal, CodeOf(err))
}
