package coregrpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/coregrpc/coregrpc/internal/bufferpool"
)

// envelopeHeaderSize is the fixed 5-byte frame header: 1 compressed-flag
// byte + 4 big-endian length bytes.
const envelopeHeaderSize = 5

// frameOptions configures one read or write of the framing codec; it is
// threaded through from the resolved MethodOptions plus any per-write
// overrides (WriteOptions).
type frameOptions struct {
	Compressor      Compressor // nil or identityCompressor means "don't compress"
	MaxReceiveBytes int        // 0 means unbounded
	MaxSendBytes    int        // 0 means unbounded
	BufferPool      *bufferpool.Pool
	// SupportedEncodings lists the names this call's CompressionRegistry
	// recognizes, so an unsupported grpc-encoding error can tell the
	// client what it should have sent instead.
	SupportedEncodings []string
}

// WriteOptions are the per-write flags a Stream Writer passes through to
// the codec, per spec §4.4.
type WriteOptions struct {
	// BufferHint tells write_streamed not to flush after this message,
	// because more writes are expected imminently.
	BufferHint bool
	// NoCompress forces this one message to be sent uncompressed even if
	// the call's negotiated response encoding is non-identity.
	NoCompress bool
}

// envelope is one decoded message frame: its payload bytes and whether it
// arrived compressed.
type envelope struct {
	Data       []byte
	Compressed bool
}

// readEnvelopeHeader decodes the 5-byte frame header from r. It returns
// io.EOF only when zero bytes could be read at all (clean end of stream);
// a partial header is reported as the "incomplete message" Internal error.
func readEnvelopeHeader(r io.Reader) (compressed bool, length uint32, err error) {
	var hdr [envelopeHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return false, 0, io.EOF
		}
		if isCancellationShaped(err) {
			return false, 0, NewError(CodeInternal, "Incoming message cancelled.")
		}
		return false, 0, NewError(CodeInternal, "Incomplete message.")
	}
	switch hdr[0] {
	case 0:
		compressed = false
	case 1:
		compressed = true
	default:
		return false, 0, NewErrorf(CodeInternal, "invalid compressed-flag byte %d", hdr[0])
	}
	length = binary.BigEndian.Uint32(hdr[1:5])
	if length > math.MaxInt32 {
		return false, 0, NewErrorf(CodeInternal, "invalid message length %d", length)
	}
	return compressed, length, nil
}

// readSingle reads exactly one length-prefixed frame from r, decompressing
// it if necessary, and fails if any bytes remain afterward (the "no
// additional data" invariant for unary and client-stream-final reads).
func readSingle(r io.Reader, grpcEncoding string, opts frameOptions) ([]byte, error) {
	payload, err := readOneEnvelope(r, grpcEncoding, opts)
	if err != nil {
		return nil, err
	}
	var extra [1]byte
	if n, _ := io.ReadFull(r, extra[:]); n > 0 {
		return nil, NewError(CodeInternal, "Additional data after the message received.")
	}
	return payload, nil
}

// readOneEnvelope reads and decompresses a single frame, enforcing
// MaxReceiveBytes before any allocation of the declared length.
func readOneEnvelope(r io.Reader, grpcEncoding string, opts frameOptions) ([]byte, error) {
	compressed, length, err := readEnvelopeHeader(r)
	if err != nil {
		return nil, err
	}
	if opts.MaxReceiveBytes > 0 && int(length) > opts.MaxReceiveBytes {
		// Discard without allocating a length-sized buffer: drain through a
		// small fixed buffer so the connection can still be reused.
		if err := discard(r, int64(length)); err != nil {
			return nil, err
		}
		return nil, NewErrorf(CodeResourceExhausted,
			"Received message exceeds the maximum configured message size.")
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		if isCancellationShaped(err) {
			return nil, NewError(CodeInternal, "Incoming message cancelled.")
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, NewError(CodeInternal, "Incomplete message.")
		}
		return nil, NewErrorf(CodeInternal, "read message: %v", err)
	}

	if !compressed {
		return raw, nil
	}
	return decompressPayload(raw, grpcEncoding, opts)
}

func decompressPayload(raw []byte, grpcEncoding string, opts frameOptions) ([]byte, error) {
	if grpcEncoding == "" {
		return nil, NewError(CodeInternal,
			"Request did not include grpc-encoding value with compressed message.")
	}
	if grpcEncoding == CompressionIdentity {
		return nil, NewError(CodeInternal,
			"Request sent 'identity' grpc-encoding value with compressed message.")
	}
	if opts.Compressor == nil || opts.Compressor.Name() != grpcEncoding {
		return nil, NewErrorf(CodeUnimplemented,
			"Unsupported grpc-encoding value '%s'. Supported encodings: %s",
			grpcEncoding, strings.Join(opts.SupportedEncodings, ", "))
	}
	reader, err := opts.Compressor.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, NewErrorf(CodeInternal, "construct decompressor: %v", err)
	}
	defer reader.Close()
	var maxBytes int64
	if opts.MaxReceiveBytes > 0 {
		maxBytes = int64(opts.MaxReceiveBytes) + 1 // +1 so an over-limit payload shows up in the length check below
	}
	var out bytes.Buffer
	var limited io.Reader = reader
	if maxBytes > 0 {
		limited = io.LimitReader(reader, maxBytes)
	}
	if _, err := out.ReadFrom(limited); err != nil {
		return nil, NewErrorf(CodeInternal, "decompress message: %v", err)
	}
	if opts.MaxReceiveBytes > 0 && out.Len() > opts.MaxReceiveBytes {
		return nil, NewErrorf(CodeResourceExhausted,
			"Received message exceeds the maximum configured message size.")
	}
	return out.Bytes(), nil
}

func discard(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	if err != nil && !errors.Is(err, io.EOF) {
		if isCancellationShaped(err) {
			return NewError(CodeInternal, "Incoming message cancelled.")
		}
		return NewError(CodeInternal, "Incomplete message.")
	}
	return nil
}

// envelopeReader exposes the codec's streaming-read half as a
// finite, non-restartable iterator, matching spec §4.1's "lazy sequence".
type envelopeReader struct {
	src          io.Reader
	grpcEncoding string
	opts         frameOptions
	done         bool
}

func newEnvelopeReader(src io.Reader, grpcEncoding string, opts frameOptions) *envelopeReader {
	return &envelopeReader{src: src, grpcEncoding: grpcEncoding, opts: opts}
}

// Next returns the next frame's payload, or (nil, io.EOF) once the stream
// is exhausted. Subsequent calls after io.EOF or any other error continue
// to return that same terminal outcome.
func (er *envelopeReader) Next() ([]byte, error) {
	if er.done {
		return nil, io.EOF
	}
	payload, err := readOneEnvelope(er.src, er.grpcEncoding, er.opts)
	if err != nil {
		er.done = true
		return nil, err
	}
	return payload, nil
}

// envelopeWriter writes length-prefixed, optionally compressed frames to a
// sink. The uncompressed path writes the header directly followed by the
// caller's payload slice with no intermediate copy. The compressed path
// buffers into a pooled growable buffer first, since the 4-byte length
// field must reflect the post-compression size, which isn't known until
// compression finishes.
type envelopeWriter struct {
	dst        io.Writer
	compressor Compressor // resolved response compression, or nil/identity
	maxSend    int
	pool       *bufferpool.Pool
}

func newEnvelopeWriter(dst io.Writer, compressor Compressor, maxSend int, pool *bufferpool.Pool) *envelopeWriter {
	return &envelopeWriter{dst: dst, compressor: compressor, maxSend: maxSend, pool: pool}
}

// Write encodes and emits one frame for payload, honoring the write's
// options (NoCompress) and the codec's size ceiling.
func (ew *envelopeWriter) Write(payload []byte, opts WriteOptions) error {
	useCompression := ew.compressor != nil && ew.compressor.Name() != CompressionIdentity && !opts.NoCompress

	if !useCompression {
		if ew.maxSend > 0 && len(payload) > ew.maxSend {
			return NewError(CodeResourceExhausted, "Sending message exceeds the maximum configured message size.")
		}
		return ew.writeFrame(false, payload)
	}

	buf := ew.pool.Get()
	defer ew.pool.Put(buf)
	w, err := ew.compressor.NewWriter(buf)
	if err != nil {
		return NewErrorf(CodeInternal, "construct compressor: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return NewErrorf(CodeInternal, "compress message: %v", err)
	}
	if err := w.Close(); err != nil {
		return NewErrorf(CodeInternal, "flush compressor: %v", err)
	}
	compressed := buf.Bytes()
	if ew.maxSend > 0 && len(compressed) > ew.maxSend {
		return NewError(CodeResourceExhausted, "Sending message exceeds the maximum configured message size.")
	}
	return ew.writeFrame(true, compressed)
}

func (ew *envelopeWriter) writeFrame(compressed bool, payload []byte) error {
	var hdr [envelopeHeaderSize]byte
	if compressed {
		hdr[0] = 1
	}
	if len(payload) > math.MaxUint32 {
		return NewErrorf(CodeResourceExhausted, "message of %d bytes exceeds the frame length field", len(payload))
	}
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(payload)))
	if _, err := ew.dst.Write(hdr[:]); err != nil {
		return fmt.Errorf("coregrpc: write frame header: %w", err)
	}
	if _, err := ew.dst.Write(payload); err != nil {
		return fmt.Errorf("coregrpc: write frame payload: %w", err)
	}
	return nil
}
