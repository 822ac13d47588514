package coregrpc

import (
	"compress/flate"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	kpgzip "github.com/klauspost/compress/gzip"
)

// CompressionIdentity is the sentinel "no compression" grpc-encoding value.
const CompressionIdentity = "identity"

// Compressor names a bidirectional compression scheme and builds
// writers/readers for it. NewWriter and NewReader are called per-message
// (not per-call) so implementations should pool underlying state
// internally if construction is expensive.
type Compressor interface {
	Name() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// CompressionRegistry is the read-only-after-build set of compression
// providers available to a method. It is constructed once during options
// resolution (§4.7) and never mutated afterward, so it's safe to share
// across concurrent calls without locking.
type CompressionRegistry struct {
	byName map[string]Compressor
	order  []string // registration order, identity always first
}

// NewCompressionRegistry builds a registry seeded with "identity" plus the
// given providers, in the order given (duplicates by name overwrite, last
// wins, matching a typical builder-pattern options API).
func NewCompressionRegistry(providers ...Compressor) *CompressionRegistry {
	reg := &CompressionRegistry{byName: make(map[string]Compressor)}
	reg.register(identityCompressor{})
	for _, p := range providers {
		reg.register(p)
	}
	return reg
}

// DefaultCompressionRegistry returns the registry MethodOptions falls back
// to when a service or global option set doesn't configure one: identity,
// gzip (fastest level, via klauspost/compress, a drop-in-faster
// compress/gzip), and deflate (stdlib compress/flate — no third-party
// deflate implementation appears anywhere in the reference corpus, so this
// one concern stays on the standard library).
func DefaultCompressionRegistry() *CompressionRegistry {
	return NewCompressionRegistry(
		newGzipCompressor(kpgzip.BestSpeed),
		newDeflateCompressor(flate.BestSpeed),
	)
}

func (r *CompressionRegistry) register(c Compressor) {
	name := c.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = c
}

// Lookup returns the provider registered under name, if any.
func (r *CompressionRegistry) Lookup(name string) (Compressor, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Has reports whether name is a registered provider.
func (r *CompressionRegistry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns the registered provider names, identity first, then the
// rest in registration order.
func (r *CompressionRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AcceptEncodingHeader returns the comma-joined provider list suitable for
// the grpc-accept-encoding response header.
func (r *CompressionRegistry) AcceptEncodingHeader() string {
	return strings.Join(r.Names(), ",")
}

// negotiateResponseEncoding picks the response compression given the
// client's grpc-accept-encoding header value, preferring non-identity
// providers the client declared support for, and falling back to identity.
func (r *CompressionRegistry) negotiateResponseEncoding(clientAccept string) string {
	if clientAccept == "" {
		return CompressionIdentity
	}
	for _, enc := range strings.FieldsFunc(clientAccept, func(c rune) bool { return c == ',' || c == ' ' }) {
		if enc == CompressionIdentity {
			continue
		}
		if r.Has(enc) {
			return enc
		}
	}
	return CompressionIdentity
}

type identityCompressor struct{}

func (identityCompressor) Name() string { return CompressionIdentity }
func (identityCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}
func (identityCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// gzipCompressor wraps klauspost/compress/gzip, pooling writers to avoid
// re-allocating the flate window per message.
type gzipCompressor struct {
	level int
	wpool sync.Pool
	rpool sync.Pool
}

func newGzipCompressor(level int) *gzipCompressor {
	return &gzipCompressor{level: level}
}

func (g *gzipCompressor) Name() string { return "gzip" }

func (g *gzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if pooled, ok := g.wpool.Get().(*kpgzip.Writer); ok {
		pooled.Reset(w)
		return &pooledGzipWriter{Writer: pooled, pool: &g.wpool}, nil
	}
	gw, err := kpgzip.NewWriterLevel(w, g.level)
	if err != nil {
		return nil, fmt.Errorf("coregrpc: construct gzip writer: %w", err)
	}
	return &pooledGzipWriter{Writer: gw, pool: &g.wpool}, nil
}

func (g *gzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	if pooled, ok := g.rpool.Get().(*kpgzip.Reader); ok {
		if err := pooled.Reset(r); err != nil {
			return nil, err
		}
		return &pooledGzipReader{Reader: pooled, pool: &g.rpool}, nil
	}
	gr, err := kpgzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &pooledGzipReader{Reader: gr, pool: &g.rpool}, nil
}

type pooledGzipWriter struct {
	*kpgzip.Writer
	pool *sync.Pool
}

func (p *pooledGzipWriter) Close() error {
	err := p.Writer.Close()
	p.pool.Put(p.Writer)
	return err
}

type pooledGzipReader struct {
	*kpgzip.Reader
	pool *sync.Pool
}

func (p *pooledGzipReader) Close() error {
	err := p.Reader.Close()
	p.pool.Put(p.Reader)
	return err
}

// deflateCompressor wraps the standard library's compress/flate. gRPC's
// "deflate" encoding is a raw DEFLATE stream (no zlib/gzip framing), which
// is exactly what compress/flate produces.
type deflateCompressor struct {
	level int
	wpool sync.Pool
}

func newDeflateCompressor(level int) *deflateCompressor {
	return &deflateCompressor{level: level}
}

func (d *deflateCompressor) Name() string { return "deflate" }

func (d *deflateCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if pooled, ok := d.wpool.Get().(*flate.Writer); ok {
		pooled.Reset(w)
		return &pooledFlateWriter{Writer: pooled, pool: &d.wpool}, nil
	}
	fw, err := flate.NewWriter(w, d.level)
	if err != nil {
		return nil, err
	}
	return &pooledFlateWriter{Writer: fw, pool: &d.wpool}, nil
}

func (d *deflateCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

type pooledFlateWriter struct {
	*flate.Writer
	pool *sync.Pool
}

func (p *pooledFlateWriter) Close() error {
	err := p.Writer.Close()
	p.pool.Put(p.Writer)
	return err
}

// sortedNames is a small helper used by tests to assert on a
// deterministic provider listing regardless of registration order.
func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
