package coregrpc

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Metadata is an ordered, multi-valued map of call metadata: request
// headers, response headers, and response trailers are all represented this
// way. Keys are always lower-cased ASCII; a key ending in "-bin" carries
// base64-encoded binary values on the wire but is exposed to callers as raw
// bytes via GetBinary/AddBinary.
//
// Insertion order is preserved within each key's value slice; duplicate
// keys are permitted, matching HTTP semantics.
type Metadata map[string][]string

// IsBinaryKey reports whether key is a binary ("-bin" suffixed) metadata
// key. Binary keys carry base64 text on the wire.
func IsBinaryKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), binaryHeaderSuffix)
}

// Add appends value to key's value list, preserving any existing values.
func (m Metadata) Add(key, value string) {
	key = strings.ToLower(key)
	m[key] = append(m[key], value)
}

// Set replaces key's value list with a single value.
func (m Metadata) Set(key, value string) {
	key = strings.ToLower(key)
	m[key] = []string{value}
}

// Get returns the first value associated with key, or "" if absent.
func (m Metadata) Get(key string) string {
	vs := m[strings.ToLower(key)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns every value associated with key, in insertion order. The
// returned slice must not be mutated by the caller.
func (m Metadata) Values(key string) []string {
	return m[strings.ToLower(key)]
}

// AddBinary base64-encodes value and appends it under key, which must be a
// "-bin" key; this is the write-side half of the "-bin base64 rule"
// invariant.
func (m Metadata) AddBinary(key string, value []byte) error {
	if !IsBinaryKey(key) {
		return fmt.Errorf("coregrpc: %q is not a binary (-bin) metadata key", key)
	}
	m.Add(key, base64.StdEncoding.EncodeToString(value))
	return nil
}

// GetBinary returns the first value associated with key, base64-decoded.
// Per spec, padding lengths of 0, 2, or 3 (mod 4) are accepted tolerantly;
// a length of 1 mod 4 is always malformed and returns an error.
func (m Metadata) GetBinary(key string) ([]byte, error) {
	raw := m.Get(key)
	if raw == "" {
		return nil, nil
	}
	return decodeBinaryValue(raw)
}

func decodeBinaryValue(raw string) ([]byte, error) {
	if len(raw)%4 == 1 {
		return nil, fmt.Errorf("coregrpc: invalid base64 metadata value: length %d mod 4 == 1", len(raw))
	}
	// Accept both padded and unpadded forms; StdEncoding requires padding,
	// so pad out short tails before decoding.
	switch len(raw) % 4 {
	case 2:
		raw += "=="
	case 3:
		raw += "="
	}
	return base64.StdEncoding.DecodeString(raw)
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, vs := range m {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

// merge copies every entry of other into m, appending to any existing
// values for shared keys (the "merge" half of the merge/override policy;
// call Set first if override semantics are wanted instead).
func (m Metadata) merge(other Metadata) {
	for k, vs := range other {
		m[k] = append(m[k], vs...)
	}
}

// newRequestMetadataFromHTTP builds the user-visible request headers view
// from raw transport headers: pseudo-headers and filtered transport names
// are dropped, and every remaining key is lower-cased. This is the "built
// once on first access" view described in spec §4.2; binary values are left
// as their wire (base64) form here — GetBinary decodes lazily.
func newRequestMetadataFromHTTP(h http.Header) Metadata {
	out := make(Metadata, len(h))
	for k, vs := range h {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, ":") {
			continue // HTTP/2 pseudo-header, shouldn't appear in http.Header but guard anyway
		}
		if filteredRequestHeaders[lower] {
			continue
		}
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[lower] = cp
	}
	return out
}

// writeToHTTPHeader copies m into h, preserving multi-value ordering.
// Binary ("-bin") values are expected to already be base64-encoded text by
// the time they reach here (see AddBinary).
func (m Metadata) writeToHTTPHeader(h http.Header) {
	for k, vs := range m {
		canonical := http.CanonicalHeaderKey(k)
		for _, v := range vs {
			h.Add(canonical, v)
		}
	}
}
