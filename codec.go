package coregrpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Codec is the (de)serializer pair the spec's Method descriptor names as
// "serializer, deserializer". Producing typed Codec-compatible message
// types is the generator's job and is out of scope for this core (§1); the
// core only resolves a Codec by name and calls it.
type Codec interface {
	// Name is the content-type subtype this codec answers to
	// ("application/grpc+<name>"); "proto" is also the implicit subtype of
	// the bare "application/grpc" content type.
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CodecRegistry maps a negotiated content-type subtype to a Codec. Like
// CompressionRegistry, it is built once at options-resolution time and
// never mutated afterward.
type CodecRegistry struct {
	byName map[string]Codec
}

// NewCodecRegistry builds a registry from the given codecs, keyed by their
// own Name().
func NewCodecRegistry(codecs ...Codec) *CodecRegistry {
	reg := &CodecRegistry{byName: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		reg.byName[c.Name()] = c
	}
	return reg
}

// DefaultCodecRegistry ships "proto" (binary wire format via
// google.golang.org/protobuf, the teacher's own direct dependency) and
// "json" (via protojson, from the same module) — the two subtypes the
// reference ecosystem's gRPC-over-HTTP/2 servers commonly serve.
func DefaultCodecRegistry() *CodecRegistry {
	return NewCodecRegistry(protoCodec{}, protoJSONCodec{})
}

// Lookup returns the codec registered for name.
func (r *CodecRegistry) Lookup(name string) (Codec, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// protoCodec marshals proto.Message values with the binary wire format.
// v must implement proto.Message; a type assertion failure is returned as
// a plain error, which StreamingHandlerConn reports as CodeInternal on the
// Marshal (send) side and as CodeInvalidArgument on the Unmarshal
// (receive) side, like any other codec failure there.
type protoCodec struct{}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("coregrpc: proto codec cannot marshal %T: not a proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("coregrpc: proto codec cannot unmarshal into %T: not a proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

// protoJSONCodec marshals proto.Message values using protojson, serving
// the "application/grpc+json" content-type subtype.
type protoJSONCodec struct{}

func (protoJSONCodec) Name() string { return "json" }

func (protoJSONCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("coregrpc: json codec cannot marshal %T: not a proto.Message", v)
	}
	return protojson.Marshal(msg)
}

func (protoJSONCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("coregrpc: json codec cannot unmarshal into %T: not a proto.Message", v)
	}
	return protojson.Unmarshal(data, msg)
}
