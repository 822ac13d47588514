package coregrpc

import "fmt"

// StreamType identifies which of the four call shapes a method implements.
type StreamType int

const (
	StreamTypeUnary StreamType = iota
	StreamTypeClientStream
	StreamTypeServerStream
	StreamTypeDuplex
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeUnary:
		return "unary"
	case StreamTypeClientStream:
		return "client-stream"
	case StreamTypeServerStream:
		return "server-stream"
	case StreamTypeDuplex:
		return "duplex"
	}
	return "unknown"
}

// MethodDescriptor is the immutable identity of one RPC method: spec §3's
// method descriptor. It never changes after registration and is safe to
// share across every concurrent call to that method.
type MethodDescriptor struct {
	ServiceName string
	MethodName  string
	Kind        StreamType
}

// FullName is "<service>/<method>", the routing key used both on the wire
// (as the URL path) and as the registry's unique key.
func (d MethodDescriptor) FullName() string {
	return d.ServiceName + "/" + d.MethodName
}

func (d MethodDescriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.FullName(), d.Kind)
}

// newMethodDescriptor validates that neither name is empty before building
// a descriptor; registration fails fast rather than producing a malformed
// full name.
func newMethodDescriptor(service, method string, kind StreamType) (MethodDescriptor, error) {
	if service == "" || method == "" {
		return MethodDescriptor{}, fmt.Errorf("coregrpc: service and method names must be non-empty, got %q/%q", service, method)
	}
	return MethodDescriptor{ServiceName: service, MethodName: method, Kind: kind}, nil
}
