package coregrpc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestMuxRoutesRegisteredMethod(t *testing.T) {
	opts, err := ResolveMethodOptions(GlobalOptions{}, nil)
	require.NoError(t, err)

	desc, handler, err := NewUnaryHandler[wrapperspb.StringValue, wrapperspb.StringValue](
		"greeter.v1.Greeter", "SayHello", opts,
		func(ctx *CallContext, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
			return NewResponse(wrapperspb.String("hi")), nil
		},
	)
	require.NoError(t, err)

	mux := NewMux(nil)
	mux.Register(desc, handler)

	reqMsg, err := protoMarshalStringValue("x")
	require.NoError(t, err)
	req := newHTTP2GRPCRequest(t, marshalEnvelope(t, reqMsg))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, CodeOK, trailerStatus(rec))
	assert.Len(t, mux.Descriptors(), 1)
}

func TestMuxServesUnimplementedForUnknownMethod(t *testing.T) {
	mux := NewMux(nil)
	req := httptest.NewRequest(http.MethodPost, "/greeter.v1.Greeter/DoesNotExist", nil)
	req.ProtoMajor = 2
	req.Header.Set(headerContentType, contentTypeDefault)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, CodeUnimplemented, trailerStatus(rec))
	assert.Equal(t, "Method is unimplemented.",
		rec.Header().Get(http.TrailerPrefix+httpCanonical(trailerGRPCMessage)))
}
