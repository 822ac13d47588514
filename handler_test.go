package coregrpc

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func newHTTP2GRPCRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/greeter.v1.Greeter/SayHello", bytes.NewReader(body))
	req.ProtoMajor = 2
	req.Header.Set(headerContentType, contentTypeDefault+"+proto")
	return req
}

func marshalEnvelope(t *testing.T, msg []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, newEnvelopeWriter(&buf, nil, 0, nil).Write(msg, WriteOptions{}))
	return buf.Bytes()
}

func trailerStatus(rec *httptest.ResponseRecorder) Code {
	raw := rec.Header().Get(http.TrailerPrefix + httpCanonical(trailerGRPCStatus))
	n, _ := strconv.Atoi(raw)
	return Code(n)
}

func TestUnaryHandlerHappyPath(t *testing.T) {
	opts, err := ResolveMethodOptions(GlobalOptions{}, nil)
	require.NoError(t, err)

	_, handler, err := NewUnaryHandler[wrapperspb.StringValue, wrapperspb.StringValue](
		"greeter.v1.Greeter", "SayHello", opts,
		func(ctx *CallContext, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
			return NewResponse(wrapperspb.String("hello " + req.Msg.GetValue())), nil
		},
	)
	require.NoError(t, err)

	reqMsg, err := protoMarshalStringValue("world")
	require.NoError(t, err)

	req := newHTTP2GRPCRequest(t, marshalEnvelope(t, reqMsg))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, CodeOK, trailerStatus(rec))
	assert.Equal(t, contentTypeDefault+"+proto", rec.Header().Get(headerContentType))
}

func TestUnaryHandlerMapsHandlerErrorToStatus(t *testing.T) {
	opts, err := ResolveMethodOptions(GlobalOptions{}, nil)
	require.NoError(t, err)

	_, handler, err := NewUnaryHandler[wrapperspb.StringValue, wrapperspb.StringValue](
		"greeter.v1.Greeter", "SayHello", opts,
		func(ctx *CallContext, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
			return nil, NewError(CodeNotFound, "no such greeting")
		},
	)
	require.NoError(t, err)

	reqMsg, err := protoMarshalStringValue("world")
	require.NoError(t, err)

	req := newHTTP2GRPCRequest(t, marshalEnvelope(t, reqMsg))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, CodeNotFound, trailerStatus(rec))
}

func TestUnaryHandlerRejectsUnsupportedContentType(t *testing.T) {
	opts, err := ResolveMethodOptions(GlobalOptions{}, nil)
	require.NoError(t, err)

	_, handler, err := NewUnaryHandler[wrapperspb.StringValue, wrapperspb.StringValue](
		"greeter.v1.Greeter", "SayHello", opts,
		func(ctx *CallContext, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
			t.Fatal("handler must not run for a rejected content-type")
			return nil, nil
		},
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/greeter.v1.Greeter/SayHello", nil)
	req.ProtoMajor = 2
	req.Header.Set(headerContentType, "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUnaryHandlerRejectsHTTP1(t *testing.T) {
	opts, err := ResolveMethodOptions(GlobalOptions{}, nil)
	require.NoError(t, err)

	_, handler, err := NewUnaryHandler[wrapperspb.StringValue, wrapperspb.StringValue](
		"greeter.v1.Greeter", "SayHello", opts,
		func(ctx *CallContext, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
			t.Fatal("handler must not run over HTTP/1.1")
			return nil, nil
		},
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/greeter.v1.Greeter/SayHello", nil)
	req.Header.Set(headerContentType, contentTypeDefault)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}

func TestUnaryHandlerReportsDeadlineExceededLiteralText(t *testing.T) {
	opts, err := ResolveMethodOptions(GlobalOptions{}, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	_, handler, err := NewUnaryHandler[wrapperspb.StringValue, wrapperspb.StringValue](
		"greeter.v1.Greeter", "SayHello", opts,
		func(ctx *CallContext, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
			<-ctx.Context().Done()
			close(release)
			return nil, ctx.Context().Err()
		},
	)
	require.NoError(t, err)

	reqMsg, err := protoMarshalStringValue("world")
	require.NoError(t, err)

	req := newHTTP2GRPCRequest(t, marshalEnvelope(t, reqMsg))
	req.Header.Set(headerGRPCTimeout, "1m") // 1 millisecond
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	select {
	case <-release:
	case <-time.After(time.Second):
		t.Fatal("handler never observed the deadline firing")
	}

	assert.Equal(t, CodeDeadlineExceeded, trailerStatus(rec))
	assert.Equal(t, "Deadline Exceeded",
		rec.Header().Get(http.TrailerPrefix+httpCanonical(trailerGRPCMessage)))
}

// protoMarshalStringValue is a small helper so tests don't need to import
// the proto package directly for such a small bit of marshaling.
func protoMarshalStringValue(s string) ([]byte, error) {
	return protoCodec{}.Marshal(wrapperspb.String(s))
}
