// Command pingserver is a runnable example exercising all four call
// shapes this core supports, in the spirit of the teacher library's own
// repro/main.go: a trivial service wired up behind a gin + h2c listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/coregrpc/coregrpc"
)

// pingService implements a Ping/Sum/CountUp/CumSum surface using the
// protobuf module's own bundled wrapper types in place of a generated
// service — this core never generates code, so the example stands in
// real proto.Message values where a generated API would normally appear.
type pingService struct{}

func (pingService) Ping(ctx *coregrpc.CallContext, req *coregrpc.Request[wrapperspb.StringValue]) (*coregrpc.Response[wrapperspb.StringValue], error) {
	return coregrpc.NewResponse(wrapperspb.String(req.Msg.GetValue())), nil
}

func (pingService) Sum(ctx *coregrpc.CallContext, stream *coregrpc.ClientStream[wrapperspb.Int64Value]) (*coregrpc.Response[wrapperspb.Int64Value], error) {
	var sum int64
	for stream.Receive() {
		sum += stream.Msg().GetValue()
	}
	if stream.Err() != nil {
		return nil, stream.Err()
	}
	return coregrpc.NewResponse(wrapperspb.Int64(sum)), nil
}

func (pingService) CountUp(ctx *coregrpc.CallContext, req *coregrpc.Request[wrapperspb.Int64Value], stream *coregrpc.ServerStream[wrapperspb.Int64Value]) error {
	n := req.Msg.GetValue()
	if n < 0 {
		return coregrpc.NewError(coregrpc.CodeInvalidArgument, "number must be non-negative")
	}
	for i := int64(1); i <= n; i++ {
		if err := stream.Send(wrapperspb.Int64(i)); err != nil {
			return err
		}
	}
	return nil
}

func (pingService) CumSum(ctx *coregrpc.CallContext, stream *coregrpc.BidiStream[wrapperspb.Int64Value, wrapperspb.Int64Value]) error {
	var sum int64
	for {
		msg, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		sum += msg.GetValue()
		if err := stream.Send(wrapperspb.Int64(sum)); err != nil {
			return err
		}
	}
}

func newMux(logger *zap.Logger) *coregrpc.Mux {
	obs := coregrpc.NewZapObservability(logger)
	global := coregrpc.GlobalOptions{DetailedErrors: viper.GetBool("detailed-errors")}
	opts, err := coregrpc.ResolveMethodOptions(global, nil)
	if err != nil {
		logger.Fatal("resolve service options", zap.Error(err))
	}

	activator := coregrpc.NewSingletonActivator(pingService{})

	mux := coregrpc.NewMux(obs)
	mux.RegisterService(
		coregrpc.Bind(coregrpc.NewUnaryHandler("ping.v1.PingService", "Ping", opts,
			coregrpc.BindUnary(activator, pingService.Ping))),
		coregrpc.Bind(coregrpc.NewClientStreamHandler("ping.v1.PingService", "Sum", opts,
			coregrpc.BindClientStream(activator, pingService.Sum))),
		coregrpc.Bind(coregrpc.NewServerStreamHandler("ping.v1.PingService", "CountUp", opts,
			coregrpc.BindServerStream(activator, pingService.CountUp))),
		coregrpc.Bind(coregrpc.NewBidiStreamHandler("ping.v1.PingService", "CumSum", opts,
			coregrpc.BindBidi(activator, pingService.CumSum))),
	)
	return mux
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pingserver",
		Short: "Run the example ping service over gRPC-over-HTTP/2 (h2c)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			mux := newMux(logger)

			app := gin.New()
			app.UseH2C = true
			app.NoRoute(gin.WrapH(mux))

			addr := viper.GetString("addr")
			logger.Info("pingserver listening", zap.String("addr", addr))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- app.Run(addr) }()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().String("addr", ":8080", "address to listen on")
	cmd.Flags().Bool("detailed-errors", false, "include handler error text in grpc-message trailers")
	_ = viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("PINGSERVER")
	viper.AutomaticEnv()
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
