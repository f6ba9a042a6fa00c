package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// StreamMethod is the bidirectional engine stream carrying wire frames.
const StreamMethod = "/parley.engine.v1.Engine/Stream"

// StreamDesc describes StreamMethod for clients and test servers.
var StreamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

// FrameCodec passes already-encoded wire frames through gRPC untouched.
type FrameCodec struct{}

func (FrameCodec) Name() string { return "parley-frame" }

func (FrameCodec) Marshal(v any) ([]byte, error) {
	switch f := v.(type) {
	case []byte:
		return f, nil
	case *[]byte:
		return *f, nil
	default:
		return nil, fmt.Errorf("frame codec cannot marshal %T", v)
	}
}

func (FrameCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("frame codec cannot unmarshal into %T", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

type grpcTransport struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
}

// DialGRPC opens the engine stream over an insecure gRPC connection.
func DialGRPC(ctx context.Context, target, token string, timeout time.Duration) (Transport, error) {
	if target == "" {
		return nil, errors.New("grpc engine target is empty")
	}

	conn, err := grpc.NewClient(
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(FrameCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial engine grpc %q: %w", target, err)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, timeout)
	defer cancelReady()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for engine grpc readiness: %w", err)
	}

	// The stream outlives the dial context; Close cancels it.
	streamCtx, cancel := context.WithCancel(context.Background())
	if token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+token)
	}

	var stream grpc.ClientStream
	err = runWithTimeout(ctx, timeout, func() error {
		var openErr error
		stream, openErr = conn.NewStream(streamCtx, &StreamDesc, StreamMethod)
		return openErr
	})
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open engine stream: %w", err)
	}

	return &grpcTransport{conn: conn, stream: stream, cancel: cancel}, nil
}

func (t *grpcTransport) Send(_ context.Context, frame []byte) error {
	return t.stream.SendMsg(&frame)
}

func (t *grpcTransport) Recv(context.Context) ([]byte, error) {
	var frame []byte
	if err := t.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (t *grpcTransport) Close() error {
	_ = t.stream.CloseSend()
	t.cancel()
	return t.conn.Close()
}

// waitForReady blocks until the connection is Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}

// runWithTimeout bounds one blocking stream call.
func runWithTimeout(ctx context.Context, timeout time.Duration, call func() error) error {
	if timeout <= 0 {
		return call()
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- call()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case err := <-resultCh:
		return err
	}
}
