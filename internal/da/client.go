package da

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientConfig addresses a light node.
type ClientConfig struct {
	Hostname string
	Port     uint16
	// Metrics instruments every call when set. The caller registers it.
	Metrics *grpc_prometheus.ClientMetrics
}

func (c ClientConfig) Target() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(int(c.Port)))
}

// GRPCClient implements LightNodeClient over gRPC using the runtime light node descriptor.
type GRPCClient struct {
	conn           *grpc.ClientConn
	batchWritePath string
	streamPath     string
	streamDesc     *grpc.StreamDesc
}

var _ LightNodeClient = (*GRPCClient)(nil)

func NewGRPCClient(cfg ClientConfig, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.Metrics != nil {
		dialOpts = append(dialOpts,
			grpc.WithChainUnaryInterceptor(cfg.Metrics.UnaryClientInterceptor()),
			grpc.WithChainStreamInterceptor(cfg.Metrics.StreamClientInterceptor()),
		)
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Target(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create light node client for %s: %w", cfg.Target(), err)
	}
	return newGRPCClient(conn)
}

func newGRPCClient(conn *grpc.ClientConn) (*GRPCClient, error) {
	batchWritePath, err := methodPath(batchWriteMethod)
	if err != nil {
		return nil, err
	}
	streamPath, err := methodPath(streamReadFromHeightMethod)
	if err != nil {
		return nil, err
	}
	md, err := methodDescriptor(streamReadFromHeightMethod)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{
		conn:           conn,
		batchWritePath: batchWritePath,
		streamPath:     streamPath,
		streamDesc: &grpc.StreamDesc{
			StreamName:    string(md.Name()),
			ServerStreams: md.IsStreamingServer(),
		},
	}, nil
}

func (c *GRPCClient) BatchWrite(ctx context.Context, req *BatchWriteRequest) (*BatchWriteResponse, error) {
	in, err := encodeBatchWriteRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := newMessage("BatchWriteResponse")
	if err != nil {
		return nil, err
	}
	if err := c.conn.Invoke(ctx, c.batchWritePath, in, out); err != nil {
		return nil, fmt.Errorf("batch write of %d blobs: %w", len(req.Blobs), err)
	}
	return decodeBatchWriteResponse(out), nil
}

// StreamReadFromHeight opens a server stream. Cancelling ctx closes it.
func (c *GRPCClient) StreamReadFromHeight(ctx context.Context, req *StreamReadFromHeightRequest) (BlobStream, error) {
	in, err := encodeStreamRequest(req)
	if err != nil {
		return nil, err
	}
	cs, err := c.conn.NewStream(ctx, c.streamDesc, c.streamPath)
	if err != nil {
		return nil, fmt.Errorf("open stream from height %d: %w", req.Height, err)
	}
	if err := cs.SendMsg(in); err != nil {
		return nil, fmt.Errorf("send stream request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("close stream send side: %w", err)
	}
	slog.Debug("Opened light node stream", "height", req.Height, "target", c.conn.Target())
	return &grpcBlobStream{stream: cs}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

type grpcBlobStream struct {
	stream grpc.ClientStream
}

// Recv returns io.EOF unwrapped when the server ends the stream.
func (s *grpcBlobStream) Recv() (*StreamReadFromHeightResponse, error) {
	msg, err := newMessage("StreamReadFromHeightResponse")
	if err != nil {
		return nil, err
	}
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return decodeStreamResponse(msg)
}
