package da

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/movementlabsxyz/suzuka/internal/utils"
)

// Server exposes any LightNodeClient as a light node gRPC service.
type Server struct {
	service LightNodeClient
	grpc    *grpc.Server
}

// NewServer registers service on a fresh gRPC server. metrics may be nil.
func NewServer(service LightNodeClient, metrics *grpc_prometheus.ServerMetrics, opts ...grpc.ServerOption) (*Server, error) {
	if metrics != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
		)
	}
	s := &Server{service: service, grpc: grpc.NewServer(opts...)}
	desc, err := s.serviceDesc()
	if err != nil {
		return nil, err
	}
	s.grpc.RegisterService(desc, s)
	if metrics != nil {
		metrics.InitializeMetrics(s.grpc)
	}
	return s, nil
}

func (s *Server) serviceDesc() (*grpc.ServiceDesc, error) {
	streamMD, err := methodDescriptor(streamReadFromHeightMethod)
	if err != nil {
		return nil, err
	}
	batchMD, err := methodDescriptor(batchWriteMethod)
	if err != nil {
		return nil, err
	}
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: string(batchMD.Name()), Handler: s.handleBatchWrite},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: string(streamMD.Name()), Handler: s.handleStream, ServerStreams: true},
		},
		Metadata: "light_node.proto",
	}, nil
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("Light node server listening", "address", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("light node server: %w", err)
	}
	return nil
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) handleBatchWrite(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in, err := newMessage("BatchWriteRequest")
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		resp, err := s.service.BatchWrite(ctx, decodeBatchWriteRequest(req.(*dynamicpb.Message)))
		if err != nil {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return encodeBatchWriteResponse(resp)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	path, err := methodPath(batchWriteMethod)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: path}, handler)
}

func (s *Server) handleStream(_ any, stream grpc.ServerStream) error {
	in, err := newMessage("StreamReadFromHeightRequest")
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req := decodeStreamRequest(in)

	blobs, err := s.service.StreamReadFromHeight(stream.Context(), req)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	for {
		resp, err := blobs.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if stream.Context().Err() != nil {
				return status.FromContextError(stream.Context().Err()).Err()
			}
			return status.Error(codes.Unavailable, err.Error())
		}
		out, err := encodeStreamResponse(resp)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
}

func methodPath(methodFullName string) (string, error) {
	return utils.MethodPath(methodFullName)
}
