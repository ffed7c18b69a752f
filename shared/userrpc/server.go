package userrpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/cqrs"
	"github.com/waterbird-i/wbapi-backend/shared/models"
)

type InvokeUserFinder interface {
	GetInvokeUser(ctx context.Context, q cqrs.InvokeUserQuery) (*models.User, error)
}

type Server struct {
	finder InvokeUserFinder
	logger *slog.Logger
}

func NewServer(finder InvokeUserFinder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{finder: finder, logger: logger.With("module", "grpc_server")}
}

// GetInvokeUser answers NotFound when no user holds the access key.
func (s *Server) GetInvokeUser(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	user, err := s.finder.GetInvokeUser(ctx, cqrs.InvokeUserQuery{AccessKey: req.GetValue()})
	if err != nil {
		_, _, msg := apperr.Describe(err)
		if apperr.Is(err, apperr.CodeParams) {
			return nil, status.Error(codes.InvalidArgument, msg)
		}
		s.logger.ErrorContext(ctx, "invoke user lookup failed", "error", err)
		return nil, status.Error(codes.Internal, msg)
	}
	if user == nil {
		return nil, status.Error(codes.NotFound, "no user for access key")
	}

	out, err := userToStruct(user)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode user")
	}
	return out, nil
}

// Serve registers the service on a new gRPC server and serves lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	RegisterInnerUserServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info("stopping gRPC server")
		srv.GracefulStop()
	}()

	s.logger.Info("starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}

func (s *Server) Run(ctx context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.DebugContext(ctx, "rpc handled",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, err
}
