package grpc

import (
	"context"
	"net"

	"modsecmon/ipaddresses"
	"modsecmon/verdict"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Decider reaches a verdict for an address.
type Decider interface {
	Decide(ctx context.Context, addr string) verdict.Decision
}

// Server serves the verdict service and the standard health service.
type Server struct {
	logger     zerolog.Logger
	grpcServer *grpc.Server
	health     *health.Server
}

type serverImpl struct {
	logger  zerolog.Logger
	decider Decider
}

// NewServer creates a gRPC server around the given Decider.
func NewServer(logger zerolog.Logger, decider Decider) *Server {
	s := &Server{
		logger:     logger,
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
	}
	RegisterVerdictServiceServer(s.grpcServer, &serverImpl{logger: logger, decider: decider})
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(s.grpcServer)
	return s
}

// Serve listens on the given network and address and blocks until the server stops.
func (s *Server) Serve(network string, address string) error {
	lis, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(lis)
}

// ServeListener serves on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	s.logger.Info().Str("address", lis.Addr().String()).Msg("gRPC verdict service listening")
	return s.grpcServer.Serve(lis)
}

// Stop marks the service as not serving and waits for in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *serverImpl) Decide(ctx context.Context, req *DecideRequest) (*DecideResponse, error) {
	addr := req.Address
	if addr == "" {
		addr = ipaddresses.ClientAddress(req.ForwardedFor, req.RemoteAddr)
	}

	d := s.decider.Decide(ctx, addr)
	s.logger.Debug().Str("ip", addr).Str("verdict", string(d.Verdict)).Str("reason", string(d.Reason)).Msg("Decide served")
	return newDecideResponse(d), nil
}
