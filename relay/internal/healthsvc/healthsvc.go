// Package healthsvc serves the standard gRPC health checking protocol
// (grpc.health.v1.Health) for the relay.
//
// The relay reports SERVING while at least one transport is configured and
// NOT_SERVING otherwise. Both the overall status ("") and ServiceName are set.
package healthsvc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/alertrelay/relay/internal/auth"
)

// ServiceName is the service name reported alongside the overall status.
const ServiceName = "alertrelay.Relay"

// Service wraps the grpc-go health server.
type Service struct {
	srv *health.Server
}

// New returns a Service reporting NOT_SERVING until Update is called.
func New() *Service {
	s := &Service{srv: health.NewServer()}
	s.Update(0)
	return s
}

// Update sets the serving status from the number of configured transports.
func (s *Service) Update(transports int) {
	st := healthpb.HealthCheckResponse_SERVING
	if transports == 0 {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.srv.SetServingStatus("", st)
	s.srv.SetServingStatus(ServiceName, st)
	slog.Debug("healthsvc: status updated", "status", st.String(), "transports", transports)
}

// Health returns the underlying health server.
func (s *Service) Health() healthpb.HealthServer { return s.srv }

// NewServer builds a gRPC server exposing s, guarded by the API key
// interceptors.
func NewServer(s *Service, mode, header, key string) *grpc.Server {
	g := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(mode, header, key)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(mode, header, key)),
	)
	healthpb.RegisterHealthServer(g, s.srv)
	return g
}

// Serve runs g on lis until ctx is cancelled, then marks every service
// NOT_SERVING and stops gracefully.
func Serve(ctx context.Context, s *Service, g *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("healthsvc: gRPC listening", "addr", lis.Addr().String())
		errCh <- g.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.srv.Shutdown()
		g.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
