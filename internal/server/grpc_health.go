package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported for the analysis API.
const HealthService = "smart_ingredients.analysis"

// HealthServer exposes the standard gRPC health protocol next to the HTTP API.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer returns a health server reporting NOT_SERVING until
// SetServing is called.
func NewHealthServer(logger *zap.Logger) *HealthServer {
	h := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: logger.Named("grpc_health"),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.SetServing(false)
	return h
}

// SetServing flips the reported status for both the overall server and the
// analysis service.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

// Serve blocks serving on listener until Stop is called.
func (h *HealthServer) Serve(listener net.Listener) error {
	h.logger.Info("grpc health listening", zap.String("addr", listener.Addr().String()))
	err := h.grpc.Serve(listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop marks the service as draining and stops accepting calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// CheckHealth queries a gRPC health endpoint for service.
func CheckHealth(ctx context.Context, addr, service string) (*healthpb.HealthCheckResponse, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}
