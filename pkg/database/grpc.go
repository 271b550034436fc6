package database

import (
	"fmt"
	"net"

	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer grpc health check server
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer 啟動前為 NOT_SERVING
func NewHealthServer(service string) *HealthServer {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{server: s, health: h}
}

// SetServing 更新 service 狀態
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(service, status)
}

// Serve blocking until Stop
func (h *HealthServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen %s: %w", addr, err)
	}
	logger.Log.Info("gRPC health server listening", zap.String("addr", addr))
	return h.server.Serve(lis)
}

// Stop graceful stop
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
