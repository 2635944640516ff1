package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/muzz-engagement/internal/config"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "muzz.engagement"

// StartGRPCServer boots the gRPC health server and keeps its status in sync
// with the readiness checks until ctx is done.
func StartGRPCServer(ctx context.Context, cfg *config.Config, ready *Health, log *slog.Logger) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	go WatchReadiness(ctx, hs, ready, 5*time.Second, log)
	go func() {
		<-ctx.Done()
		hs.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Info("grpc.start", "addr", addr)
	return grpcServer.Serve(lis)
}

// WatchReadiness mirrors ready's checks into hs every interval.
func WatchReadiness(ctx context.Context, hs *health.Server, ready *Health, interval time.Duration, log *slog.Logger) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if failed := ready.Ready(ctx); len(failed) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log.Warn("grpc.health.not_serving", "failed", failed)
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			update()
		}
	}
}
