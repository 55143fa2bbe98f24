package grpc

import (
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves the standard gRPC health protocol for a process whose
// readiness depends on a backing store.
type HealthServer struct {
	server *gogrpc.Server
	health *health.Server

	stopOnce sync.Once
	serveErr chan error
}

// ServeHealth starts a traced gRPC server on listener reporting the overall
// status and each named service as SERVING.
func ServeHealth(listener net.Listener, services ...string) *HealthServer {
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	h := &HealthServer{server: server, health: healthServer, serveErr: make(chan error, 1)}
	go func() {
		h.serveErr <- server.Serve(listener)
	}()
	return h
}

// SetServing flips service between SERVING and NOT_SERVING.
func (h *HealthServer) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// Stop marks every service NOT_SERVING and drains in-flight calls. It is
// safe to call more than once.
func (h *HealthServer) Stop() {
	h.stopOnce.Do(func() {
		h.health.Shutdown()
		h.server.GracefulStop()
		<-h.serveErr
	})
}
