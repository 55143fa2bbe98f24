package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T, services ...string) (string, *HealthServer) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := ServeHealth(listener, services...)
	t.Cleanup(server.Stop)
	return listener.Addr().String(), server
}

func TestDialHealthySuccess(t *testing.T) {
	addr, _ := startHealthServer(t, "nexus.runtime")

	conn, err := DialHealthy(context.Background(), addr, "nexus.runtime", 2*time.Second, nil)
	if err != nil {
		t.Fatalf("dial healthy: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close conn: %v", err)
	}
}

func TestDialHealthyFailsWhenNotServing(t *testing.T) {
	addr, server := startHealthServer(t, "nexus.runtime")
	server.SetServing("nexus.runtime", false)

	start := time.Now()
	conn, err := DialHealthy(context.Background(), addr, "nexus.runtime", 300*time.Millisecond, nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("expected error")
	}
	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("err = %T, want *DialError", err)
	}
	if dialErr.Stage != DialStageHealth {
		t.Fatalf("stage = %q, want %q", dialErr.Stage, DialStageHealth)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout did not bound the wait, took %v", elapsed)
	}
}

func TestWaitForHealthSeesRecovery(t *testing.T) {
	addr, server := startHealthServer(t, "nexus.runtime")
	server.SetServing("nexus.runtime", false)

	go func() {
		time.Sleep(150 * time.Millisecond)
		server.SetServing("nexus.runtime", true)
	}()

	conn, err := DialHealthy(context.Background(), addr, "nexus.runtime", 3*time.Second, nil)
	if err != nil {
		t.Fatalf("dial healthy: %v", err)
	}
	_ = conn.Close()
}

func TestWaitForHealthRequiresConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func TestHealthServerStopIsIdempotent(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := ServeHealth(listener)
	server.Stop()
	server.Stop()
}

func TestSetServingReportsStatus(t *testing.T) {
	addr, server := startHealthServer(t, "nexus.runtime")
	conn, err := DialHealthy(context.Background(), addr, "", 2*time.Second, nil)
	if err != nil {
		t.Fatalf("dial healthy: %v", err)
	}
	defer conn.Close()

	server.SetServing("nexus.runtime", false)
	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: "nexus.runtime"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestDialErrorFormatting(t *testing.T) {
	wrapped := &DialError{Stage: DialStageConnect, Err: fmt.Errorf("boom")}
	if !strings.Contains(wrapped.Error(), "gRPC connect") {
		t.Fatalf("error = %q, want stage prefix", wrapped.Error())
	}
	if wrapped.Unwrap() == nil {
		t.Fatal("expected wrapped error")
	}
	var nilErr *DialError
	if nilErr.Error() == "" || nilErr.Unwrap() != nil {
		t.Fatal("nil DialError should format and unwrap to nil")
	}
}
