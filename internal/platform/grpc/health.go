// Package grpc holds the health surface shared by AutoNexus processes: a
// traced health server and the client side used to probe it.
package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/autonexus/internal/platform/logging"
)

const (
	healthCheckTimeout = time.Second
	healthPollInitial  = 100 * time.Millisecond
	healthPollMax      = time.Second
)

// WaitForHealth polls service on conn until it reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logger *zap.Logger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger = logging.OrNop(logger)
	client := grpc_health_v1.NewHealthClient(conn)

	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = healthPollInitial
	poll.MaxInterval = healthPollMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, checkServing(ctx, client, service)
	},
		backoff.WithBackOff(poll),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("waiting for gRPC health", zap.String("service", service), zap.Duration("next", next), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("wait for gRPC health: %w", err)
	}
	logger.Debug("gRPC health is SERVING", zap.String("service", service))
	return nil
}

func checkServing(ctx context.Context, client grpc_health_v1.HealthClient, service string) error {
	callCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	if status := resp.GetStatus(); status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", status)
	}
	return nil
}
