// Package redisstore opens the shared key-value store and watches its
// reachability.
package redisstore

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/platform/timeouts"
)

const (
	defaultAddr              = "127.0.0.1:6379"
	defaultReconnectInterval = 5 * time.Second
)

// Config describes how to reach the shared store.
type Config struct {
	Addr           string
	Password       string
	DB             int
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

func (c Config) options() *redis.Options {
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	dial := c.DialTimeout
	if dial <= 0 {
		dial = timeouts.StoreDial
	}
	command := c.CommandTimeout
	if command <= 0 {
		command = timeouts.StoreCommand
	}
	return &redis.Options{
		Addr:         addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  dial,
		ReadTimeout:  command,
		WriteTimeout: command,
	}
}

// Open connects to the store and confirms it answers a ping. A process must
// not run without the store, so callers treat a returned error as fatal.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := cfg.options()
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+opts.ReadTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nexuserrors.Wrap(nexuserrors.CodeUnavailable, "ping store "+opts.Addr, err)
	}
	return client, nil
}

// Pinger is the slice of the client the monitor probes.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Monitor probes the store on a fixed interval. When a probe fails it enters
// a reconnect loop that retries at the same fixed interval and stops as soon
// as a probe succeeds again.
type Monitor struct {
	client   Pinger
	interval time.Duration
	logger   *zap.Logger
	onChange func(up bool)
	up       atomic.Bool
}

// NewMonitor builds a monitor; onChange may be nil.
func NewMonitor(client Pinger, interval time.Duration, logger *zap.Logger, onChange func(up bool)) *Monitor {
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	m := &Monitor{
		client:   client,
		interval: interval,
		logger:   logging.OrNop(logger).Named("store"),
		onChange: onChange,
	}
	m.up.Store(true)
	return m
}

// Healthy reports the result of the latest probe.
func (m *Monitor) Healthy() bool {
	return m.up.Load()
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		err := m.ping(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		m.setUp(false)
		m.logger.Warn("store unreachable, reconnecting", zap.Error(err), zap.Duration("interval", m.interval))
		if err := m.reconnect(ctx); err != nil {
			return nil
		}
		m.setUp(true)
		m.logger.Info("store connection re-established")
	}
}

func (m *Monitor) reconnect(ctx context.Context) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := m.ping(ctx); err != nil {
			m.logger.Debug("reconnect probe failed", zap.Int("attempt", attempt), zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(m.interval)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

func (m *Monitor) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.StorePing)
	defer cancel()
	return m.client.Ping(pingCtx).Err()
}

func (m *Monitor) setUp(up bool) {
	if m.up.Swap(up) == up {
		return
	}
	if m.onChange != nil {
		m.onChange(up)
	}
}
