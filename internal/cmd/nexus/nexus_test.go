package nexus

import (
	"context"
	"flag"
	"net"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/autonexus/internal/platform/grpc"
	nexusapp "github.com/louisbranch/autonexus/internal/services/nexus/app"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)
	t.Setenv("AUTONEXUS_NAME", "lobby-1")
	t.Setenv("AUTONEXUS_REDIS_ADDR", "redis:6379")
	t.Setenv("AUTONEXUS_HEARTBEAT_INTERVAL", "2s")

	cfg, err := ParseConfig(fs, []string{"-group", "survival", "-max-players", "40", "-keep-presence"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Name != "lobby-1" {
		t.Fatalf("name = %q, want %q", cfg.Name, "lobby-1")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redis addr = %q, want %q", cfg.RedisAddr, "redis:6379")
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Fatalf("heartbeat interval = %v, want 2s", cfg.HeartbeatInterval)
	}
	if cfg.Group != "survival" {
		t.Fatalf("group = %q, want %q", cfg.Group, "survival")
	}
	if cfg.MaxPlayers != 40 {
		t.Fatalf("max players = %d, want 40", cfg.MaxPlayers)
	}
	if !cfg.KeepPresence {
		t.Fatal("keep presence = false, want true")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Namespace != "global" {
		t.Fatalf("namespace = %q, want global", cfg.Namespace)
	}
	if cfg.ConsoleTarget != "lobby" {
		t.Fatalf("console target = %q, want lobby", cfg.ConsoleTarget)
	}
	if cfg.Port != 8095 {
		t.Fatalf("port = %d, want 8095", cfg.Port)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("cache ttl = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.ServerTTL != 10*time.Second {
		t.Fatalf("server ttl = %v, want 10s", cfg.ServerTTL)
	}
}

func TestConfigRuntimeCopiesFields(t *testing.T) {
	cfg := Config{Name: "hub", Group: "lobby", Port: 9000, KeepPresence: true, ConsoleTarget: "hub"}
	rt := cfg.Runtime(nil)
	if rt.Name != "hub" || rt.Group != "lobby" || rt.Port != 9000 || !rt.KeepPresence || rt.ConsoleTarget != "hub" {
		t.Fatalf("runtime = %+v", rt)
	}
}

func TestParseConfig_RejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)
	fs.SetOutput(nopWriter{})
	if _, err := ParseConfig(fs, []string{"-nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestProbeFailsWithoutNode(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := Probe(ctx, Config{Port: port}); err == nil {
		t.Fatal("expected probe error with nothing listening")
	}
}

func TestProbeSucceedsAgainstHealthServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := platformgrpc.ServeHealth(listener, nexusapp.HealthService)
	defer server.Stop()

	port := listener.Addr().(*net.TCPAddr).Port
	if err := Probe(context.Background(), Config{Port: port}); err != nil {
		t.Fatalf("probe: %v", err)
	}
}
