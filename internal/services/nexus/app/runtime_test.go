package app

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	platformgrpc "github.com/louisbranch/autonexus/internal/platform/grpc"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

func TestRuntimeConfigDefaults(t *testing.T) {
	cfg := RuntimeConfig{Name: " lobby-1 "}.normalized()
	if cfg.Name != "lobby-1" {
		t.Fatalf("name = %q, want lobby-1", cfg.Name)
	}
	if cfg.Namespace != defaultNamespace {
		t.Fatalf("namespace = %q, want %q", cfg.Namespace, defaultNamespace)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("port = %d, want %d", cfg.Port, defaultPort)
	}
	if cfg.ConsoleTarget != defaultConsoleTarget {
		t.Fatalf("console target = %q, want %q", cfg.ConsoleTarget, defaultConsoleTarget)
	}
	if cfg.HeartbeatInterval != defaultHeartbeatInterval || cfg.ServerTTL != defaultServerTTL {
		t.Fatalf("heartbeat = %v/%v", cfg.HeartbeatInterval, cfg.ServerTTL)
	}
}

func TestRunRequiresName(t *testing.T) {
	err := Run(context.Background(), RuntimeConfig{DBPath: filepath.Join(t.TempDir(), "nexus.db")}, NewLogHost(nil))
	if err == nil || !strings.Contains(err.Error(), "server name is required") {
		t.Fatalf("err = %v, want name error", err)
	}
}

func TestRunFailsWhenStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	err := Run(context.Background(), RuntimeConfig{
		Name:        "lobby-1",
		RedisAddr:   addr,
		DialTimeout: 200 * time.Millisecond,
		DBPath:      filepath.Join(t.TempDir(), "nexus.db"),
		Port:        freePort(t),
	}, NewLogHost(nil))
	if err == nil || !strings.Contains(err.Error(), "connect to store") {
		t.Fatalf("err = %v, want connect error", err)
	}
}

func TestRunServesUntilCanceled(t *testing.T) {
	mr := miniredis.RunT(t)
	onlineKey := keys.New("").OnlinePlayers()
	if _, err := mr.SAdd(onlineKey, "Ghost"); err != nil {
		t.Fatalf("seed presence: %v", err)
	}
	port := freePort(t)
	host := NewLogHost(nil, "lobby-1")
	host.Join(uuid.New(), "Steve")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type observed struct {
		server  domain.ServerInfo
		found   bool
		healthy error
		err     error
	}
	seen := make(chan observed, 1)
	err := Run(ctx, RuntimeConfig{
		Name:       "lobby-1",
		Group:      "lobby",
		RedisAddr:  mr.Addr(),
		DBPath:     filepath.Join(t.TempDir(), "nexus.db"),
		Port:       port,
		MaxPlayers: 50,
		Ready: func(n *Network) {
			defer cancel()
			var obs observed
			conn, err := platformgrpc.DialHealthy(ctx, fmt.Sprintf("127.0.0.1:%d", port), HealthService, 2*time.Second, nil)
			obs.healthy = err
			if err == nil {
				_ = conn.Close()
			}
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				obs.server, obs.found, obs.err = n.Server(ctx, "lobby-1")
				if obs.found || obs.err != nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			seen <- obs
		},
	}, host)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	obs := <-seen
	if obs.healthy != nil {
		t.Fatalf("health: %v", obs.healthy)
	}
	if obs.err != nil || !obs.found {
		t.Fatalf("server = %v, %v", obs.found, obs.err)
	}
	if obs.server.OnlinePlayers != 1 || obs.server.MaxPlayers != 50 {
		t.Fatalf("server = %+v, want 1/50", obs.server)
	}
	if mr.Exists(onlineKey) {
		members, _ := mr.Members(onlineKey)
		for _, m := range members {
			if m == "Ghost" {
				t.Fatalf("stale presence survived startup: %v", members)
			}
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}
