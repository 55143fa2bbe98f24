package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

func newTracker(t *testing.T, cfg Config) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, keys.New("test"), cfg, nil), mr
}

func TestPresenceTTL(t *testing.T) {
	cases := []struct {
		interval time.Duration
		want     time.Duration
	}{
		{interval: 0, want: 15 * time.Second},
		{interval: 2 * time.Second, want: 15 * time.Second},
		{interval: 10 * time.Second, want: 30 * time.Second},
	}
	for _, tc := range cases {
		tracker := New(nil, keys.New(""), Config{HeartbeatInterval: tc.interval}, nil)
		if got := tracker.PresenceTTL(); got != tc.want {
			t.Fatalf("PresenceTTL(%v) = %v, want %v", tc.interval, got, tc.want)
		}
	}
}

func TestAddRemoveSnapshot(t *testing.T) {
	tracker, _ := newTracker(t, Config{})
	ctx := context.Background()

	for _, name := range []string{"Steve", "Alex", "Notch"} {
		if err := tracker.Add(ctx, name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if err := tracker.Remove(ctx, "Notch"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap, err := tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Authoritative {
		t.Fatal("expected authoritative snapshot")
	}
	if len(snap.Names) != 2 || snap.Names[0] != "Alex" || snap.Names[1] != "Steve" {
		t.Fatalf("names = %v", snap.Names)
	}
	if !snap.Contains("steve") || snap.Contains("notch") {
		t.Fatalf("contains mismatch for %v", snap.Names)
	}
}

func TestOnlineSetExpiresWithoutHeartbeat(t *testing.T) {
	tracker, mr := newTracker(t, Config{HeartbeatInterval: 5 * time.Second})
	ctx := context.Background()
	if err := tracker.Add(ctx, "Steve"); err != nil {
		t.Fatalf("add: %v", err)
	}

	mr.FastForward(10 * time.Second)
	if err := tracker.TouchTTL(ctx, tracker.PresenceTTL()); err != nil {
		t.Fatalf("touch: %v", err)
	}
	mr.FastForward(10 * time.Second)
	snap, err := tracker.Snapshot(ctx)
	if err != nil || !snap.Authoritative {
		t.Fatalf("snapshot after touch = %+v, %v", snap, err)
	}

	mr.FastForward(16 * time.Second)
	snap, err = tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Authoritative || len(snap.Names) != 0 {
		t.Fatalf("expired snapshot = %+v, want non-authoritative", snap)
	}
}

func TestClearDropsStaleEntries(t *testing.T) {
	tracker, _ := newTracker(t, Config{})
	ctx := context.Background()
	if err := tracker.Add(ctx, "Ghost"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tracker.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap, _ := tracker.Snapshot(ctx)
	if len(snap.Names) != 0 {
		t.Fatalf("names after clear = %v", snap.Names)
	}
}

func TestServersExcludeExpiredHeartbeats(t *testing.T) {
	tracker, mr := newTracker(t, Config{ServerTTL: 10 * time.Second})
	ctx := context.Background()

	if err := tracker.PublishServer(ctx, domain.ServerInfo{Name: "lobby-1", OnlinePlayers: 3, MaxPlayers: 50, TPS: 20}); err != nil {
		t.Fatalf("publish lobby: %v", err)
	}
	mr.FastForward(6 * time.Second)
	if err := tracker.PublishServer(ctx, domain.ServerInfo{Name: "Survival-2", OnlinePlayers: 9, MaxPlayers: 100, TPS: 19.5}); err != nil {
		t.Fatalf("publish survival: %v", err)
	}

	servers, err := tracker.Servers(ctx)
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	if len(servers) != 2 || servers[0].Name != "Survival-2" || servers[1].Name != "lobby-1" {
		t.Fatalf("servers = %+v", servers)
	}

	mr.FastForward(5 * time.Second)
	servers, err = tracker.Servers(ctx)
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "Survival-2" {
		t.Fatalf("servers after expiry = %+v", servers)
	}

	info, ok, err := tracker.Server(ctx, "survival-2")
	if err != nil || !ok || info.OnlinePlayers != 9 {
		t.Fatalf("server lookup = %+v, %v, %v", info, ok, err)
	}
	if _, ok, _ := tracker.Server(ctx, "lobby-1"); ok {
		t.Fatal("expired server must not be found")
	}
}

func TestBeatPublishesAndCaches(t *testing.T) {
	tracker, mr := newTracker(t, Config{Name: "lobby-1"})
	ctx := context.Background()
	if err := tracker.Add(ctx, "Steve"); err != nil {
		t.Fatalf("add: %v", err)
	}

	err := tracker.Beat(ctx, func() domain.ServerInfo {
		return domain.ServerInfo{Name: "ignored", OnlinePlayers: 1, MaxPlayers: 20, TPS: 20}
	})
	if err != nil {
		t.Fatalf("beat: %v", err)
	}
	if ttl := mr.TTL(tracker.keys.Server("lobby-1")); ttl != DefaultServerTTL {
		t.Fatalf("server ttl = %v, want %v", ttl, DefaultServerTTL)
	}
	if ttl := mr.TTL(tracker.keys.OnlinePlayers()); ttl != MinPresenceTTL {
		t.Fatalf("presence ttl = %v, want %v", ttl, MinPresenceTTL)
	}
	if cached := tracker.Cached(); !cached.Contains("Steve") {
		t.Fatalf("cached = %+v", cached)
	}
}

func TestHeartbeatStopsOnCancel(t *testing.T) {
	tracker, _ := newTracker(t, Config{Name: "lobby-1", HeartbeatInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	beats := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- tracker.Heartbeat(ctx, func() domain.ServerInfo {
			select {
			case beats <- struct{}{}:
			default:
			}
			return domain.ServerInfo{MaxPlayers: 20}
		})
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-beats:
		case <-time.After(2 * time.Second):
			t.Fatal("heartbeat did not tick")
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}
}
