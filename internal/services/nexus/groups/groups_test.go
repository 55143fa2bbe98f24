package groups

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		want    bool
	}{
		{name: "lobby-1", pattern: "lobby-*", want: true},
		{name: "Lobby-12", pattern: "LOBBY-*", want: true},
		{name: "lobby-1", pattern: "lobby-?", want: true},
		{name: "lobby-12", pattern: "lobby-?", want: false},
		{name: "skyblock", pattern: "sky*", want: true},
		{name: "survival", pattern: "lobby*", want: false},
		{name: "hub", pattern: "hub", want: true},
		{name: "hub2", pattern: "hub", want: false},
	}
	for _, tc := range cases {
		if got := Match(tc.name, tc.pattern); got != tc.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", tc.name, tc.pattern, got, tc.want)
		}
	}
}

func TestSortPrefersLiteralThenLonger(t *testing.T) {
	mappings := []Mapping{
		{Pattern: "*", Group: "fallback"},
		{Pattern: "lobby-*", Group: "lobby"},
		{Pattern: "lobby-vip", Group: "vip"},
		{Pattern: "lobby-v*", Group: "vip-ish"},
	}
	Sort(mappings)
	want := []string{"lobby-vip", "lobby-v*", "lobby-*", "*"}
	for i, pattern := range want {
		if mappings[i].Pattern != pattern {
			t.Fatalf("mappings[%d] = %q, want %q", i, mappings[i].Pattern, pattern)
		}
	}
	if group, _ := Resolve(mappings, "lobby-vip"); group != "vip" {
		t.Fatalf("resolve lobby-vip = %q, want vip", group)
	}
	if group, _ := Resolve(mappings, "lobby-3"); group != "lobby" {
		t.Fatalf("resolve lobby-3 = %q, want lobby", group)
	}
}

func TestMapResolve(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := New(client, keys.New("test"))
	ctx := context.Background()

	if err := m.Set(ctx, "sky*", "skyblock"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set(ctx, "lobby-?", "lobby"); err != nil {
		t.Fatalf("set: %v", err)
	}

	group, ok, err := m.Resolve(ctx, "SkyBlock-East")
	if err != nil || !ok || group != "skyblock" {
		t.Fatalf("resolve = %q, %v, %v", group, ok, err)
	}
	if _, ok, _ := m.Resolve(ctx, "survival"); ok {
		t.Fatal("did not expect survival to match")
	}

	if err := m.Delete(ctx, "sky*"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, err := m.All(ctx)
	if err != nil || len(all) != 1 || all[0].Group != "lobby" {
		t.Fatalf("all = %+v, %v", all, err)
	}
	if err := m.Set(ctx, " ", "x"); err == nil {
		t.Fatal("expected blank pattern to be rejected")
	}
}
