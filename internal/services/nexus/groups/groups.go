// Package groups maps server names to groups through wildcard patterns kept
// in the shared store.
package groups

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/match"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

// Mapping is one pattern to group rule.
type Mapping struct {
	Pattern string
	Group   string
}

// Map reads and writes the groups map hash.
type Map struct {
	client redis.Cmdable
	keys   keys.Factory
}

// New returns a Map.
func New(client redis.Cmdable, factory keys.Factory) *Map {
	return &Map{client: client, keys: factory}
}

// Set maps pattern to group.
func (m *Map) Set(ctx context.Context, pattern, group string) error {
	pattern, group = strings.TrimSpace(pattern), strings.TrimSpace(group)
	if pattern == "" || group == "" {
		return nexuserrors.New(nexuserrors.CodeInvalidArgument, "pattern and group are required")
	}
	if err := m.client.HSet(ctx, m.keys.GroupMap(), pattern, group).Err(); err != nil {
		return nexuserrors.Wrap(nexuserrors.CodeUnavailable, "write group mapping", err)
	}
	return nil
}

// Delete removes a pattern.
func (m *Map) Delete(ctx context.Context, pattern string) error {
	if err := m.client.HDel(ctx, m.keys.GroupMap(), strings.TrimSpace(pattern)).Err(); err != nil {
		return nexuserrors.Wrap(nexuserrors.CodeUnavailable, "delete group mapping", err)
	}
	return nil
}

// All returns every mapping in evaluation order.
func (m *Map) All(ctx context.Context) ([]Mapping, error) {
	raw, err := m.client.HGetAll(ctx, m.keys.GroupMap()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nexuserrors.Wrap(nexuserrors.CodeUnavailable, "read group map", err)
	}
	mappings := make([]Mapping, 0, len(raw))
	for pattern, group := range raw {
		mappings = append(mappings, Mapping{Pattern: pattern, Group: group})
	}
	Sort(mappings)
	return mappings, nil
}

// Resolve returns the group of serverName, or false when no pattern matches.
func (m *Map) Resolve(ctx context.Context, serverName string) (string, bool, error) {
	mappings, err := m.All(ctx)
	if err != nil {
		return "", false, err
	}
	group, ok := Resolve(mappings, serverName)
	return group, ok, nil
}

// Resolve returns the group of the first mapping whose pattern matches
// name. mappings must already be in evaluation order.
func Resolve(mappings []Mapping, name string) (string, bool) {
	for _, mapping := range mappings {
		if Match(name, mapping.Pattern) {
			return mapping.Group, true
		}
	}
	return "", false
}

// Match reports whether name matches pattern, ignoring case. '*' matches any
// run of characters and '?' exactly one.
func Match(name, pattern string) bool {
	return match.Match(strings.ToLower(name), strings.ToLower(pattern))
}

// Sort orders mappings so the result of Resolve does not depend on hash
// iteration: literal patterns first, then longer patterns, then lexical.
func Sort(mappings []Mapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		a, b := mappings[i].Pattern, mappings[j].Pattern
		aw, bw := isWildcard(a), isWildcard(b)
		if aw != bw {
			return !aw
		}
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
}

func isWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}
