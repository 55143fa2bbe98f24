// Package presence tracks who is online network-wide and which processes
// are alive.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultServerTTL         = 10 * time.Second
	// MinPresenceTTL is the floor for the online set's expiry.
	MinPresenceTTL = 15 * time.Second

	scanBatch = 100
)

// Config tunes the heartbeat.
type Config struct {
	// Name is this process's server name.
	Name              string
	HeartbeatInterval time.Duration
	ServerTTL         time.Duration
}

// Snapshot is the network-wide online set. When Authoritative is false the
// set has expired or was never written, and callers should fall back to
// what they know locally rather than assume nobody is online.
type Snapshot struct {
	Names         []string
	Authoritative bool
	TakenAt       time.Time
}

// Contains reports whether name is in the snapshot, ignoring case.
func (s Snapshot) Contains(name string) bool {
	for _, n := range s.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// StatsFunc reports this process's current load for the heartbeat.
type StatsFunc func() domain.ServerInfo

// Tracker owns the online set and this process's heartbeat record.
type Tracker struct {
	client redis.Cmdable
	keys   keys.Factory
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cached Snapshot
}

// New returns a tracker.
func New(client redis.Cmdable, factory keys.Factory, cfg Config, logger *zap.Logger) *Tracker {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ServerTTL <= 0 {
		cfg.ServerTTL = DefaultServerTTL
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	return &Tracker{
		client: client,
		keys:   factory,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("presence"),
		now:    time.Now,
	}
}

// PresenceTTL is how long the online set survives without heartbeats:
// three intervals, never less than MinPresenceTTL.
func (t *Tracker) PresenceTTL() time.Duration {
	ttl := 3 * t.cfg.HeartbeatInterval
	if ttl < MinPresenceTTL {
		return MinPresenceTTL
	}
	return ttl
}

// Add marks name online.
func (t *Tracker) Add(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name is required")
	}
	key := t.keys.OnlinePlayers()
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, name)
		pipe.Expire(ctx, key, t.PresenceTTL())
		return nil
	})
	return unavailable("add presence", err)
}

// Remove marks name offline.
func (t *Tracker) Remove(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name is required")
	}
	return unavailable("remove presence", t.client.SRem(ctx, t.keys.OnlinePlayers(), name).Err())
}

// Snapshot reads the online set.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	names, err := t.client.SMembers(ctx, t.keys.OnlinePlayers()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, unavailable("read presence", err)
	}
	sort.Strings(names)
	return Snapshot{Names: names, Authoritative: len(names) > 0, TakenAt: t.now()}, nil
}

// TouchTTL extends the online set's expiry.
func (t *Tracker) TouchTTL(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return invalid("ttl must be positive")
	}
	return unavailable("touch presence ttl", t.client.Expire(ctx, t.keys.OnlinePlayers(), ttl).Err())
}

// Clear drops the online set. Called once at startup to forget entries left
// by a previous run.
func (t *Tracker) Clear(ctx context.Context) error {
	return unavailable("clear presence", t.client.Del(ctx, t.keys.OnlinePlayers()).Err())
}

// PublishServer writes this process's heartbeat record with the server TTL.
func (t *Tracker) PublishServer(ctx context.Context, info domain.ServerInfo) error {
	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		return invalid("server name is required")
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return unavailable("publish server info", t.client.Set(ctx, t.keys.Server(info.Name), payload, t.cfg.ServerTTL).Err())
}

// Servers lists every live heartbeat record sorted by name. Records that
// expire mid-scan or fail to decode are skipped.
func (t *Tracker) Servers(ctx context.Context) ([]domain.ServerInfo, error) {
	var found []string
	var cursor uint64
	for {
		batch, next, err := t.client.Scan(ctx, cursor, t.keys.ServerPattern(), scanBatch).Result()
		if err != nil {
			return nil, unavailable("scan servers", err)
		}
		found = append(found, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.Strings(found)
	found = slices.Compact(found)

	values, err := t.client.MGet(ctx, found...).Result()
	if err != nil {
		return nil, unavailable("read servers", err)
	}
	servers := make([]domain.ServerInfo, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var info domain.ServerInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			t.logger.Warn("skip malformed server info", zap.String("key", found[i]), zap.Error(err))
			continue
		}
		if info.Name == "" {
			info.Name = t.keys.ServerName(found[i])
		}
		servers = append(servers, info)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

// Server looks a process up by exact name, then by a case-insensitive scan.
func (t *Tracker) Server(ctx context.Context, name string) (domain.ServerInfo, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ServerInfo{}, false, invalid("server name is required")
	}
	raw, err := t.client.Get(ctx, t.keys.Server(name)).Bytes()
	switch {
	case err == nil:
		var info domain.ServerInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return info, true, nil
		}
	case !errors.Is(err, redis.Nil):
		return domain.ServerInfo{}, false, unavailable("read server", err)
	}

	servers, err := t.Servers(ctx)
	if err != nil {
		return domain.ServerInfo{}, false, err
	}
	for _, info := range servers {
		if strings.EqualFold(info.Name, name) {
			return info, true, nil
		}
	}
	return domain.ServerInfo{}, false, nil
}

// Beat runs one heartbeat: publish this process's record, extend the online
// set and refresh the cached snapshot.
func (t *Tracker) Beat(ctx context.Context, stats StatsFunc) error {
	var errs []error
	if stats != nil && t.cfg.Name != "" {
		info := stats()
		info.Name = t.cfg.Name
		if err := t.PublishServer(ctx, info); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.TouchTTL(ctx, t.PresenceTTL()); err != nil {
		errs = append(errs, err)
	}
	snapshot, err := t.Snapshot(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		t.mu.Lock()
		t.cached = snapshot
		t.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Heartbeat beats immediately and then every interval until ctx is done.
// Failed beats are logged; the loop keeps going so presence recovers once
// the store does.
func (t *Tracker) Heartbeat(ctx context.Context, stats StatsFunc) error {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		if err := t.Beat(ctx, stats); err != nil && ctx.Err() == nil {
			t.logger.Warn("heartbeat failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Cached returns the snapshot taken by the latest heartbeat.
func (t *Tracker) Cached() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cached
}

func invalid(message string) error {
	return nexuserrors.New(nexuserrors.CodeInvalidArgument, message)
}

func unavailable(message string, err error) error {
	if err == nil {
		return nil
	}
	return nexuserrors.Wrap(nexuserrors.CodeUnavailable, message, err)
}
