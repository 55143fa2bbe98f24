package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/services/nexus/cache"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/groups"
	"github.com/louisbranch/autonexus/internal/services/nexus/leaderboard"
	"github.com/louisbranch/autonexus/internal/services/nexus/meta"
	"github.com/louisbranch/autonexus/internal/services/nexus/presence"
	"github.com/louisbranch/autonexus/internal/services/nexus/router"
	"github.com/louisbranch/autonexus/internal/services/nexus/storage"
	"github.com/louisbranch/autonexus/internal/services/nexus/txn"
)

// Network is the API the game integration layer calls. Every method checks
// its required arguments before touching the store and returns
// CodeInvalidArgument when one is blank or nil. Business rejections come
// back as txn.Result statuses, not errors.
type Network struct {
	name          string
	consoleTarget string
	engine        *txn.Engine
	meta          *meta.Manager
	board         *leaderboard.Store
	presence      *presence.Tracker
	router        *router.Router
	cache         *cache.Cache
	groups        *groups.Map
	journal       storage.DispatchStore
	localPlayers  func() []string
	logger        *zap.Logger
}

// Name returns this process's server name.
func (n *Network) Name() string {
	return n.name
}

// Group returns this process's group.
func (n *Network) Group() string {
	return n.router.Identity().Group
}

// Record returns a player's record, served from the local cache when fresh.
func (n *Network) Record(ctx context.Context, id uuid.UUID) (domain.PlayerRecord, bool, error) {
	if id == uuid.Nil {
		return domain.PlayerRecord{}, false, invalid("uuid is required")
	}
	return n.cache.Load(ctx, id, n.engine.Record)
}

// Profile returns where a player is.
func (n *Network) Profile(ctx context.Context, id uuid.UUID) (domain.Profile, bool, error) {
	record, ok, err := n.Record(ctx, id)
	if err != nil || !ok {
		return domain.Profile{}, false, err
	}
	return record.Profile(), true, nil
}

// ResolveUUID looks a player up by display name.
func (n *Network) ResolveUUID(ctx context.Context, name string) (uuid.UUID, bool, error) {
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, false, invalid("name is required")
	}
	return n.engine.ResolveUUID(ctx, name)
}

// SaveLocation stores a record's name and server, leaving its metadata
// untouched.
func (n *Network) SaveLocation(ctx context.Context, record *domain.PlayerRecord) error {
	if record == nil {
		return invalid("record is required")
	}
	if record.UUID == uuid.Nil {
		return invalid("uuid is required")
	}
	if strings.TrimSpace(record.CurrentServer) == "" {
		return invalid("current server is required")
	}
	_, err := n.engine.UpsertLocation(ctx, record.UUID, record.LastSeenName, record.CurrentServer)
	n.cache.Invalidate(record.UUID)
	return err
}

// SetOffline marks a player as connected nowhere.
func (n *Network) SetOffline(ctx context.Context, id uuid.UUID, name string) error {
	return n.SaveLocation(ctx, &domain.PlayerRecord{UUID: id, LastSeenName: name, CurrentServer: domain.OfflineServer})
}

// PlayerJoined records a player arriving on this process.
func (n *Network) PlayerJoined(ctx context.Context, id uuid.UUID, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name is required")
	}
	if err := n.SaveLocation(ctx, &domain.PlayerRecord{UUID: id, LastSeenName: name, CurrentServer: n.name}); err != nil {
		return err
	}
	return n.presence.Add(ctx, name)
}

// PlayerLeft records a player leaving the network.
func (n *Network) PlayerLeft(ctx context.Context, id uuid.UUID, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name is required")
	}
	if err := n.SetOffline(ctx, id, name); err != nil {
		return err
	}
	return n.presence.Remove(ctx, name)
}

// IncrementMetadata adds delta to field in this process's group.
func (n *Network) IncrementMetadata(ctx context.Context, id uuid.UUID, field string, delta float64, reason string) (txn.Result, error) {
	result, err := n.meta.Increment(ctx, id, field, delta, "", reason)
	if err == nil && result.Applied() {
		n.cache.Invalidate(id)
	}
	return result, err
}

// SetMetadata stores value under field in this process's group.
func (n *Network) SetMetadata(ctx context.Context, id uuid.UUID, field, value string) (txn.Result, error) {
	result, err := n.meta.Set(ctx, id, field, value, "")
	if err == nil && result.Applied() {
		n.cache.Invalidate(id)
	}
	return result, err
}

// TransferMetadata moves amount of field between two players.
func (n *Network) TransferMetadata(ctx context.Context, from, to uuid.UUID, field string, amount float64) (txn.Result, error) {
	result, err := n.meta.Transfer(ctx, from, to, field, amount, "", "")
	if err == nil && result.Applied() {
		n.cache.Invalidate(from)
		n.cache.Invalidate(to)
	}
	return result, err
}

// Top returns a group leaderboard page; a blank group means this process's.
func (n *Network) Top(ctx context.Context, group string, offset, limit int) ([]domain.LeaderboardEntry, error) {
	return n.board.Top(ctx, n.meta.Group(group), offset, limit)
}

// UpsertScore sets a player's leaderboard score directly.
func (n *Network) UpsertScore(ctx context.Context, id uuid.UUID, group string, score float64, displayName string) error {
	return n.board.Upsert(ctx, id, n.meta.Group(group), score, displayName)
}

// RemoveScore drops a player from a leaderboard.
func (n *Network) RemoveScore(ctx context.Context, id uuid.UUID, group string) (bool, error) {
	return n.board.Remove(ctx, id, n.meta.Group(group))
}

// History returns a player's most recent ledger entries.
func (n *Network) History(ctx context.Context, id uuid.UUID, limit int) ([]domain.TransactionEntry, error) {
	return n.meta.History(ctx, id, limit)
}

// DispatchCommand runs command on target: a server name, "group:<name>",
// or "all"/"*". With a sender it runs as that player wherever they are
// connected. Console commands sent to everyone go to the console target
// instead so they run once.
func (n *Network) DispatchCommand(ctx context.Context, target, command string, sender uuid.UUID) error {
	if strings.TrimSpace(target) == "" {
		return invalid("target is required")
	}
	command = strings.TrimPrefix(strings.TrimSpace(command), "/")
	if command == "" {
		return invalid("command is required")
	}
	envelopeTarget, group := router.ParseTarget(target)
	if strings.EqualFold(envelopeTarget, router.GroupTargetPrefix) || (envelopeTarget == router.TargetGroup && group == "") {
		return invalid("group is required")
	}
	if sender == uuid.Nil && envelopeTarget == router.TargetAll && n.consoleTarget != "" {
		n.logger.Info("redirect console command", zap.String("command", command), zap.String("target", n.consoleTarget))
		envelopeTarget = n.consoleTarget
	}
	packet := &router.Packet{Type: router.PacketDispatchCommand, Payload: command, TargetGroup: group}
	if sender != uuid.Nil {
		packet.SenderUUID = sender.String()
	}
	return n.router.SendEnvelope(ctx, router.Envelope{Target: envelopeTarget, Packet: packet})
}

// RecentDispatches lists the commands this process handled, newest first.
func (n *Network) RecentDispatches(ctx context.Context, limit int) ([]storage.DispatchRecord, error) {
	return n.journal.ListDispatches(ctx, limit)
}

// Publish sends message to every process's listeners for channel.
func (n *Network) Publish(ctx context.Context, channel, message string) error {
	return n.router.PublishPlugin(ctx, channel, message)
}

// RegisterMessageListener calls fn for messages on channel until the
// returned func is called.
func (n *Network) RegisterMessageListener(channel string, fn router.Listener) (func(), error) {
	if strings.TrimSpace(channel) == "" {
		return nil, invalid("channel is required")
	}
	if fn == nil {
		return nil, invalid("listener is required")
	}
	return n.router.RegisterListener(channel, fn), nil
}

// ListServers returns every live server.
func (n *Network) ListServers(ctx context.Context) ([]domain.ServerInfo, error) {
	return n.presence.Servers(ctx)
}

// Server returns one live server by name.
func (n *Network) Server(ctx context.Context, name string) (domain.ServerInfo, bool, error) {
	if strings.TrimSpace(name) == "" {
		return domain.ServerInfo{}, false, invalid("name is required")
	}
	return n.presence.Server(ctx, name)
}

// SendTo asks the network to move a player to destination.
func (n *Network) SendTo(ctx context.Context, id uuid.UUID, destination string) error {
	return n.router.Teleport(ctx, id, destination)
}

// Broadcast shows message to every player on the network.
func (n *Network) Broadcast(ctx context.Context, message string) error {
	return n.router.Broadcast(ctx, message)
}

// ReloadNetwork asks every process to reload its configuration.
func (n *Network) ReloadNetwork(ctx context.Context) error {
	return n.router.Reload(ctx)
}

// OnlinePlayers returns the names online anywhere. When the shared set has
// lapsed it falls back to this process's own players.
func (n *Network) OnlinePlayers(ctx context.Context) ([]string, error) {
	snapshot, err := n.presence.Snapshot(ctx)
	if err != nil {
		n.logger.Warn("read online players", zap.Error(err))
	}
	if err == nil && snapshot.Authoritative {
		return snapshot.Names, nil
	}
	if n.localPlayers == nil {
		return nil, err
	}
	return n.localPlayers(), nil
}

// MapGroup assigns servers matching pattern to group.
func (n *Network) MapGroup(ctx context.Context, pattern, group string) error {
	return n.groups.Set(ctx, pattern, group)
}

// UnmapGroup removes a pattern.
func (n *Network) UnmapGroup(ctx context.Context, pattern string) error {
	return n.groups.Delete(ctx, pattern)
}

// GroupMappings lists every pattern in evaluation order.
func (n *Network) GroupMappings(ctx context.Context) ([]groups.Mapping, error) {
	return n.groups.All(ctx)
}

// GroupOf returns the group a server name maps to.
func (n *Network) GroupOf(ctx context.Context, server string) (string, bool, error) {
	if strings.TrimSpace(server) == "" {
		return "", false, invalid("server is required")
	}
	return n.groups.Resolve(ctx, server)
}

func invalid(message string) error {
	return nexuserrors.New(nexuserrors.CodeInvalidArgument, message)
}
