package app

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/services/nexus/router"
)

// Host is the game server a node runs inside.
type Host interface {
	router.CommandExecutor
	router.Relocator
	router.Announcer
	router.Reloader
	// LocalPlayers lists the display names connected to this process.
	LocalPlayers() []string
	// TPS reports the current tick rate.
	TPS() float64
}

// LogHost is a Host with no game attached: it tracks local players in
// memory and logs every action it is asked to perform.
type LogHost struct {
	logger *zap.Logger

	mu      sync.RWMutex
	players map[uuid.UUID]string
	servers []string
}

// NewLogHost returns a host that can relocate to servers.
func NewLogHost(logger *zap.Logger, servers ...string) *LogHost {
	return &LogHost{
		logger:  logging.OrNop(logger).Named("host"),
		players: make(map[uuid.UUID]string),
		servers: slices.Clone(servers),
	}
}

// Join marks a player as connected locally.
func (h *LogHost) Join(id uuid.UUID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.players[id] = name
}

// Leave marks a player as disconnected.
func (h *LogHost) Leave(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.players, id)
}

// IsLocal implements router.CommandExecutor.
func (h *LogHost) IsLocal(id uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.players[id]
	return ok
}

// ExecuteAs implements router.CommandExecutor.
func (h *LogHost) ExecuteAs(_ context.Context, id uuid.UUID, command string) error {
	h.logger.Info("execute as player", zap.Stringer("uuid", id), zap.String("command", command))
	return nil
}

// ExecuteConsole implements router.CommandExecutor.
func (h *LogHost) ExecuteConsole(_ context.Context, command string) error {
	h.logger.Info("execute as console", zap.String("command", command))
	return nil
}

// Destinations implements router.Relocator.
func (h *LogHost) Destinations() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.servers)
}

// Connect implements router.Relocator.
func (h *LogHost) Connect(_ context.Context, id uuid.UUID, destination string) error {
	h.logger.Info("connect player", zap.Stringer("uuid", id), zap.String("server", destination))
	return nil
}

// Announce implements router.Announcer.
func (h *LogHost) Announce(_ context.Context, message string) {
	h.logger.Info("announce", zap.String("message", message))
}

// Reload implements router.Reloader.
func (h *LogHost) Reload(context.Context) error {
	h.logger.Info("reload requested")
	return nil
}

// LocalPlayers implements Host.
func (h *LogHost) LocalPlayers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.players))
	for _, name := range h.players {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TPS implements Host.
func (h *LogHost) TPS() float64 {
	return 20
}

var _ Host = (*LogHost)(nil)
