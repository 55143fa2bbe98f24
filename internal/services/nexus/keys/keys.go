// Package keys derives every storage key and channel name used on the
// shared store. All processes of one network must agree on the namespace.
package keys

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
)

const (
	// Prefix starts every key and channel.
	Prefix = "autonexus"
	// DefaultNamespace partitions the store when none is configured.
	DefaultNamespace = "global"

	// NetworkChannel carries control actions and envelopes.
	NetworkChannel = Prefix + ":network"
	// UpdatesChannel carries balance change notifications.
	UpdatesChannel = Prefix + ":updates"
)

// Factory maps entities to keys within one namespace. The zero value uses
// DefaultNamespace.
type Factory struct {
	ns string
}

// New returns a factory for namespace, defaulting blanks to "global".
func New(namespace string) Factory {
	return Factory{ns: strings.TrimSpace(namespace)}
}

// Namespace returns the effective namespace.
func (f Factory) Namespace() string {
	if f.ns == "" {
		return DefaultNamespace
	}
	return f.ns
}

func (f Factory) scoped(parts ...string) string {
	return Prefix + ":" + f.Namespace() + ":" + strings.Join(parts, ":")
}

// Player is the record blob key.
func (f Factory) Player(id uuid.UUID) string {
	return f.scoped("player", id.String())
}

// NameIndex is the current, unscoped name to identifier index.
func (f Factory) NameIndex(name string) string {
	return Prefix + ":name2uuid:" + Fold(name)
}

// LegacyNameIndex is the namespaced index kept for older readers.
func (f Factory) LegacyNameIndex(name string) string {
	return f.scoped("name_to_uuid", Fold(name))
}

// GroupMap holds name-pattern to group mappings.
func (f Factory) GroupMap() string {
	return f.scoped("groups_map")
}

// Leaderboard is the ranked set for one group.
func (f Factory) Leaderboard(group string) string {
	return f.scoped("economy", "baltop", Fold(domain.NormalizeGroup(group)))
}

// LeaderboardMembers tracks each player's current ranked-set member so a
// rename replaces the old "name|uuid" member.
func (f Factory) LeaderboardMembers(group string) string {
	return f.Leaderboard(group) + ":members"
}

// History is the bounded per-player ledger. It is not namespaced.
func (f Factory) History(id uuid.UUID) string {
	return Prefix + ":history:" + id.String()
}

// OnlinePlayers is the TTL'd presence set.
func (f Factory) OnlinePlayers() string {
	return f.scoped("online_players")
}

// Server is the heartbeat record of one process.
func (f Factory) Server(name string) string {
	return Prefix + ":server:" + name
}

// ServerPattern matches every heartbeat record.
func (f Factory) ServerPattern() string {
	return Prefix + ":server:*"
}

// ServerName strips the heartbeat prefix from key.
func (f Factory) ServerName(key string) string {
	return strings.TrimPrefix(key, Prefix+":server:")
}

// Idempotency holds the cached result of a tokened transaction.
func (f Factory) Idempotency(token string) string {
	return f.scoped("txn", token)
}

// LeaderboardMember is the ranked-set member for a player.
func LeaderboardMember(name string, id uuid.UUID) string {
	return name + "|" + id.String()
}

// MemberName returns the display name part of a ranked-set member.
func MemberName(member string) string {
	if i := strings.LastIndexByte(member, '|'); i >= 0 {
		return member[:i]
	}
	return member
}

// Fold lower-cases a display name for index keys.
func Fold(name string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(name))
}
