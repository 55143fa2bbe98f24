// Package history reads the bounded per-player ledger. Entries are written
// by the increment and transfer transactions, never directly.
package history

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

const (
	// Cap is the number of entries kept per player.
	Cap = 50
	// DefaultLimit applies when a caller asks for zero or fewer entries.
	DefaultLimit = 10
)

// Log is the read side of the ledger.
type Log struct {
	client redis.Cmdable
	keys   keys.Factory
	logger *zap.Logger
}

// New returns a Log over client.
func New(client redis.Cmdable, factory keys.Factory, logger *zap.Logger) *Log {
	return &Log{client: client, keys: factory, logger: logging.OrNop(logger).Named("history")}
}

// Recent returns up to limit entries, most recent first. The limit defaults
// to DefaultLimit and never exceeds Cap. Unreadable entries are skipped.
func (l *Log) Recent(ctx context.Context, id uuid.UUID, limit int) ([]domain.TransactionEntry, error) {
	if id == uuid.Nil {
		return nil, nexuserrors.New(nexuserrors.CodeInvalidArgument, "uuid is required")
	}
	limit = clampLimit(limit)

	raw, err := l.client.LRange(ctx, l.keys.History(id), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nexuserrors.Wrap(nexuserrors.CodeUnavailable, "read history", err)
	}
	entries := make([]domain.TransactionEntry, 0, len(raw))
	for i, item := range raw {
		var entry domain.TransactionEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			l.logger.Warn("skip malformed history entry",
				zap.Stringer("uuid", id), zap.Int("index", i), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > Cap:
		return Cap
	default:
		return limit
	}
}
