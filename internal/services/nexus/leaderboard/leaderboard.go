// Package leaderboard ranks players per group by a balance field.
package leaderboard

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

// Ranker writes ranked-set members atomically.
type Ranker interface {
	Rank(ctx context.Context, group string, id uuid.UUID, name string, score float64) error
	Unrank(ctx context.Context, group string, id uuid.UUID) (bool, error)
}

// Store reads and writes group leaderboards. Members are "name|uuid" so a
// display name can change without losing the player's identity.
type Store struct {
	client redis.Cmdable
	ranker Ranker
	keys   keys.Factory
}

// New returns a Store. Writes go through ranker so rename handling stays
// atomic.
func New(client redis.Cmdable, ranker Ranker, factory keys.Factory) *Store {
	return &Store{client: client, ranker: ranker, keys: factory}
}

// Upsert sets a player's score in group.
func (s *Store) Upsert(ctx context.Context, id uuid.UUID, group string, score float64, displayName string) error {
	return s.ranker.Rank(ctx, group, id, displayName, score)
}

// Remove drops a player from group.
func (s *Store) Remove(ctx context.Context, id uuid.UUID, group string) (bool, error) {
	return s.ranker.Unrank(ctx, group, id)
}

// Top returns up to limit entries after skipping offset, highest score
// first. Ties follow the ranked set's member order.
func (s *Store) Top(ctx context.Context, group string, offset, limit int) ([]domain.LeaderboardEntry, error) {
	if offset < 0 {
		return nil, nexuserrors.New(nexuserrors.CodeInvalidArgument, "offset must not be negative")
	}
	if limit <= 0 {
		return nil, nexuserrors.New(nexuserrors.CodeInvalidArgument, "limit must be greater than zero")
	}
	stop := int64(offset + limit - 1)
	rows, err := s.client.ZRevRangeWithScores(ctx, s.keys.Leaderboard(group), int64(offset), stop).Result()
	if err != nil {
		return nil, nexuserrors.Wrap(nexuserrors.CodeUnavailable, "read leaderboard", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		member, _ := row.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			Name:  keys.MemberName(member),
			Score: row.Score,
		})
	}
	return entries, nil
}

// Size returns the number of ranked players in group.
func (s *Store) Size(ctx context.Context, group string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.keys.Leaderboard(group)).Result()
	if err != nil {
		return 0, nexuserrors.Wrap(nexuserrors.CodeUnavailable, "count leaderboard", err)
	}
	return n, nil
}
