// Package presence tracks TTL-bound last-known player locations,
// independent of live connections.
package presence

import (
	"context"

	"github.com/medmmo/roomsync/internal/domain"
)

// Store holds presence records. Records whose heartbeat is older than
// domain.PresenceTTL are stale: excluded from ListActive and removed by
// CleanupStale.
type Store interface {
	Upsert(ctx context.Context, p domain.Presence) error
	Remove(ctx context.Context, userID domain.UserID, roomType domain.RoomType) error
	ListActive(ctx context.Context, roomType domain.RoomType) ([]domain.Presence, error)
	CleanupStale(ctx context.Context) (int, error)
}
