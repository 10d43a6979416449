// Package storage defines the persistence collaborator consumed by the
// room actors. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/medmmo/roomsync/internal/domain"
)

var ErrNotFound = errors.New("storage: not found")

// SessionRecord is a persisted room-session row.
type SessionRecord struct {
	ID              string
	UserID          domain.UserID
	RoomType        domain.RoomType
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int
	Interactions    int
	Reward          int
	Active          bool
}

// CollaborationEvent records a room-specific interaction and the reward
// it granted.
type CollaborationEvent struct {
	RoomType     domain.RoomType
	Kind         string
	UserID       domain.UserID
	TargetUserID domain.UserID
	Metadata     string
	Reward       int
	CreatedAt    time.Time
}

// Store is the relational persistence collaborator. All calls made from
// inside a room actor are fire-and-forget: failures are logged, never
// allowed to stall the room.
type Store interface {
	OpenSession(ctx context.Context, userID domain.UserID, roomType domain.RoomType, sessionID string) error
	CloseSession(ctx context.Context, sessionID string, reward, durationSeconds, interactions int) error
	FindActiveSession(ctx context.Context, userID domain.UserID, roomType domain.RoomType) (*SessionRecord, error)
	IncrementInteractions(ctx context.Context, sessionID string) error

	CreateCollaborationEvent(ctx context.Context, ev CollaborationEvent) error

	GetUser(ctx context.Context, userID domain.UserID) (domain.User, error)

	// GrantXP adds amount to the user's XP and applies the level-up
	// rule within the same unit of work: when xp ≥ level*1000, the
	// level increases by one and xp decreases by level*1000. The check
	// runs once per grant, not in a loop.
	GrantXP(ctx context.Context, userID domain.UserID, amount int) error
}
