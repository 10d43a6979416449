package core

import (
	"context"

	"github.com/medmmo/roomsync/internal/domain"
)

// ClientConn is a transport endpoint for one connected client.
// Owned by the adapter; the adapter must Close() it.
type ClientConn interface {
	// TrySend marshals and queues v without blocking. Returns
	// ErrBackpressure when the outbound queue is full.
	TrySend(v any) error
	Close()
}

// EventPublisher mirrors room events to external consumers.
// Implementations must be safe for concurrent use; a nil publisher is
// allowed everywhere and disables publishing.
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, roomType domain.RoomType, kind string, payload any) error
}
