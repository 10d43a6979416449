// Package events mirrors room activity onto a NATS feed so external
// consumers (leaderboards, analytics) can follow along. Publishing is
// best-effort; the rooms never depend on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/domain"
)

const subjectPrefix = "roomsync.events."

type roomEvent struct {
	RoomType domain.RoomType `json:"room_type"`
	Kind     string          `json:"kind"`
	Payload  any             `json:"payload"`
	At       time.Time       `json:"at"`
}

// Publisher publishes room events on roomsync.events.<roomType>.
type Publisher struct {
	conn *nats.Conn
}

func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info().Str("module", "events").Str("url", url).Msg("event feed connected")
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}

func (p *Publisher) PublishRoomEvent(_ context.Context, roomType domain.RoomType, kind string, payload any) error {
	b, err := json.Marshal(roomEvent{
		RoomType: roomType,
		Kind:     kind,
		Payload:  payload,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}
	if err := p.conn.Publish(subjectPrefix+string(roomType), b); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}
	return nil
}
