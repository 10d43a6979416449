package core

import (
	"encoding/json"
	"time"

	"github.com/medmmo/roomsync/internal/domain"
)

// Message kinds accepted from clients.
const (
	KindMove     = "move"
	KindStop     = "stop"
	KindInteract = "interact"
	KindStatus   = "status"
	KindChat     = "chat"
	KindLeave    = "leave"

	// Room-type specific kinds, enabled per handler table.
	KindCaseDiscussion = "case_discussion"
	KindCriticalAlert  = "critical_alert"
	KindProcedureStart = "procedure_start"
	KindProcedureStep  = "procedure_step"
	KindRoundsStart    = "rounds_start"
)

// Notification kinds pushed to clients.
const (
	NotifyRoomState    = "room_state"
	NotifyPlayerJoined = "player_joined"
	NotifyPlayerLeft   = "player_left"
	NotifyChat         = "chat"
	NotifyInteraction  = "interaction"
	NotifyError        = "error"
)

// MaxChatLen bounds chat text; longer messages are silently dropped.
const MaxChatLen = 500

// Default spawn position when the join request omits coordinates.
const (
	DefaultSpawnX = 400
	DefaultSpawnY = 300
)

// Envelope is the client → actor wire message.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Notice is the actor → client wire message.
type Notice struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

type MovePayload struct {
	X         float64          `json:"x"`
	Y         float64          `json:"y"`
	Direction domain.Direction `json:"direction"`
}

type InteractPayload struct {
	TargetID domain.UserID `json:"target_id,omitempty"`
	Action   string        `json:"action,omitempty"`
}

type StatusPayload struct {
	Status domain.PlayerStatus `json:"status"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type ChatNotice struct {
	UserID    domain.UserID `json:"user_id"`
	Name      string        `json:"name"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}

type InteractionNotice struct {
	FromID   domain.UserID `json:"from_id"`
	FromName string        `json:"from_name"`
	Action   string        `json:"action,omitempty"`
}

type PlayerJoinedNotice struct {
	Player *domain.Player `json:"player"`
}

type PlayerLeftNotice struct {
	UserID domain.UserID `json:"user_id"`
	Reason string        `json:"reason,omitempty"`
}

// RoomStateNotice is the replicated-state snapshot sent on join and on
// the periodic sync tick.
type RoomStateNotice struct {
	RoomType   domain.RoomType  `json:"room_type"`
	MapName    string           `json:"map_name"`
	MaxPlayers int              `json:"max_players"`
	Players    []*domain.Player `json:"players"`
}

type ErrorNotice struct {
	Reason string `json:"reason"`
}
