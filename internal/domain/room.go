package domain

import (
	"errors"
	"time"
)

type RoomType string

const (
	RoomLobby     RoomType = "lobby"
	RoomEmergency RoomType = "emergency"
	RoomWard      RoomType = "ward"
	RoomICU       RoomType = "icu"
	RoomSurgical  RoomType = "surgical"
)

var ErrUnknownRoomType = errors.New("unknown room type")

func ParseRoomType(s string) (RoomType, error) {
	rt := RoomType(s)
	switch rt {
	case RoomLobby, RoomEmergency, RoomWard, RoomICU, RoomSurgical:
		return rt, nil
	}
	return "", ErrUnknownRoomType
}

// MaxPlayers is the per-type admission cap. Enforced at join, never after.
func (rt RoomType) MaxPlayers() int {
	switch rt {
	case RoomLobby:
		return 40
	case RoomEmergency:
		return 16
	case RoomWard:
		return 20
	case RoomICU:
		return 12
	case RoomSurgical:
		return 8
	}
	return 0
}

func (rt RoomType) MapName() string {
	switch rt {
	case RoomLobby:
		return "hospital_lobby"
	case RoomEmergency:
		return "emergency_wing"
	case RoomWard:
		return "general_ward"
	case RoomICU:
		return "icu_floor"
	case RoomSurgical:
		return "surgical_theater"
	}
	return ""
}

// Room is the replicated aggregate: players keyed by user id plus room
// metadata. Owned exclusively by one room actor, so it carries no lock.
type Room struct {
	Type       RoomType
	MaxPlayers int
	MapName    string
	CreatedAt  time.Time
	Players    map[UserID]*Player
}

func NewRoom(rt RoomType, now time.Time) *Room {
	return &Room{
		Type:       rt,
		MaxPlayers: rt.MaxPlayers(),
		MapName:    rt.MapName(),
		CreatedAt:  now,
		Players:    make(map[UserID]*Player),
	}
}

func (r *Room) Full() bool {
	return len(r.Players) >= r.MaxPlayers
}
