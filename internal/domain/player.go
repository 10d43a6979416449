package domain

import "time"

type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

type PlayerStatus string

const (
	StatusActive PlayerStatus = "active"
	StatusIdle   PlayerStatus = "idle"
	StatusAway   PlayerStatus = "away"
)

func (s PlayerStatus) Valid() bool {
	switch s {
	case StatusActive, StatusIdle, StatusAway:
		return true
	}
	return false
}

// Player is one occupant's replicated attributes. Owned by the room
// actor; never mutated from more than one goroutine.
type Player struct {
	UserID     UserID       `json:"user_id"`
	Name       string       `json:"name"`
	Level      int          `json:"level"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Direction  Direction    `json:"direction"`
	Moving     bool         `json:"moving"`
	Status     PlayerStatus `json:"status"`
	Avatar     string       `json:"avatar"`
	LastUpdate time.Time    `json:"last_update"`
}

func NewPlayer(user User, x, y float64, avatar string, now time.Time) *Player {
	level := user.Level
	if level < 1 {
		level = 1
	}
	return &Player{
		UserID:     user.ID,
		Name:       user.Name,
		Level:      level,
		X:          x,
		Y:          y,
		Direction:  DirDown,
		Status:     StatusActive,
		Avatar:     avatar,
		LastUpdate: now,
	}
}

// Touch refreshes LastUpdate, keeping it monotonically non-decreasing.
func (p *Player) Touch(now time.Time) {
	if now.After(p.LastUpdate) {
		p.LastUpdate = now
	}
}
