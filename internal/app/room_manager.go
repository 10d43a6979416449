package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/core"
	"github.com/medmmo/roomsync/internal/domain"
)

// RoomInfo is a read-only view for the room list API.
type RoomInfo struct {
	Type      domain.RoomType `json:"type"`
	Occupants int             `json:"occupants"`
	Max       int             `json:"max_players"`
}

// RoomManager owns one running actor per room type, creating them on
// demand and disposing them once they report empty past the grace.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomType]*core.Actor
	opts  core.Options
}

func NewRoomManager(opts core.Options) *RoomManager {
	m := &RoomManager{rooms: make(map[domain.RoomType]*core.Actor)}
	opts.OnEmpty = m.onEmpty
	m.opts = opts
	return m
}

func (m *RoomManager) GetOrCreate(rt domain.RoomType) *core.Actor {
	m.mu.RLock()
	actor, ok := m.rooms[rt]
	m.mu.RUnlock()
	if ok {
		return actor
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if actor, ok = m.rooms[rt]; ok {
		return actor
	}
	actor = core.NewActor(rt, m.opts)
	actor.Start()
	m.rooms[rt] = actor
	log.Info().Str("module", "app.rooms").Str("room", string(rt)).Msg("room actor created")
	return actor
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	actors := make([]*core.Actor, 0, len(m.rooms))
	for _, a := range m.rooms {
		actors = append(actors, a)
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(actors))
	for _, a := range actors {
		rt := a.RoomType()
		out = append(out, RoomInfo{Type: rt, Occupants: a.OccupantCount(), Max: rt.MaxPlayers()})
	}
	return out
}

// onEmpty runs on the actor goroutine, so the teardown happens off it.
func (m *RoomManager) onEmpty(a *core.Actor) {
	rt := a.RoomType()
	m.mu.Lock()
	if m.rooms[rt] != a {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, rt)
	m.mu.Unlock()

	go a.Stop()
	log.Info().Str("module", "app.rooms").Str("room", string(rt)).Msg("empty room disposed")
}

// Shutdown stops every running actor.
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	actors := m.rooms
	m.rooms = make(map[domain.RoomType]*core.Actor)
	m.mu.Unlock()

	for _, a := range actors {
		a.Stop()
	}
}
