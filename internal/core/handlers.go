package core

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/domain"
	"github.com/medmmo/roomsync/internal/storage"
)

// HandlerFunc is a room-type-specific message handler. Handlers run on
// the actor goroutine and may mutate room state freely.
type HandlerFunc func(a *Actor, o *occupant, env Envelope)

func (a *Actor) handleEnvelope(sessionID string, env Envelope) {
	o, ok := a.sessions[sessionID]
	if !ok {
		log.Debug().Str("module", "core.room").Str("session", sessionID).Str("kind", env.Kind).Msg("message for unknown session dropped")
		return
	}

	switch env.Kind {
	case KindMove:
		a.handleMove(o, env)
	case KindStop:
		o.player.Moving = false
		a.dirty = true
	case KindInteract:
		a.handleInteract(o, env)
	case KindStatus:
		a.handleStatus(o, env)
	case KindChat:
		a.handleChat(o, env)
	case KindLeave:
		conn := o.conn
		a.evict(sessionID, "leave")
		if conn != nil {
			conn.Close()
		}
	default:
		if h, ok := a.handlers[env.Kind]; ok {
			h(a, o, env)
			return
		}
		log.Warn().Str("module", "core.room").Str("room", string(a.room.Type)).Str("kind", env.Kind).Msg("unknown message kind")
	}
}

func (a *Actor) handleMove(o *occupant, env Envelope) {
	var p MovePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || !p.Direction.Valid() {
		log.Debug().Str("module", "core.room").Str("user", string(o.user.ID)).Msg("malformed move payload dropped")
		return
	}
	pl := o.player
	pl.X = p.X
	pl.Y = p.Y
	pl.Direction = p.Direction
	pl.Moving = true
	pl.Status = domain.StatusActive
	pl.Touch(a.now())
	a.dirty = true
	a.upsertPresence(pl)
}

func (a *Actor) handleStatus(o *occupant, env Envelope) {
	var p StatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || !p.Status.Valid() {
		log.Debug().Str("module", "core.room").Str("user", string(o.user.ID)).Msg("malformed status payload dropped")
		return
	}
	o.player.Status = p.Status
	o.player.Touch(a.now())
	a.dirty = true
	a.upsertPresence(o.player)
}

func (a *Actor) handleInteract(o *occupant, env Envelope) {
	var p InteractPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Str("module", "core.room").Str("user", string(o.user.ID)).Msg("malformed interact payload dropped")
			return
		}
	}

	o.sess.Interactions++
	sessionID := o.sess.ID
	a.async("increment interactions", func(ctx context.Context) error {
		return a.store.IncrementInteractions(ctx, sessionID)
	})
	a.recordCollaboration(o, "interaction", p.TargetID, p.Action, RewardInteraction)

	if p.TargetID != "" {
		if targetID, ok := a.byUser[p.TargetID]; ok {
			target := a.sessions[targetID]
			a.send(target.conn, Notice{Kind: NotifyInteraction, Payload: InteractionNotice{
				FromID:   o.user.ID,
				FromName: o.user.Name,
				Action:   p.Action,
			}})
		}
	}
}

func (a *Actor) handleChat(o *occupant, env Envelope) {
	var p ChatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Debug().Str("module", "core.room").Str("user", string(o.user.ID)).Msg("malformed chat payload dropped")
		return
	}
	if p.Text == "" || utf8.RuneCountInString(p.Text) > MaxChatLen {
		log.Debug().Str("module", "core.room").Str("user", string(o.user.ID)).Int("len", utf8.RuneCountInString(p.Text)).Msg("chat dropped")
		return
	}
	a.broadcast(Notice{Kind: NotifyChat, Payload: ChatNotice{
		UserID:    o.user.ID,
		Name:      o.user.Name,
		Text:      p.Text,
		Timestamp: a.now(),
	}})
}

// recordCollaboration persists a collaboration event, grants its reward
// and mirrors it to the event feed. All fire-and-forget.
func (a *Actor) recordCollaboration(o *occupant, kind string, target domain.UserID, metadata string, reward int) {
	ev := storage.CollaborationEvent{
		RoomType:     a.room.Type,
		Kind:         kind,
		UserID:       o.user.ID,
		TargetUserID: target,
		Metadata:     metadata,
		Reward:       reward,
		CreatedAt:    a.now(),
	}
	a.async("create collaboration event", func(ctx context.Context) error {
		return a.store.CreateCollaborationEvent(ctx, ev)
	})
	a.grantXP(o.user.ID, reward)
	a.publishEvent(kind, map[string]any{"user_id": o.user.ID, "target_id": target, "reward": reward})
}
