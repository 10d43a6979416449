package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/domain"
)

// Room behavior specialization: the generic actor plus an injected
// kind → handler table per room type. The lobby carries no extensions.
func extensionsFor(rt domain.RoomType) map[string]HandlerFunc {
	switch rt {
	case domain.RoomWard:
		return map[string]HandlerFunc{
			KindRoundsStart:    collabHandler(RewardRoundsStart),
			KindCaseDiscussion: collabHandler(RewardCaseDiscussion),
		}
	case domain.RoomICU:
		return map[string]HandlerFunc{
			KindCriticalAlert:  collabHandler(RewardCriticalAlert),
			KindCaseDiscussion: collabHandler(RewardCaseDiscussion),
		}
	case domain.RoomEmergency:
		return map[string]HandlerFunc{
			KindCriticalAlert: collabHandler(RewardCriticalAlert),
		}
	case domain.RoomSurgical:
		return map[string]HandlerFunc{
			KindProcedureStart: collabHandler(RewardProcedureStart),
			KindProcedureStep:  collabHandler(RewardProcedureStep),
		}
	}
	return nil
}

type collabPayload struct {
	TargetID domain.UserID   `json:"target_id,omitempty"`
	Detail   json.RawMessage `json:"detail,omitempty"`
}

// collabHandler records the event with its reward and notifies the
// room: the whole room by default, only the target when one is named.
func collabHandler(reward int) HandlerFunc {
	return func(a *Actor, o *occupant, env Envelope) {
		var p collabPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Debug().Str("module", "core.room").Str("user", string(o.user.ID)).Str("kind", env.Kind).Msg("malformed payload dropped")
				return
			}
		}

		a.recordCollaboration(o, env.Kind, p.TargetID, string(p.Detail), reward)

		notice := Notice{Kind: env.Kind, Payload: map[string]any{
			"user_id": o.user.ID,
			"name":    o.user.Name,
			"detail":  p.Detail,
		}}
		if p.TargetID != "" {
			if sid, ok := a.byUser[p.TargetID]; ok {
				a.send(a.sessions[sid].conn, notice)
			}
			return
		}
		a.broadcast(notice)
	}
}
