package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/app"
	"github.com/medmmo/roomsync/internal/auth"
	"github.com/medmmo/roomsync/internal/core"
	"github.com/medmmo/roomsync/internal/domain"
)

const joinDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// joinRequest is the first client frame after the upgrade.
type joinRequest struct {
	Token  string   `json:"token"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Avatar string   `json:"avatar,omitempty"`
}

// Controller accepts room connections: upgrade, authenticate, admit,
// then pump messages between the socket and the room actor.
type Controller struct {
	Rooms *app.RoomManager
	Auth  *auth.Authenticator
}

func NewController(rooms *app.RoomManager, authn *auth.Authenticator) *Controller {
	return &Controller{Rooms: rooms, Auth: authn}
}

func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	rt, err := domain.ParseRoomType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown room type"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("upgrade failed")
		return
	}

	_ = ws.SetReadDeadline(time.Now().Add(joinDeadline))
	_, first, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return
	}
	var req joinRequest
	if err := json.Unmarshal(first, &req); err != nil {
		refuse(ws, "bad_join_request")
		return
	}

	authCtx, cancel := context.WithTimeout(ctx, joinDeadline)
	user, err := ctl.Auth.Authenticate(authCtx, req.Token)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("room", string(rt)).Msg("connection refused")
		refuse(ws, reasonFor(err))
		return
	}

	x, y := float64(core.DefaultSpawnX), float64(core.DefaultSpawnY)
	if req.X != nil {
		x = *req.X
	}
	if req.Y != nil {
		y = *req.Y
	}

	actor := ctl.Rooms.GetOrCreate(rt)
	conn := NewConn(ws)

	// The write pump starts only after admission; the queued room_state
	// waits in the send buffer until then.
	joinCtx, cancelJoin := context.WithTimeout(ctx, joinDeadline)
	sessionID, err := actor.Join(joinCtx, conn, user, x, y, req.Avatar)
	cancelJoin()
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("room", string(rt)).Str("user", string(user.ID)).Msg("join refused")
		refuse(ws, reasonFor(err))
		return
	}

	connCtx, cancelConn := context.WithCancel(ctx)
	go conn.writePump(connCtx)
	_ = ws.SetReadDeadline(time.Time{})
	go ctl.readPump(connCtx, cancelConn, actor, conn, sessionID)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, actor *core.Actor, conn *Conn, sessionID string) {
	defer func() {
		actor.Leave(sessionID, "disconnect")
		cancel()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ws.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("session", sessionID).Msg("readPump closing")
				return
			}
			var env core.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("session", sessionID).Msg("bad json dropped")
				continue
			}
			actor.Deliver(sessionID, env)
		}
	}
}

// refuse reports the refusal reason and closes, pre-admission.
func refuse(ws *websocket.Conn, reason string) {
	b, _ := json.Marshal(core.Notice{Kind: core.NotifyError, Payload: core.ErrorNotice{Reason: reason}})
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = ws.WriteMessage(websocket.TextMessage, b)
	_ = ws.Close()
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomFull):
		return "room_full"
	case errors.Is(err, core.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, core.ErrAuth):
		return "auth_failed"
	default:
		return "internal_error"
	}
}
