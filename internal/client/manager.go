// Package client is the connection manager game clients embed: it
// joins a named room, re-emits server notices as typed events, keeps a
// heartbeat and schedules a single reconnect after abnormal closes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/core"
	"github.com/medmmo/roomsync/internal/domain"
)

var (
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrRefused           = errors.New("connection refused")
	ErrNotConnected      = errors.New("not connected")
)

// Handler receives the raw payload of one notice kind.
type Handler func(payload json.RawMessage)

type Option func(*Manager)

func WithJoinTimeout(d time.Duration) Option     { return func(m *Manager) { m.joinTimeout = d } }
func WithHeartbeatEvery(d time.Duration) Option  { return func(m *Manager) { m.heartbeatEvery = d } }
func WithReconnectDelay(d time.Duration) Option  { return func(m *Manager) { m.reconnectDelay = d } }
func WithSpawn(x, y float64) Option {
	return func(m *Manager) { m.spawnX, m.spawnY = &x, &y }
}
func WithAvatar(avatar string) Option { return func(m *Manager) { m.avatar = avatar } }

// Manager is a client-side connection to one room.
type Manager struct {
	url   string
	token string

	joinTimeout    time.Duration
	heartbeatEvery time.Duration
	reconnectDelay time.Duration
	spawnX, spawnY *float64
	avatar         string

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	handlers  map[string][]Handler
	reconnect *time.Timer
	leaving   bool
}

// New builds a manager for ws://host:port and a room type. Connect
// must be called to join.
func New(baseURL string, roomType domain.RoomType, token string, opts ...Option) *Manager {
	m := &Manager{
		url:            fmt.Sprintf("%s/api/ws/rooms/%s", baseURL, roomType),
		token:          token,
		joinTimeout:    10 * time.Second,
		heartbeatEvery: 30 * time.Second,
		reconnectDelay: 3 * time.Second,
		handlers:       make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// On registers a handler for a notice kind (core.NotifyRoomState,
// core.NotifyPlayerJoined, core.NotifyChat, room-specific kinds, ...).
// Register before Connect; handlers run on the read loop goroutine.
func (m *Manager) On(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], h)
}

// Connect dials, sends the join request and waits for the room state,
// all bounded by the join timeout. The server may still admit after
// the client gave up; its dead socket then runs the server leave path.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.leaving = false
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.joinTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		if dialCtx.Err() != nil {
			return ErrConnectionTimeout
		}
		return fmt.Errorf("dial: %w", err)
	}

	req := map[string]any{"token": m.token}
	if m.spawnX != nil {
		req["x"] = *m.spawnX
	}
	if m.spawnY != nil {
		req["y"] = *m.spawnY
	}
	if m.avatar != "" {
		req["avatar"] = m.avatar
	}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send join: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(m.joinTimeout))
	var first core.Envelope
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return ErrConnectionTimeout
		}
		return fmt.Errorf("read join response: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if first.Kind == core.NotifyError {
		_ = conn.Close()
		var e core.ErrorNotice
		_ = json.Unmarshal(first.Payload, &e)
		return fmt.Errorf("%w: %s", ErrRefused, e.Reason)
	}
	if first.Kind != core.NotifyRoomState {
		_ = conn.Close()
		return fmt.Errorf("unexpected first notice %q", first.Kind)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.dispatch(first.Kind, first.Payload)

	go m.readLoop(conn)
	go m.heartbeat(conn)
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		var env core.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			m.onClosed(conn, err)
			return
		}
		m.dispatch(env.Kind, env.Payload)
	}
}

func (m *Manager) dispatch(kind string, payload json.RawMessage) {
	m.mu.Lock()
	hs := append([]Handler(nil), m.handlers[kind]...)
	m.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (m *Manager) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(m.heartbeatEvery)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		current := m.conn == conn && !m.leaving
		m.mu.Unlock()
		if !current {
			return
		}
		if err := m.send(core.KindStatus, core.StatusPayload{Status: domain.StatusActive}); err != nil {
			return
		}
	}
}

// onClosed runs when the read loop dies. A close code outside the
// normal set schedules exactly one reconnect attempt after the fixed
// delay; an explicit Leave beforehand cancels it.
func (m *Manager) onClosed(conn *websocket.Conn, err error) {
	_ = conn.Close()

	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.leaving || !abnormal(err) || m.reconnect != nil {
		m.mu.Unlock()
		return
	}
	log.Warn().Err(err).Str("module", "client").Dur("delay", m.reconnectDelay).Msg("abnormal close, reconnect scheduled")
	m.reconnect = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		m.reconnect = nil
		leaving := m.leaving
		m.mu.Unlock()
		if leaving {
			return
		}
		if err := m.Connect(context.Background()); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("reconnect failed")
		}
	})
	m.mu.Unlock()
}

func abnormal(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway
	}
	return true
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func (m *Manager) send(kind string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(core.Envelope{Kind: kind, Payload: b})
}

func (m *Manager) SendMove(x, y float64, direction domain.Direction) error {
	return m.send(core.KindMove, core.MovePayload{X: x, Y: y, Direction: direction})
}

func (m *Manager) SendStop() error {
	return m.send(core.KindStop, struct{}{})
}

func (m *Manager) SendInteract(target domain.UserID, action string) error {
	return m.send(core.KindInteract, core.InteractPayload{TargetID: target, Action: action})
}

func (m *Manager) SendStatus(status domain.PlayerStatus) error {
	return m.send(core.KindStatus, core.StatusPayload{Status: status})
}

// SendChat truncates to the server limit before sending, so a client
// message always passes the server-side length check.
func (m *Manager) SendChat(text string) error {
	runes := []rune(text)
	if len(runes) > core.MaxChatLen {
		text = string(runes[:core.MaxChatLen])
	}
	return m.send(core.KindChat, core.ChatPayload{Text: text})
}

// Send emits a room-specific message kind.
func (m *Manager) Send(kind string, payload any) error {
	return m.send(kind, payload)
}

// Leave cancels any pending reconnect, tells the room goodbye and
// closes the socket.
func (m *Manager) Leave() error {
	m.mu.Lock()
	m.leaving = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	b, _ := json.Marshal(core.Envelope{Kind: core.KindLeave})
	_ = conn.WriteMessage(websocket.TextMessage, b)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"))
	m.writeMu.Unlock()
	return conn.Close()
}
