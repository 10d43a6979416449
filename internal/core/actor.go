package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/domain"
	"github.com/medmmo/roomsync/internal/presence"
	"github.com/medmmo/roomsync/internal/storage"
)

var ErrRoomClosed = errors.New("room closed")

const mailboxSize = 256

// occupant binds a session, its user record, its live player state and
// its transport endpoint.
type occupant struct {
	sess   *domain.Session
	user   domain.User
	player *domain.Player
	conn   ClientConn
}

type command interface{}

type joinCmd struct {
	conn   ClientConn
	user   domain.User
	x, y   float64
	avatar string
	reply  chan joinReply
}

type joinReply struct {
	sessionID string
	err       error
}

type leaveCmd struct {
	sessionID string
	reason    string
}

type inboundCmd struct {
	sessionID string
	env       Envelope
}

type snapshotCmd struct {
	reply chan RoomStateNotice
}

// Options wires an Actor to its collaborators. Zero intervals fall back
// to production defaults.
type Options struct {
	Store    storage.Store
	Presence presence.Store
	Events   EventPublisher

	DemoteEvery time.Duration // activity demotion sweep, default 30s
	SweepEvery  time.Duration // stale presence cleanup, default 5m
	SyncEvery   time.Duration // replicated-state broadcast, default 1s
	EmptyGrace  time.Duration // empty-room disposal grace, default 5m

	// Now is the actor clock, replaceable in tests.
	Now func() time.Time

	// OnEmpty is called from the actor loop once the room has been
	// empty for EmptyGrace. The callback must not block.
	OnEmpty func(*Actor)
}

// Actor owns one room. All state mutation happens on its single
// goroutine; messages, maintenance ticks and joins are strictly
// sequential, which is what makes the room race-free without locks.
type Actor struct {
	room     *domain.Room
	handlers map[string]HandlerFunc

	store  storage.Store
	pres   presence.Store
	events EventPublisher

	sessions map[string]*occupant
	byUser   map[domain.UserID]string

	mailbox chan command
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	spawn func(func())

	demoteEvery time.Duration
	sweepEvery  time.Duration
	syncEvery   time.Duration
	emptyGrace  time.Duration
	onEmpty     func(*Actor)

	emptySince time.Time
	dirty      bool
}

func NewActor(rt domain.RoomType, opts Options) *Actor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DemoteEvery <= 0 {
		opts.DemoteEvery = 30 * time.Second
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = 5 * time.Minute
	}
	if opts.SyncEvery <= 0 {
		opts.SyncEvery = time.Second
	}
	if opts.EmptyGrace <= 0 {
		opts.EmptyGrace = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := opts.Now()
	return &Actor{
		room:        domain.NewRoom(rt, now),
		handlers:    extensionsFor(rt),
		store:       opts.Store,
		pres:        opts.Presence,
		events:      opts.Events,
		sessions:    make(map[string]*occupant),
		byUser:      make(map[domain.UserID]string),
		mailbox:     make(chan command, mailboxSize),
		ctx:         ctx,
		cancel:      cancel,
		now:         opts.Now,
		spawn:       func(fn func()) { go fn() },
		demoteEvery: opts.DemoteEvery,
		sweepEvery:  opts.SweepEvery,
		syncEvery:   opts.SyncEvery,
		emptyGrace:  opts.EmptyGrace,
		onEmpty:     opts.OnEmpty,
		emptySince:  now,
	}
}

func (a *Actor) RoomType() domain.RoomType { return a.room.Type }

// Start launches the actor loop.
func (a *Actor) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop tears the actor down and waits for the loop to exit.
func (a *Actor) Stop() {
	a.cancel()
	a.wg.Wait()
}

func (a *Actor) run() {
	defer a.wg.Done()

	demote := time.NewTicker(a.demoteEvery)
	defer demote.Stop()
	sweep := time.NewTicker(a.sweepEvery)
	defer sweep.Stop()
	syncTick := time.NewTicker(a.syncEvery)
	defer syncTick.Stop()

	log.Info().Str("module", "core.room").Str("room", string(a.room.Type)).Msg("room actor started")

	for {
		select {
		case cmd := <-a.mailbox:
			a.dispatch(cmd)
		case <-demote.C:
			a.demoteIdle()
			a.checkEmpty()
		case <-sweep.C:
			a.sweepPresence()
		case <-syncTick.C:
			a.syncState()
		case <-a.ctx.Done():
			a.dispose()
			return
		}
	}
}

func (a *Actor) dispatch(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- a.admit(c)
	case leaveCmd:
		a.evict(c.sessionID, c.reason)
	case inboundCmd:
		a.handleEnvelope(c.sessionID, c.env)
	case snapshotCmd:
		c.reply <- a.snapshot()
	}
}

// Join asks the actor to admit user on conn. It blocks until the actor
// processed the request or ctx expired.
func (a *Actor) Join(ctx context.Context, conn ClientConn, user domain.User, x, y float64, avatar string) (string, error) {
	reply := make(chan joinReply, 1)
	cmd := joinCmd{conn: conn, user: user, x: x, y: y, avatar: avatar, reply: reply}
	select {
	case a.mailbox <- cmd:
	case <-a.ctx.Done():
		return "", ErrRoomClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-reply:
		return r.sessionID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Leave removes the session, gracefully or on a transport-reported
// disconnect. Safe to call more than once per session.
func (a *Actor) Leave(sessionID, reason string) {
	select {
	case a.mailbox <- leaveCmd{sessionID: sessionID, reason: reason}:
	case <-a.ctx.Done():
	}
}

// Deliver hands an inbound envelope to the actor loop.
func (a *Actor) Deliver(sessionID string, env Envelope) {
	select {
	case a.mailbox <- inboundCmd{sessionID: sessionID, env: env}:
	case <-a.ctx.Done():
	}
}

// Snapshot returns the current replicated state. Served by the actor
// loop, so it observes a consistent room.
func (a *Actor) Snapshot() (RoomStateNotice, error) {
	reply := make(chan RoomStateNotice, 1)
	select {
	case a.mailbox <- snapshotCmd{reply: reply}:
	case <-a.ctx.Done():
		return RoomStateNotice{}, ErrRoomClosed
	}
	select {
	case s := <-reply:
		return s, nil
	case <-a.ctx.Done():
		return RoomStateNotice{}, ErrRoomClosed
	}
}

// OccupantCount reports the live player count.
func (a *Actor) OccupantCount() int {
	s, err := a.Snapshot()
	if err != nil {
		return 0
	}
	return len(s.Players)
}

func (a *Actor) admit(c joinCmd) joinReply {
	// A second connection for the same user replaces the first.
	if oldID, ok := a.byUser[c.user.ID]; ok {
		old := a.sessions[oldID]
		a.evict(oldID, "replaced")
		if old != nil && old.conn != nil {
			old.conn.Close()
		}
	}

	if a.room.Full() {
		log.Warn().Str("module", "core.room").Str("room", string(a.room.Type)).Str("user", string(c.user.ID)).Msg("join refused: room full")
		return joinReply{err: ErrRoomFull}
	}

	now := a.now()
	player := domain.NewPlayer(c.user, c.x, c.y, c.avatar, now)
	sess := domain.NewSession(c.user.ID, now)

	a.room.Players[c.user.ID] = player
	a.sessions[sess.ID] = &occupant{sess: sess, user: c.user, player: player, conn: c.conn}
	a.byUser[c.user.ID] = sess.ID
	a.emptySince = time.Time{}
	a.dirty = true

	a.async("open session", func(ctx context.Context) error {
		return a.store.OpenSession(ctx, c.user.ID, a.room.Type, sess.ID)
	})
	a.upsertPresence(player)
	a.grantXP(c.user.ID, RewardJoin)
	a.publishEvent("join", map[string]any{"user_id": c.user.ID, "reward": RewardJoin})

	a.broadcastExcept(c.user.ID, Notice{Kind: NotifyPlayerJoined, Payload: PlayerJoinedNotice{Player: player}})
	a.send(c.conn, Notice{Kind: NotifyRoomState, Payload: a.snapshot()})

	log.Info().Str("module", "core.room").Str("room", string(a.room.Type)).Str("user", string(c.user.ID)).Str("session", sess.ID).Msg("player joined")
	return joinReply{sessionID: sess.ID}
}

func (a *Actor) evict(sessionID, reason string) {
	o, ok := a.sessions[sessionID]
	if !ok {
		// Second leave for the same session is a no-op.
		return
	}
	delete(a.sessions, sessionID)
	delete(a.byUser, o.user.ID)
	delete(a.room.Players, o.user.ID)
	if len(a.sessions) == 0 {
		a.emptySince = a.now()
	}
	a.dirty = true

	now := a.now()
	duration, reward := o.sess.LeaveReward(now)
	interactions := o.sess.Interactions

	a.async("close session", func(ctx context.Context) error {
		return a.store.CloseSession(ctx, sessionID, reward, duration, interactions)
	})
	a.async("remove presence", func(ctx context.Context) error {
		return a.pres.Remove(ctx, o.user.ID, a.room.Type)
	})
	a.grantXP(o.user.ID, reward)
	a.publishEvent("leave", map[string]any{"user_id": o.user.ID, "reward": reward, "duration_seconds": duration})

	a.broadcast(Notice{Kind: NotifyPlayerLeft, Payload: PlayerLeftNotice{UserID: o.user.ID, Reason: reason}})

	log.Info().Str("module", "core.room").Str("room", string(a.room.Type)).Str("user", string(o.user.ID)).Str("reason", reason).Int("reward", reward).Msg("player left")
}

// dispose runs when the actor is torn down: every remaining session is
// closed as if the player left.
func (a *Actor) dispose() {
	for id := range a.sessions {
		a.evict(id, "room closed")
	}
	log.Info().Str("module", "core.room").Str("room", string(a.room.Type)).Msg("room actor stopped")
}

// demoteIdle is the 30-second activity sweep: players with no update
// for over two minutes drop to idle, over five minutes to away.
// Promotion back to active only happens via move/status messages.
func (a *Actor) demoteIdle() {
	now := a.now()
	for _, p := range a.room.Players {
		inactive := now.Sub(p.LastUpdate)
		switch {
		case inactive > 5*time.Minute:
			if p.Status != domain.StatusAway {
				p.Status = domain.StatusAway
				a.dirty = true
			}
		case inactive > 2*time.Minute:
			if p.Status != domain.StatusIdle {
				p.Status = domain.StatusIdle
				a.dirty = true
			}
		}
	}
}

// sweepPresence delegates stale-record eviction to the presence store.
func (a *Actor) sweepPresence() {
	a.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := a.pres.CleanupStale(ctx)
		if err != nil {
			log.Error().Err(err).Str("module", "core.room").Str("room", string(a.room.Type)).Msg("presence cleanup failed")
			return
		}
		if n > 0 {
			log.Info().Str("module", "core.room").Str("room", string(a.room.Type)).Int("deleted", n).Msg("stale presence cleaned up")
		}
	})
}

// syncState pushes the replicated snapshot to everyone when something
// changed since the last tick.
func (a *Actor) syncState() {
	if !a.dirty {
		return
	}
	a.dirty = false
	a.broadcast(Notice{Kind: NotifyRoomState, Payload: a.snapshot()})
}

func (a *Actor) checkEmpty() {
	if len(a.sessions) > 0 || a.onEmpty == nil {
		return
	}
	if !a.emptySince.IsZero() && a.now().Sub(a.emptySince) >= a.emptyGrace {
		a.onEmpty(a)
	}
}

func (a *Actor) snapshot() RoomStateNotice {
	players := make([]*domain.Player, 0, len(a.room.Players))
	for _, p := range a.room.Players {
		players = append(players, p)
	}
	return RoomStateNotice{
		RoomType:   a.room.Type,
		MapName:    a.room.MapName,
		MaxPlayers: a.room.MaxPlayers,
		Players:    players,
	}
}

func (a *Actor) broadcast(n Notice) {
	for _, o := range a.sessions {
		a.send(o.conn, n)
	}
}

func (a *Actor) broadcastExcept(except domain.UserID, n Notice) {
	for _, o := range a.sessions {
		if o.user.ID == except {
			continue
		}
		a.send(o.conn, n)
	}
}

func (a *Actor) send(conn ClientConn, n Notice) {
	if conn == nil {
		return
	}
	if err := conn.TrySend(n); err != nil {
		log.Debug().Err(err).Str("module", "core.room").Str("room", string(a.room.Type)).Str("kind", n.Kind).Msg("dropped outbound notice")
	}
}

// async runs a persistence call off the actor goroutine. Failures are
// logged and swallowed so the in-memory transition always completes.
func (a *Actor) async(op string, fn func(context.Context) error) {
	a.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("module", "core.room").Str("room", string(a.room.Type)).Str("op", op).Msg("persistence call failed")
		}
	})
}

// grantXP issues the reward grant. A zero grant is not a no-op: the
// level-up check still runs and can normalize surplus XP.
func (a *Actor) grantXP(userID domain.UserID, amount int) {
	if amount < 0 {
		return
	}
	a.async("grant xp", func(ctx context.Context) error {
		return a.store.GrantXP(ctx, userID, amount)
	})
}

func (a *Actor) upsertPresence(p *domain.Player) {
	rec := domain.Presence{
		UserID:        p.UserID,
		RoomType:      a.room.Type,
		X:             p.X,
		Y:             p.Y,
		Status:        p.Status,
		LastHeartbeat: a.now(),
	}
	a.async("upsert presence", func(ctx context.Context) error {
		return a.pres.Upsert(ctx, rec)
	})
}

func (a *Actor) publishEvent(kind string, payload any) {
	if a.events == nil {
		return
	}
	rt := a.room.Type
	a.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.events.PublishRoomEvent(ctx, rt, kind, payload); err != nil {
			log.Error().Err(err).Str("module", "core.room").Str("room", string(rt)).Str("kind", kind).Msg("event publish failed")
		}
	})
}
