package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medmmo/roomsync/internal/domain"
)

func TestAdmitCapacity(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomSurgical, clock, store)

	max := domain.RoomSurgical.MaxPlayers()
	for i := 0; i < max; i++ {
		_, _, err := join(a, testUser(fmt.Sprintf("user-%d", i)))
		require.NoError(t, err)
	}
	assert.Len(t, a.room.Players, max)

	_, _, err := join(a, testUser("one-too-many"))
	require.ErrorIs(t, err, ErrRoomFull)
	assert.Len(t, a.room.Players, max, "capacity must hold after a refused join")
}

func TestAdmitNotifications(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomWard, clock, store)

	first, _, err := join(a, testUser("alice"))
	require.NoError(t, err)

	second, _, err := join(a, testUser("bob"))
	require.NoError(t, err)

	// The joiner gets the snapshot, not its own join notification.
	state, ok := second.last(NotifyRoomState)
	require.True(t, ok)
	snap := state.Payload.(RoomStateNotice)
	assert.Len(t, snap.Players, 2)
	assert.Equal(t, domain.RoomWard, snap.RoomType)
	assert.Zero(t, second.count(NotifyPlayerJoined))

	// Existing occupants see player_joined.
	joined, ok := first.last(NotifyPlayerJoined)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("bob"), joined.Payload.(PlayerJoinedNotice).Player.UserID)

	assert.Equal(t, []int{RewardJoin}, store.grantsFor("bob"))
}

func TestAdmitReplacesExistingConnection(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomLobby, clock, store)

	oldConn, oldSession, err := join(a, testUser("alice"))
	require.NoError(t, err)

	newConn, newSession, err := join(a, testUser("alice"))
	require.NoError(t, err)

	assert.NotEqual(t, oldSession, newSession)
	assert.Len(t, a.room.Players, 1)
	assert.True(t, oldConn.closed)
	assert.False(t, newConn.closed)
	assert.Equal(t, 1, store.closeCount(oldSession))
}

func TestLeaveReward(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomWard, clock, store)

	_, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		a.handleEnvelope(sessionID, env(t, KindInteract, InteractPayload{}))
	}

	clock.Advance(125 * time.Second)
	a.evict(sessionID, "leave")

	require.Equal(t, 1, store.closeCount(sessionID))
	call := store.closes[sessionID][0]
	assert.Equal(t, 125, call.duration)
	assert.Equal(t, 3, call.interactions)
	// floor(125/60) + 3*5
	assert.Equal(t, 17, call.reward)
}

func TestLeaveIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomWard, clock, store)

	_, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	a.evict(sessionID, "leave")
	a.evict(sessionID, "leave")

	assert.Equal(t, 1, store.closeCount(sessionID))
	// Join reward plus one leave reward, nothing more. The leave grant
	// is issued even at zero so the level-up check runs on every leave.
	assert.Equal(t, []int{RewardJoin, 0}, store.grantsFor("alice"))
}

func TestLeaveCompletesWhenPersistenceFails(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	store.failAll = true
	a, _ := newTestActor(domain.RoomICU, clock, store)

	_, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	a.evict(sessionID, "disconnect")

	assert.Empty(t, a.room.Players, "in-memory removal must complete despite storage errors")
	assert.Empty(t, a.sessions)
}

func TestChatBroadcastAndLimit(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomLobby, clock, store)

	alice, aliceSession, err := join(a, testUser("alice"))
	require.NoError(t, err)
	bob, _, err := join(a, testUser("bob"))
	require.NoError(t, err)

	a.handleEnvelope(aliceSession, env(t, KindChat, ChatPayload{Text: "rounds in five"}))

	// Chat reaches everyone, sender included.
	require.Equal(t, 1, alice.count(NotifyChat))
	require.Equal(t, 1, bob.count(NotifyChat))
	n, _ := bob.last(NotifyChat)
	chat := n.Payload.(ChatNotice)
	assert.Equal(t, domain.UserID("alice"), chat.UserID)
	assert.Equal(t, "rounds in five", chat.Text)

	// Oversized text is dropped, no error surfaced.
	a.handleEnvelope(aliceSession, env(t, KindChat, ChatPayload{Text: strings.Repeat("x", 600)}))
	assert.Equal(t, 1, alice.count(NotifyChat))
	assert.Equal(t, 1, bob.count(NotifyChat))

	// Exactly the limit passes.
	a.handleEnvelope(aliceSession, env(t, KindChat, ChatPayload{Text: strings.Repeat("x", MaxChatLen)}))
	assert.Equal(t, 2, bob.count(NotifyChat))
}

func TestInteractTargeted(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomWard, clock, store)

	_, aliceSession, err := join(a, testUser("alice"))
	require.NoError(t, err)
	bob, _, err := join(a, testUser("bob"))
	require.NoError(t, err)
	carol, _, err := join(a, testUser("carol"))
	require.NoError(t, err)

	a.handleEnvelope(aliceSession, env(t, KindInteract, InteractPayload{TargetID: "bob", Action: "high_five"}))

	require.Equal(t, 1, bob.count(NotifyInteraction))
	n, _ := bob.last(NotifyInteraction)
	assert.Equal(t, domain.UserID("alice"), n.Payload.(InteractionNotice).FromID)
	assert.Zero(t, carol.count(NotifyInteraction))

	assert.Equal(t, 1, store.interactions[aliceSession])
	assert.Contains(t, store.grantsFor("alice"), RewardInteraction)
}

func TestMoveUpdatesStateAndPresence(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, pres := newTestActor(domain.RoomWard, clock, store)

	_, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	a.handleEnvelope(sessionID, env(t, KindMove, MovePayload{X: 120, Y: 80, Direction: domain.DirLeft}))

	p := a.room.Players["alice"]
	assert.Equal(t, 120.0, p.X)
	assert.Equal(t, 80.0, p.Y)
	assert.Equal(t, domain.DirLeft, p.Direction)
	assert.True(t, p.Moving)
	assert.Equal(t, clock.Now(), p.LastUpdate)

	active, err := pres.ListActive(context.Background(), domain.RoomWard)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 120.0, active[0].X)

	a.handleEnvelope(sessionID, env(t, KindStop, struct{}{}))
	assert.False(t, p.Moving)
	assert.Equal(t, clock.Now(), p.LastUpdate, "stop must not refresh activity")
}

func TestMalformedAndUnknownMessagesDropped(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomLobby, clock, store)

	conn, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)
	before := len(conn.kinds())

	a.handleEnvelope(sessionID, Envelope{Kind: KindMove, Payload: json.RawMessage(`{"direction":"sideways"}`)})
	a.handleEnvelope(sessionID, Envelope{Kind: KindChat, Payload: json.RawMessage(`not json`)})
	a.handleEnvelope(sessionID, Envelope{Kind: "teleport", Payload: json.RawMessage(`{}`)})
	a.handleEnvelope("no-such-session", env(t, KindChat, ChatPayload{Text: "hi"}))

	assert.Equal(t, before, len(conn.kinds()))
	assert.False(t, a.room.Players["alice"].Moving)
}

func TestStatusDemotion(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomWard, clock, store)

	_, aliceSession, err := join(a, testUser("alice"))
	require.NoError(t, err)
	_, _, err = join(a, testUser("bob"))
	require.NoError(t, err)

	// alice stays fresh, bob goes quiet for 125s.
	clock.Advance(125 * time.Second)
	a.handleEnvelope(aliceSession, env(t, KindMove, MovePayload{X: 1, Y: 1, Direction: domain.DirUp}))
	a.demoteIdle()

	assert.Equal(t, domain.StatusActive, a.room.Players["alice"].Status)
	assert.Equal(t, domain.StatusIdle, a.room.Players["bob"].Status)

	// 310s total without updates drops to away.
	clock.Advance(185 * time.Second)
	a.demoteIdle()
	assert.Equal(t, domain.StatusAway, a.room.Players["bob"].Status)

	// No promotion from the sweep; only an explicit message does that.
	a.demoteIdle()
	assert.Equal(t, domain.StatusAway, a.room.Players["bob"].Status)
}

func TestStatusMessagePromotes(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomWard, clock, store)

	_, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	a.demoteIdle()
	assert.Equal(t, domain.StatusIdle, a.room.Players["alice"].Status)

	a.handleEnvelope(sessionID, env(t, KindStatus, StatusPayload{Status: domain.StatusActive}))
	assert.Equal(t, domain.StatusActive, a.room.Players["alice"].Status)
}

func TestRoomSpecificHandlers(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomSurgical, clock, store)

	alice, aliceSession, err := join(a, testUser("alice"))
	require.NoError(t, err)
	bob, _, err := join(a, testUser("bob"))
	require.NoError(t, err)

	a.handleEnvelope(aliceSession, env(t, KindProcedureStart, collabPayload{}))

	assert.Equal(t, 1, bob.count(KindProcedureStart))
	assert.Equal(t, 1, alice.count(KindProcedureStart))
	assert.Contains(t, store.grantsFor("alice"), RewardProcedureStart)

	store.mu.Lock()
	require.NotEmpty(t, store.collab)
	last := store.collab[len(store.collab)-1]
	store.mu.Unlock()
	assert.Equal(t, KindProcedureStart, last.Kind)
	assert.Equal(t, RewardProcedureStart, last.Reward)
	assert.Equal(t, domain.RoomSurgical, last.RoomType)

	// Surgical rooms do not know ward-only kinds.
	a.handleEnvelope(aliceSession, env(t, KindRoundsStart, collabPayload{}))
	assert.Zero(t, bob.count(KindRoundsStart))
}

func TestSyncStateOnlyWhenDirty(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	a, _ := newTestActor(domain.RoomLobby, clock, store)

	conn, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	a.syncState()
	states := conn.count(NotifyRoomState)

	a.syncState()
	assert.Equal(t, states, conn.count(NotifyRoomState), "clean room must not rebroadcast")

	a.handleEnvelope(sessionID, env(t, KindMove, MovePayload{X: 5, Y: 5, Direction: domain.DirDown}))
	a.syncState()
	assert.Equal(t, states+1, conn.count(NotifyRoomState))
}

func TestEmptyRoomDisposal(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()

	var emptied int
	a := NewActor(domain.RoomICU, Options{
		Store:      store,
		Presence:   newMemoryPresence(clock),
		Now:        clock.Now,
		EmptyGrace: 5 * time.Minute,
		OnEmpty:    func(*Actor) { emptied++ },
	})
	a.spawn = func(fn func()) { fn() }

	_, sessionID, err := join(a, testUser("alice"))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	a.checkEmpty()
	assert.Zero(t, emptied, "occupied room must not be disposed")

	a.evict(sessionID, "leave")
	clock.Advance(4 * time.Minute)
	a.checkEmpty()
	assert.Zero(t, emptied, "grace not yet elapsed")

	clock.Advance(2 * time.Minute)
	a.checkEmpty()
	assert.Equal(t, 1, emptied)
}

func TestActorLoop(t *testing.T) {
	store := newFakeStore()
	pres := newMemoryPresence(newFakeClock())
	a := NewActor(domain.RoomLobby, Options{Store: store, Presence: pres})
	a.Start()
	defer a.Stop()

	conn := &fakeConn{}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sessionID, err := a.Join(ctx, conn, testUser("alice"), 10, 20, "scrubs")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	snap, err := a.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, 10.0, snap.Players[0].X)

	a.Leave(sessionID, "leave")
	assert.Eventually(t, func() bool {
		s, err := a.Snapshot()
		return err == nil && len(s.Players) == 0
	}, time.Second, 10*time.Millisecond)
}
