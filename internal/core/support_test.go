package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/medmmo/roomsync/internal/domain"
	"github.com/medmmo/roomsync/internal/presence"
	"github.com/medmmo/roomsync/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type closeCall struct {
	reward       int
	duration     int
	interactions int
}

type fakeStore struct {
	mu           sync.Mutex
	failAll      bool
	opened       []string
	closes       map[string][]closeCall
	interactions map[string]int
	collab       []storage.CollaborationEvent
	grants       map[domain.UserID][]int
	users        map[domain.UserID]domain.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		closes:       make(map[string][]closeCall),
		interactions: make(map[string]int),
		grants:       make(map[domain.UserID][]int),
		users:        make(map[domain.UserID]domain.User),
	}
}

func (s *fakeStore) err() error {
	if s.failAll {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *fakeStore) OpenSession(_ context.Context, _ domain.UserID, _ domain.RoomType, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, sessionID)
	return s.err()
}

func (s *fakeStore) CloseSession(_ context.Context, sessionID string, reward, durationSeconds, interactions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes[sessionID] = append(s.closes[sessionID], closeCall{reward: reward, duration: durationSeconds, interactions: interactions})
	return s.err()
}

func (s *fakeStore) FindActiveSession(_ context.Context, _ domain.UserID, _ domain.RoomType) (*storage.SessionRecord, error) {
	return nil, storage.ErrNotFound
}

func (s *fakeStore) IncrementInteractions(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[sessionID]++
	return s.err()
}

func (s *fakeStore) CreateCollaborationEvent(_ context.Context, ev storage.CollaborationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collab = append(s.collab, ev)
	return s.err()
}

func (s *fakeStore) GetUser(_ context.Context, userID domain.UserID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GrantXP(_ context.Context, userID domain.UserID, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[userID] = append(s.grants[userID], amount)
	return s.err()
}

func (s *fakeStore) closeCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closes[sessionID])
}

func (s *fakeStore) grantsFor(userID domain.UserID) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.grants[userID]...)
}

type fakeConn struct {
	mu      sync.Mutex
	notices []Notice
	closed  bool
}

func (c *fakeConn) TrySend(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, v.(Notice))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.notices))
	for _, n := range c.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (c *fakeConn) last(kind string) (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.notices) - 1; i >= 0; i-- {
		if c.notices[i].Kind == kind {
			return c.notices[i], true
		}
	}
	return Notice{}, false
}

func (c *fakeConn) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, notice := range c.notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}

func newMemoryPresence(clock *fakeClock) *presence.MemoryStore {
	p := presence.NewMemoryStore()
	p.SetClock(clock.Now)
	return p
}

// newTestActor builds an unstarted actor whose handlers run on the
// test goroutine and whose persistence calls execute synchronously.
func newTestActor(rt domain.RoomType, clock *fakeClock, store *fakeStore) (*Actor, *presence.MemoryStore) {
	pres := presence.NewMemoryStore()
	pres.SetClock(clock.Now)
	a := NewActor(rt, Options{
		Store:    store,
		Presence: pres,
		Now:      clock.Now,
	})
	a.spawn = func(fn func()) { fn() }
	return a, pres
}

func testUser(id string) domain.User {
	return domain.User{ID: domain.UserID(id), Name: "Dr. " + id, Level: 1}
}

func join(a *Actor, user domain.User) (*fakeConn, string, error) {
	conn := &fakeConn{}
	r := a.admit(joinCmd{conn: conn, user: user, x: DefaultSpawnX, y: DefaultSpawnY})
	return conn, r.sessionID, r.err
}

func env(t *testing.T, kind string, payload any) Envelope {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Kind: kind, Payload: b}
}
