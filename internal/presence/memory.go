package presence

import (
	"context"
	"sync"
	"time"

	"github.com/medmmo/roomsync/internal/domain"
)

// MemoryStore is an in-process presence store for single-node
// deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Presence
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]domain.Presence),
		now:     time.Now,
	}
}

// SetClock replaces the store clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Upsert(_ context.Context, p domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.LastHeartbeat.IsZero() {
		p.LastHeartbeat = s.now()
	}
	s.records[key(p.RoomType, p.UserID)] = p
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, userID domain.UserID, roomType domain.RoomType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key(roomType, userID))
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context, roomType domain.RoomType) ([]domain.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-domain.PresenceTTL)
	var out []domain.Presence
	for _, p := range s.records {
		if p.RoomType == roomType && p.LastHeartbeat.After(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) CleanupStale(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-domain.PresenceTTL)
	deleted := 0
	for k, p := range s.records {
		if !p.LastHeartbeat.After(cutoff) {
			delete(s.records, k)
			deleted++
		}
	}
	return deleted, nil
}
