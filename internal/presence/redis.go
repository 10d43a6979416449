package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/medmmo/roomsync/internal/domain"
)

const keyPrefix = "presence:"

// RedisStore keeps presence records in Redis, one JSON value per
// user+room key. Keys expire at twice the TTL as a backstop; the
// cleanup sweep remains the authoritative eviction path so that
// deleted counts can be reported.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, now: time.Now}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func key(roomType domain.RoomType, userID domain.UserID) string {
	return keyPrefix + string(roomType) + ":" + string(userID)
}

func (s *RedisStore) Upsert(ctx context.Context, p domain.Presence) error {
	if p.LastHeartbeat.IsZero() {
		p.LastHeartbeat = s.now()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := s.client.Set(ctx, key(p.RoomType, p.UserID), b, 2*domain.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, userID domain.UserID, roomType domain.RoomType) error {
	if err := s.client.Del(ctx, key(roomType, userID)).Err(); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

func (s *RedisStore) ListActive(ctx context.Context, roomType domain.RoomType) ([]domain.Presence, error) {
	cutoff := s.now().Add(-domain.PresenceTTL)
	var out []domain.Presence

	iter := s.client.Scan(ctx, 0, keyPrefix+string(roomType)+":*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read presence: %w", err)
		}
		var p domain.Presence
		if err := json.Unmarshal(b, &p); err != nil {
			continue
		}
		if p.LastHeartbeat.After(cutoff) {
			out = append(out, p)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence: %w", err)
	}
	return out, nil
}

func (s *RedisStore) CleanupStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-domain.PresenceTTL)
	deleted := 0

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		b, err := s.client.Get(ctx, k).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("read presence: %w", err)
		}
		var p domain.Presence
		if err := json.Unmarshal(b, &p); err != nil || !p.LastHeartbeat.After(cutoff) {
			if err := s.client.Del(ctx, k).Err(); err != nil {
				return deleted, fmt.Errorf("delete presence: %w", err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan presence: %w", err)
	}
	return deleted, nil
}
