// Package sqlite provides the SQLite-backed persistence collaborator.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/medmmo/roomsync/internal/domain"
	"github.com/medmmo/roomsync/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	level INTEGER NOT NULL DEFAULT 1,
	xp    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS room_sessions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	room_type        TEXT NOT NULL,
	started_at       INTEGER NOT NULL,
	ended_at         INTEGER,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	interactions     INTEGER NOT NULL DEFAULT 0,
	reward           INTEGER NOT NULL DEFAULT 0,
	active           INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_room_sessions_active
	ON room_sessions (user_id, room_type, active);

CREATE TABLE IF NOT EXISTS collaboration_events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	room_type      TEXT NOT NULL,
	kind           TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	target_user_id TEXT,
	metadata       TEXT,
	reward         INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);
`

// Store persists sessions, collaboration events and the XP economy.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	// modernc driver pragma syntax; mattn-style _journal_mode params are
	// silently ignored here.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) OpenSession(ctx context.Context, userID domain.UserID, roomType domain.RoomType, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_sessions (id, user_id, room_type, started_at, active) VALUES (?, ?, ?, ?, 1)`,
		sessionID, string(userID), string(roomType), toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

// CloseSession finalizes an active session. Closing an already closed
// session is a no-op.
func (s *Store) CloseSession(ctx context.Context, sessionID string, reward, durationSeconds, interactions int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE room_sessions
		 SET ended_at = ?, reward = ?, duration_seconds = ?, interactions = ?, active = 0
		 WHERE id = ? AND active = 1`,
		toMillis(s.now()), reward, durationSeconds, interactions, sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *Store) FindActiveSession(ctx context.Context, userID domain.UserID, roomType domain.RoomType) (*storage.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, room_type, started_at, duration_seconds, interactions, reward
		 FROM room_sessions WHERE user_id = ? AND room_type = ? AND active = 1
		 ORDER BY started_at DESC LIMIT 1`,
		string(userID), string(roomType))

	var rec storage.SessionRecord
	var startedAt int64
	err := row.Scan(&rec.ID, &rec.UserID, &rec.RoomType, &startedAt, &rec.DurationSeconds, &rec.Interactions, &rec.Reward)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	rec.StartedAt = fromMillis(startedAt)
	rec.Active = true
	return &rec, nil
}

func (s *Store) IncrementInteractions(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE room_sessions SET interactions = interactions + 1 WHERE id = ? AND active = 1`,
		sessionID)
	if err != nil {
		return fmt.Errorf("increment interactions: %w", err)
	}
	return nil
}

func (s *Store) CreateCollaborationEvent(ctx context.Context, ev storage.CollaborationEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collaboration_events (room_type, kind, user_id, target_user_id, metadata, reward, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(ev.RoomType), ev.Kind, string(ev.UserID), string(ev.TargetUserID), ev.Metadata, ev.Reward, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("create collaboration event: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID domain.UserID) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, level, xp FROM users WHERE id = ?`, string(userID))
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Level, &u.XP)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertUser writes a directory record. The account service owns user
// creation in production; this exists for seeding and tests.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	if u.Level < 1 {
		u.Level = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, level, xp) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, level = excluded.level, xp = excluded.xp`,
		string(u.ID), u.Name, u.Level, u.XP)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GrantXP adds amount and applies the level-up check once, inside one
// transaction. The check deliberately does not loop: a grant crossing
// two thresholds advances a single level. Compatibility quirk, keep it.
func (s *Store) GrantXP(ctx context.Context, userID domain.UserID, amount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("grant xp: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var level, xp int
	err = tx.QueryRowContext(ctx, `SELECT level, xp FROM users WHERE id = ?`, string(userID)).Scan(&level, &xp)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("grant xp: read user: %w", err)
	}

	xp += amount
	if xp >= level*1000 {
		xp -= level * 1000
		level++
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET level = ?, xp = ? WHERE id = ?`, level, xp, string(userID)); err != nil {
		return fmt.Errorf("grant xp: update: %w", err)
	}
	return tx.Commit()
}
