package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is per-connection bookkeeping. It lives only inside the room
// actor; terminal values are flushed to storage on leave.
type Session struct {
	ID           string
	UserID       UserID
	JoinedAt     time.Time
	Interactions int
}

func NewSession(userID UserID, now time.Time) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		JoinedAt: now,
	}
}

// LeaveReward is the economy rule applied when a session closes:
// one point per full minute in the room plus five per interaction.
func (s *Session) LeaveReward(now time.Time) (durationSeconds, reward int) {
	durationSeconds = int(now.Sub(s.JoinedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	reward = durationSeconds/60 + s.Interactions*5
	return durationSeconds, reward
}
