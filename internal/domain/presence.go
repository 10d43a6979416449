package domain

import "time"

// PresenceTTL bounds how long a heartbeat keeps a presence record alive.
const PresenceTTL = 2 * time.Minute

// Presence is a TTL-bound record of a user's last-known location and
// status, kept independently of any live connection.
type Presence struct {
	UserID        UserID       `json:"user_id"`
	RoomType      RoomType     `json:"room_type"`
	X             float64      `json:"x"`
	Y             float64      `json:"y"`
	Status        PlayerStatus `json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}
