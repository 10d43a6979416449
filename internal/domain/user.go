// Package domain contains entities without logic, just meta-data.
package domain

type UserID string

// User mirrors the directory record backing an occupant: identity plus
// the XP economy fields.
type User struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	XP    int    `json:"xp"`
}
