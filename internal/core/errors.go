package core

import "errors"

// Admission errors are surfaced to the connecting client as a refusal
// reason. Everything that fails after admission is only logged; the
// room stays playable.
var (
	ErrAuth         = errors.New("authentication failed")
	ErrUserNotFound = errors.New("user not found")
	ErrRoomFull     = errors.New("room full")
	ErrBackpressure = errors.New("backpressure")
)
