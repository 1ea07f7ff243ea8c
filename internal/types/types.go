package types

import (
	"time"
)

type User struct {
	Username     string `json:"username"`
	Handle       string `json:"handle"`
	PasswordHash string `json:"-"`
}

// Message is a single entry of a room's log. Timestamp is UTC with
// whole-second resolution.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Handle    string    `json:"handle"`
	Text      string    `json:"text"`
}
