package database

import "time"

type User struct {
	Id           int
	Username     string
	PasswordHash string
	Handle       string
	CreatedAt    time.Time
}

// Room is a persisted room together with its message log, ordered by
// timestamp and then by insertion.
type Room struct {
	Id        int
	Name      string
	CreatedAt time.Time
	Messages  []Message
}

type Message struct {
	Id        int
	Handle    string
	Content   string
	CreatedAt time.Time
}
