package models

import "time"

// Conversation is an ordered collection of messages owned by one user.
// Its updated_at is bumped whenever a new turn pair is appended.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
