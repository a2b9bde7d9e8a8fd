package models

import "time"

// Message roles. Every message is tagged as either user- or model-authored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn in a conversation. Messages are read back in
// (created_at, id) ascending order.
type Message struct {
	ID             string
	ConversationID string
	Content        string
	Role           string
	CreatedAt      time.Time
}
