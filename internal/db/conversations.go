package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmirror-ai/mindmirror/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("db: not found")

// ConversationStore reads and writes conversations and their messages.
// Messages are immutable once written; reads return them ordered by
// (created_at, id) ascending so equal timestamps still have a stable order.
type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// CreateConversation inserts a conversation for userID. An empty title is
// replaced with the ordinal default ("Conversation N").
func (s *ConversationStore) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("db: conversation store not initialised")
	}

	if title == "" {
		var count int
		const countQuery = `SELECT COUNT(*) FROM conversations WHERE user_id = $1`
		if err := s.pool.QueryRow(ctx, countQuery, userID).Scan(&count); err != nil {
			return nil, fmt.Errorf("db: count conversations: %w", err)
		}
		title = fmt.Sprintf("Conversation %d", count+1)
	}

	now := time.Now().UTC()
	conversation := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const query = `INSERT INTO conversations (id, user_id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query,
		conversation.ID,
		conversation.UserID,
		conversation.Title,
		conversation.CreatedAt,
		conversation.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("db: insert conversation: %w", err)
	}

	return conversation, nil
}

// ListConversations returns the user's conversations, most recently
// updated first.
func (s *ConversationStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("db: conversation store not initialised")
	}

	const query = `SELECT id, user_id, title, created_at, updated_at
FROM conversations
WHERE user_id = $1
ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db: list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db: scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("db: conversation store not initialised")
	}

	const query = `SELECT id, user_id, title, created_at, updated_at
FROM conversations
WHERE id = $1`

	var c models.Conversation
	err := s.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db: query conversation: %w", err)
	}

	return &c, nil
}

// ListMessages returns all turns of a conversation in chronological order.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("db: conversation store not initialised")
	}

	const query = `SELECT id, conversation_id, content, role, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db: list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// AppendTurnPair writes the user turn and the assistant reply in one batch
// insert and bumps the conversation's updated_at. The assistant row gets a
// timestamp one microsecond after the user row so chronological reads always
// place the reply after the utterance it answers.
func (s *ConversationStore) AppendTurnPair(ctx context.Context, conversationID, userContent, assistantContent string) error {
	if s == nil || s.pool == nil {
		return errors.New("db: conversation store not initialised")
	}

	now := time.Now().UTC()

	const insert = `INSERT INTO messages (id, conversation_id, content, role, created_at)
VALUES ($1, $2, $3, 'user', $4), ($5, $2, $6, 'assistant', $7)`
	if _, err := s.pool.Exec(ctx, insert,
		uuid.NewString(),
		conversationID,
		userContent,
		now,
		uuid.NewString(),
		assistantContent,
		now.Add(time.Microsecond),
	); err != nil {
		return fmt.Errorf("db: insert turn pair: %w", err)
	}

	const touch = `UPDATE conversations SET updated_at = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, touch, conversationID, now); err != nil {
		return fmt.Errorf("db: touch conversation: %w", err)
	}

	return nil
}
