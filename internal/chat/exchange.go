package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/llm"
	"github.com/mindmirror-ai/mindmirror/internal/models"
)

const (
	exchangeTemperature = 0.7
	exchangeMaxTokens   = 1000
)

var (
	ErrEmptyMessage         = errors.New("chat: message is empty")
	ErrConversationBusy     = errors.New("chat: conversation has a request in flight")
	ErrConversationNotFound = errors.New("chat: conversation not found")
)

// Store is the conversation persistence capability the chat services need.
// *db.ConversationStore is the production implementation.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendTurnPair(ctx context.Context, conversationID, userContent, assistantContent string) error
}

// Completer produces one model reply for a prompt message list.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error)
}

// ExchangeResult carries the assistant reply plus the refreshed turn list.
type ExchangeResult struct {
	Reply    string
	Messages []models.Message
}

// ExchangeService runs one conversational turn: history in, one model reply
// out, both new turns persisted.
type ExchangeService struct {
	store  Store
	llm    Completer
	guard  *Guard
	logger *zap.SugaredLogger
}

func NewExchangeService(store Store, completer Completer, logger *zap.SugaredLogger) *ExchangeService {
	return &ExchangeService{
		store:  store,
		llm:    completer,
		guard:  NewGuard(),
		logger: logger,
	}
}

// Exchange appends a user utterance to the conversation, obtains the model's
// reply and persists both turns. Submissions for a conversation that already
// has a request in flight are dropped with ErrConversationBusy. On model
// failure nothing is persisted and no retry is attempted.
func (s *ExchangeService) Exchange(ctx context.Context, userID, conversationID, message string) (*ExchangeResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	if !s.guard.TryAcquire(conversationID) {
		return nil, ErrConversationBusy
	}
	defer s.guard.Release(conversationID)

	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	// Ownership failures look identical to missing conversations.
	if conversation.UserID != userID {
		return nil, ErrConversationNotFound
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}

	prompt := make([]llm.Message, 0, len(history)+2)
	prompt = append(prompt, llm.Message{Role: "system", Content: exchangeSystemPrompt})
	for _, msg := range history {
		prompt = append(prompt, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	prompt = append(prompt, llm.Message{Role: models.RoleUser, Content: message})

	reply, err := s.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: exchangeTemperature,
		MaxTokens:   exchangeMaxTokens,
	})
	if err != nil {
		s.logger.Warnf("turn exchange: completion failed for conversation %s: %v", conversationID, err)
		return nil, err
	}

	if err := s.store.AppendTurnPair(ctx, conversationID, message, reply); err != nil {
		return nil, fmt.Errorf("chat: persist turns: %w", err)
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: reload history: %w", err)
	}

	return &ExchangeResult{Reply: reply, Messages: messages}, nil
}
