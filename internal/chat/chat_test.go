package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/llm"
	"github.com/mindmirror-ai/mindmirror/internal/models"
)

// fakeStore is an in-memory chat.Store mirroring the ordering behaviour of
// the Postgres implementation.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	appendErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (f *fakeStore) addConversation(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	now := time.Now().UTC()
	f.conversations[id] = models.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     fmt.Sprintf("Conversation %d", len(f.conversations)+1),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id
}

func (f *fakeStore) seedTurns(conversationID string, contents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := time.Now().UTC().Add(-time.Minute)
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		f.messages[conversationID] = append(f.messages[conversationID], models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Content:        content,
			Role:           role,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &conversation, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeStore) AppendTurnPair(ctx context.Context, conversationID, userContent, assistantContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return f.appendErr
	}

	now := time.Now().UTC()
	f.messages[conversationID] = append(f.messages[conversationID],
		models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Content:        userContent,
			Role:           models.RoleUser,
			CreatedAt:      now,
		},
		models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Content:        assistantContent,
			Role:           models.RoleAssistant,
			CreatedAt:      now.Add(time.Microsecond),
		},
	)
	return nil
}

// fakeCompleter records prompts and serves canned replies.
type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	prompts [][]llm.Message
	opts    []llm.CompletionOptions
	fn      func(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, append([]llm.Message(nil), messages...))
	f.opts = append(f.opts, opts)
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, opts)
	}
	return "ok", nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalysisStore struct {
	mu        sync.Mutex
	inserted  []models.PatternAnalysis
	insertErr error
	listCalls int
}

func (f *fakeAnalysisStore) InsertAnalysis(ctx context.Context, analysis *models.PatternAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, *analysis)
	return nil
}

// ListAnalyses returns inserted records newest first, mirroring the Mongo
// implementation's sort.
func (f *fakeAnalysisStore) ListAnalyses(ctx context.Context, conversationID string) ([]models.PatternAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	records := make([]models.PatternAnalysis, 0)
	for _, analysis := range f.inserted {
		if analysis.ConversationID == conversationID {
			records = append(records, analysis)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

type fakeCache struct {
	mu     sync.Mutex
	stored []models.PatternAnalysis
	err    error
}

func (f *fakeCache) SetLatestAnalysis(ctx context.Context, analysis *models.PatternAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, *analysis)
	return nil
}

func (f *fakeCache) LatestAnalysis(ctx context.Context, conversationID string) (*models.PatternAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	for i := len(f.stored) - 1; i >= 0; i-- {
		if f.stored[i].ConversationID == conversationID {
			cached := f.stored[i]
			return &cached, nil
		}
	}
	return nil, db.ErrNotFound
}
