package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/mindmirror-ai/mindmirror/internal/models"
)

// MemoryStore is an in-memory UserStore used by tests and local tooling.
type MemoryStore struct {
	mu           sync.RWMutex
	usersByID    map[string]*models.User
	usersByName  map[string]*models.User
	usersByEmail map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByID:    make(map[string]*models.User),
		usersByName:  make(map[string]*models.User),
		usersByEmail: make(map[string]*models.User),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	_ = ctx

	usernameKey := strings.ToLower(user.Username)
	emailKey := normalizeEmail(user.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByName[usernameKey]; exists {
		return ErrUserExists
	}
	if emailKey != "" {
		if _, exists := m.usersByEmail[emailKey]; exists {
			return ErrEmailExists
		}
	}

	stored := *user
	m.usersByID[user.ID] = &stored
	m.usersByName[usernameKey] = &stored
	if emailKey != "" {
		m.usersByEmail[emailKey] = &stored
	}

	return nil
}

func (m *MemoryStore) UserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.usersByName[strings.ToLower(identifier)]; ok {
		copied := *user
		return &copied, nil
	}
	if user, ok := m.usersByEmail[normalizeEmail(identifier)]; ok {
		copied := *user
		return &copied, nil
	}

	return nil, ErrUserNotFound
}

func (m *MemoryStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.usersByID[id]; ok {
		copied := *user
		return &copied, nil
	}

	return nil, ErrUserNotFound
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
