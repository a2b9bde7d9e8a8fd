package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindmirror-ai/mindmirror/internal/auth"
	"github.com/mindmirror-ai/mindmirror/internal/chat"
	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/models"
)

type stubConversationStore struct {
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
}

func newStubConversationStore() *stubConversationStore {
	return &stubConversationStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (s *stubConversationStore) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	if title == "" {
		title = "Conversation 1"
	}
	conversation := models.Conversation{
		ID:        "conv-1",
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.conversations[conversation.ID] = conversation
	return &conversation, nil
}

func (s *stubConversationStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	result := make([]models.Conversation, 0)
	for _, conversation := range s.conversations {
		if conversation.UserID == userID {
			result = append(result, conversation)
		}
	}
	return result, nil
}

func (s *stubConversationStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &conversation, nil
}

func (s *stubConversationStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.messages[conversationID], nil
}

type stubExchanger struct {
	result *chat.ExchangeResult
	err    error
	calls  int
}

func (s *stubExchanger) Exchange(ctx context.Context, userID, conversationID, message string) (*chat.ExchangeResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubAnalyzer struct {
	result    *chat.AnalysisResult
	err       error
	latest    *models.PatternAnalysis
	latestErr error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, userID, conversationID string) (*chat.AnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubAnalyzer) Latest(ctx context.Context, userID, conversationID string) (*models.PatternAnalysis, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.latest, nil
}

type stubAnalysisLister struct {
	analyses []models.PatternAnalysis
}

func (s *stubAnalysisLister) ListAnalyses(ctx context.Context, conversationID string) ([]models.PatternAnalysis, error) {
	return s.analyses, nil
}

type testFixture struct {
	router   *gin.Engine
	store    *stubConversationStore
	exchange *stubExchanger
	analyzer *stubAnalyzer
	lister   *stubAnalysisLister
}

func setupTestRouter(t *testing.T) *testFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authService, err := auth.NewService("test-secret", time.Hour, auth.NewMemoryStore())
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	fixture := &testFixture{
		store:    newStubConversationStore(),
		exchange: &stubExchanger{},
		analyzer: &stubAnalyzer{},
		lister:   &stubAnalysisLister{},
	}

	handler := NewHandler(authService, fixture.store, fixture.exchange, fixture.analyzer, fixture.lister, zap.NewNop().Sugar())
	router := gin.New()
	handler.RegisterRoutes(router)
	fixture.router = router

	return fixture
}

func registerAndLogin(t *testing.T, fixture *testFixture) (token, userID string) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret123",
	})
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp.Token == "" {
		t.Fatalf("expected token in registration response")
	}

	return resp.Token, resp.User.ID
}

func TestAuthRegisterLoginAndMe(t *testing.T) {
	fixture := setupTestRouter(t)
	token, userID := registerAndLogin(t, fixture)

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "alice",
		"password":   "secret123",
	})
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for /me, got %d", rec.Code)
	}

	var me map[string]any
	decodeBody(t, rec.Body.Bytes(), &me)
	if me["id"] != userID {
		t.Fatalf("expected current user %s, got %v", userID, me["id"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	fixture := setupTestRouter(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/chat"},
		{http.MethodPost, "/api/analyze"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodGet, "/api/auth/me"},
	} {
		rec := httptest.NewRecorder()
		req := newJSONRequest(t, route.method, route.path, map[string]string{})
		fixture.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s %s without token, got %d", route.method, route.path, rec.Code)
		}
	}
}

func TestChatEndpoint(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	fixture.exchange.result = &chat.ExchangeResult{
		Reply: "Tell me more about that.",
		Messages: []models.Message{
			{ID: "m1", Content: "I feel stuck", Role: models.RoleUser, CreatedAt: time.Now().UTC()},
			{ID: "m2", Content: "Tell me more about that.", Role: models.RoleAssistant, CreatedAt: time.Now().UTC()},
		},
	}

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]string{
		"message":        "I feel stuck",
		"conversationId": "conv-1",
	})
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message  string           `json:"message"`
		Messages []map[string]any `json:"messages"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp.Message != "Tell me more about that." {
		t.Fatalf("unexpected reply %q", resp.Message)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected 2 messages in response, got %d", len(resp.Messages))
	}
}

func TestChatEndpointErrorMapping(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	cases := []struct {
		err  error
		want int
	}{
		{chat.ErrEmptyMessage, http.StatusBadRequest},
		{chat.ErrConversationBusy, http.StatusConflict},
		{chat.ErrConversationNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusBadGateway},
	}

	for _, tc := range cases {
		fixture.exchange.err = tc.err

		rec := httptest.NewRecorder()
		req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]string{
			"message":        "hello",
			"conversationId": "conv-1",
		})
		req.Header.Set("Authorization", "Bearer "+token)
		fixture.router.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("expected status %d for %v, got %d", tc.want, tc.err, rec.Code)
		}
	}
}

func TestChatEndpointRequiresConversationID(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]string{"message": "hello"})
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without conversationId, got %d", rec.Code)
	}
	if fixture.exchange.calls != 0 {
		t.Fatalf("expected exchange not to be invoked")
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	fixture.analyzer.result = &chat.AnalysisResult{
		Analysis: models.PatternAnalysis{
			ID:             "a1",
			ConversationID: "conv-1",
			Patterns: models.PatternGroups{
				Emotional:    []string{"anxiety"},
				Behavioral:   []string{"avoidance"},
				Thinking:     []string{"rumination"},
				Relationship: []string{"people pleasing"},
				Themes:       []string{"conflict"},
			},
			Insights:        "insight",
			Recommendations: "recommendation",
			CreatedAt:       time.Now().UTC(),
		},
		Fallback: false,
	}

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/analyze", map[string]string{"conversationId": "conv-1"})
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Patterns models.PatternGroups `json:"patterns"`
		Fallback bool                 `json:"fallback"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp.Fallback {
		t.Fatalf("expected parsed variant in response")
	}
	if len(resp.Patterns.Themes) != 1 {
		t.Fatalf("expected themes in response, got %+v", resp.Patterns)
	}
}

func TestAnalyzeEndpointInsufficientData(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	fixture.analyzer.err = chat.ErrInsufficientData

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/analyze", map[string]string{"conversationId": "conv-1"})
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient data, got %d", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp["error"] != "not enough conversation data for pattern analysis" {
		t.Fatalf("unexpected error message %v", resp["error"])
	}
}

func TestLatestAnalysisEndpoint(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	fixture.analyzer.latest = &models.PatternAnalysis{
		ID:             "a1",
		ConversationID: "conv-1",
		Insights:       "latest insight",
		CreatedAt:      time.Now().UTC(),
	}

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodGet, "/api/conversations/conv-1/analyses/latest", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.PatternAnalysis
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp.ID != "a1" || resp.Insights != "latest insight" {
		t.Fatalf("unexpected analysis in response: %+v", resp)
	}
}

func TestLatestAnalysisEndpointNotFound(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	cases := []struct {
		err  error
		want int
	}{
		{chat.ErrNoAnalysis, http.StatusNotFound},
		{chat.ErrConversationNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		fixture.analyzer.latestErr = tc.err

		rec := httptest.NewRecorder()
		req := newJSONRequest(t, http.MethodGet, "/api/conversations/conv-1/analyses/latest", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		fixture.router.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("expected status %d for %v, got %d", tc.want, tc.err, rec.Code)
		}
	}
}

func TestConversationLifecycle(t *testing.T) {
	fixture := setupTestRouter(t)
	token, _ := registerAndLogin(t, fixture)

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/conversations", map[string]string{})
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created map[string]any
	decodeBody(t, rec.Body.Bytes(), &created)
	if created["title"] != "Conversation 1" {
		t.Fatalf("expected default ordinal title, got %v", created["title"])
	}

	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var listed struct {
		Conversations []map[string]any `json:"conversations"`
	}
	decodeBody(t, rec.Body.Bytes(), &listed)
	if len(listed.Conversations) != 1 {
		t.Fatalf("expected one conversation, got %d", len(listed.Conversations))
	}

	// Messages of someone else's conversation look missing.
	fixture.store.conversations["foreign"] = models.Conversation{ID: "foreign", UserID: "someone-else"}
	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodGet, "/api/conversations/foreign/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign conversation, got %d", rec.Code)
	}
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
