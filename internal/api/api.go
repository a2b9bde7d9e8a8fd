package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindmirror-ai/mindmirror/internal/auth"
	"github.com/mindmirror-ai/mindmirror/internal/chat"
	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/models"
)

type conversationStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type exchanger interface {
	Exchange(ctx context.Context, userID, conversationID, message string) (*chat.ExchangeResult, error)
}

type analyzer interface {
	Analyze(ctx context.Context, userID, conversationID string) (*chat.AnalysisResult, error)
	Latest(ctx context.Context, userID, conversationID string) (*models.PatternAnalysis, error)
}

type analysisLister interface {
	ListAnalyses(ctx context.Context, conversationID string) ([]models.PatternAnalysis, error)
}

type Handler struct {
	authService *auth.Service
	store       conversationStore
	exchange    exchanger
	analysis    analyzer
	analyses    analysisLister
	logger      *zap.SugaredLogger
}

func NewHandler(
	authService *auth.Service,
	store conversationStore,
	exchange exchanger,
	analysis analyzer,
	analyses analysisLister,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		authService: authService,
		store:       store,
		exchange:    exchange,
		analysis:    analysis,
		analyses:    analyses,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)
	authGroup.GET("/me", h.requireAuth, h.handleMe)

	protected := apiGroup.Group("", h.requireAuth)
	protected.POST("/conversations", h.handleCreateConversation)
	protected.GET("/conversations", h.handleListConversations)
	protected.GET("/conversations/:id/messages", h.handleListMessages)
	protected.GET("/conversations/:id/analyses", h.handleListAnalyses)
	protected.GET("/conversations/:id/analyses/latest", h.handleLatestAnalysis)
	protected.POST("/chat", h.handleChat)
	protected.POST("/analyze", h.handleAnalyze)
	protected.GET("/chat/ws", h.handleChatWS)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type analyzeRequest struct {
	ConversationID string `json:"conversationId"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameRequired), errors.Is(err, auth.ErrPasswordTooWeak):
			writeError(c, http.StatusBadRequest, err.Error(), err)
		case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrEmailExists):
			writeError(c, http.StatusConflict, err.Error(), err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to register user", err)
		}
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if req.Identifier == "" || req.Password == "" {
		writeError(c, http.StatusBadRequest, "identifier and password are required", auth.ErrInvalidCredentials)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, err.Error(), err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to login", err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h *Handler) handleMe(c *gin.Context) {
	user, err := h.authService.CurrentUser(c.Request.Context(), bearerToken(c))
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid session", err)
		return
	}

	c.JSON(http.StatusOK, newUserJSON(*user))
}

func (h *Handler) handleCreateConversation(c *gin.Context) {
	// The body is optional; an absent title defaults server-side.
	var req createConversationRequest
	_ = c.ShouldBindJSON(&req)

	conversation, err := h.store.CreateConversation(c.Request.Context(), currentUserID(c), req.Title)
	if err != nil {
		h.logger.Warnf("create conversation failed: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to create conversation", err)
		return
	}

	c.JSON(http.StatusCreated, newConversationJSON(*conversation))
}

func (h *Handler) handleListConversations(c *gin.Context) {
	conversations, err := h.store.ListConversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Warnf("list conversations failed: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}

	payload := make([]gin.H, 0, len(conversations))
	for _, conversation := range conversations {
		payload = append(payload, newConversationJSON(conversation))
	}

	c.JSON(http.StatusOK, gin.H{"conversations": payload})
}

func (h *Handler) handleListMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if !h.ownsConversation(c, conversationID) {
		return
	}

	messages, err := h.store.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Warnf("list messages failed: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to list messages", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": newMessagesJSON(messages)})
}

func (h *Handler) handleListAnalyses(c *gin.Context) {
	conversationID := c.Param("id")
	if !h.ownsConversation(c, conversationID) {
		return
	}

	analyses, err := h.analyses.ListAnalyses(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Warnf("list analyses failed: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to list analyses", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"analyses": analyses})
}

func (h *Handler) handleLatestAnalysis(c *gin.Context) {
	analysis, err := h.analysis.Latest(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoAnalysis):
			writeError(c, http.StatusNotFound, "no analysis recorded for this conversation", err)
		case errors.Is(err, chat.ErrConversationNotFound):
			writeError(c, http.StatusNotFound, "conversation not found", err)
		default:
			h.logger.Warnf("load latest analysis failed: %v", err)
			writeError(c, http.StatusInternalServerError, "failed to load analysis", err)
		}
		return
	}

	c.JSON(http.StatusOK, analysis)
}

func (h *Handler) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if req.ConversationID == "" {
		writeError(c, http.StatusBadRequest, "conversationId is required", chat.ErrConversationNotFound)
		return
	}

	result, err := h.exchange.Exchange(c.Request.Context(), currentUserID(c), req.ConversationID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(c, http.StatusBadRequest, "message is required", err)
		case errors.Is(err, chat.ErrConversationBusy):
			writeError(c, http.StatusConflict, "a message is already being processed for this conversation", err)
		case errors.Is(err, chat.ErrConversationNotFound):
			writeError(c, http.StatusNotFound, "conversation not found", err)
		default:
			writeError(c, http.StatusBadGateway, "chat completion failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  result.Reply,
		"messages": newMessagesJSON(result.Messages),
	})
}

type analysisResponse struct {
	models.PatternAnalysis
	Fallback bool `json:"fallback"`
}

func (h *Handler) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if req.ConversationID == "" {
		writeError(c, http.StatusBadRequest, "conversationId is required", chat.ErrConversationNotFound)
		return
	}

	result, err := h.analysis.Analyze(c.Request.Context(), currentUserID(c), req.ConversationID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInsufficientData):
			writeError(c, http.StatusBadRequest, "not enough conversation data for pattern analysis", err)
		case errors.Is(err, chat.ErrConversationNotFound):
			writeError(c, http.StatusNotFound, "conversation not found", err)
		default:
			writeError(c, http.StatusBadGateway, "pattern analysis failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, analysisResponse{PatternAnalysis: result.Analysis, Fallback: result.Fallback})
}

// ownsConversation loads the conversation and verifies the caller owns it.
// It writes the response itself on failure.
func (h *Handler) ownsConversation(c *gin.Context, conversationID string) bool {
	conversation, err := h.store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "conversation not found", err)
			return false
		}
		h.logger.Warnf("load conversation failed: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to load conversation", err)
		return false
	}

	if conversation.UserID != currentUserID(c) {
		writeError(c, http.StatusNotFound, "conversation not found", db.ErrNotFound)
		return false
	}

	return true
}

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"user":      newUserJSON(result.User),
	}
}

func newUserJSON(user models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"createdAt": user.CreatedAt.Format(time.RFC3339),
		"updatedAt": user.UpdatedAt.Format(time.RFC3339),
	}
}

func newConversationJSON(conversation models.Conversation) gin.H {
	return gin.H{
		"id":        conversation.ID,
		"title":     conversation.Title,
		"createdAt": conversation.CreatedAt.Format(time.RFC3339),
		"updatedAt": conversation.UpdatedAt.Format(time.RFC3339),
	}
}

func newMessagesJSON(messages []models.Message) []gin.H {
	payload := make([]gin.H, 0, len(messages))
	for _, msg := range messages {
		payload = append(payload, gin.H{
			"id":        msg.ID,
			"content":   msg.Content,
			"role":      msg.Role,
			"createdAt": msg.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return payload
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
