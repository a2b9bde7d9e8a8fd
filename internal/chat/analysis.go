package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/llm"
	"github.com/mindmirror-ai/mindmirror/internal/models"
)

const (
	analysisTemperature = 0.3
	analysisMaxTokens   = 1500

	// An analysis needs at least two full turn exchanges to work with.
	minTurnsForAnalysis = 4

	fallbackInsightLimit = 500
)

// ErrInsufficientData is returned when a conversation has too few turns to
// analyse. Nothing is persisted in that case.
var ErrInsufficientData = errors.New("chat: not enough conversation data for pattern analysis")

// ErrNoAnalysis is returned when a conversation has never been analysed.
var ErrNoAnalysis = errors.New("chat: no analysis recorded for conversation")

var fallbackPatterns = models.PatternGroups{
	Emotional:    []string{"Complex emotional responses detected"},
	Behavioral:   []string{"Various behavioral patterns observed"},
	Thinking:     []string{"Unique thinking patterns identified"},
	Relationship: []string{"Interpersonal dynamics noted"},
	Themes:       []string{"Multiple themes present in conversation"},
}

const fallbackRecommendation = "Continue exploring these patterns through self-reflection and awareness."

// AnalysisStore persists finished analysis records and reads them back
// newest first.
type AnalysisStore interface {
	InsertAnalysis(ctx context.Context, analysis *models.PatternAnalysis) error
	ListAnalyses(ctx context.Context, conversationID string) ([]models.PatternAnalysis, error)
}

// AnalysisCache keeps the latest record per conversation; write failures are
// logged, never surfaced, and a miss reports db.ErrNotFound.
type AnalysisCache interface {
	SetLatestAnalysis(ctx context.Context, analysis *models.PatternAnalysis) error
	LatestAnalysis(ctx context.Context, conversationID string) (*models.PatternAnalysis, error)
}

// AnalysisResult reports the stored record and whether it came from the
// model's structured reply or from the local fallback.
type AnalysisResult struct {
	Analysis models.PatternAnalysis
	Fallback bool
}

// AnalysisService turns a whole conversation into one pattern-analysis
// record via a single model call.
type AnalysisService struct {
	store    Store
	analyses AnalysisStore
	llm      Completer
	cache    AnalysisCache
	logger   *zap.SugaredLogger
}

func NewAnalysisService(store Store, analyses AnalysisStore, completer Completer, cache AnalysisCache, logger *zap.SugaredLogger) *AnalysisService {
	return &AnalysisService{
		store:    store,
		analyses: analyses,
		llm:      completer,
		cache:    cache,
		logger:   logger,
	}
}

// Analyze flattens the conversation into a labeled transcript, asks the
// analyst model for the structured record, and persists the parsed record or
// the canned fallback. A reply the model produced in the wrong shape is
// recovered locally and never reported as an error; a model-endpoint failure
// is reported and persists nothing.
func (s *AnalysisService) Analyze(ctx context.Context, userID, conversationID string) (*AnalysisResult, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if conversation.UserID != userID {
		return nil, ErrConversationNotFound
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}

	if len(messages) < minTurnsForAnalysis {
		return nil, ErrInsufficientData
	}

	prompt := []llm.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: models.RoleUser, Content: analysisUserPrefix + buildTranscript(messages)},
	}

	raw, err := s.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		s.logger.Warnf("pattern analysis: completion failed for conversation %s: %v", conversationID, err)
		return nil, err
	}

	analysis := models.PatternAnalysis{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
	}

	payload, ok := parseAnalysis(raw)
	if ok {
		analysis.Patterns = payload.Patterns
		analysis.Insights = payload.Insights
		analysis.Recommendations = payload.Recommendations
	} else {
		s.logger.Infof("pattern analysis: unstructured reply for conversation %s, using fallback", conversationID)
		analysis.Patterns = fallbackPatterns
		analysis.Insights = truncateRunes(raw, fallbackInsightLimit) + "..."
		analysis.Recommendations = fallbackRecommendation
	}

	if err := s.analyses.InsertAnalysis(ctx, &analysis); err != nil {
		return nil, fmt.Errorf("chat: persist analysis: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetLatestAnalysis(ctx, &analysis); err != nil {
			s.logger.Warnf("pattern analysis: cache update failed for conversation %s: %v", conversationID, err)
		}
	}

	return &AnalysisResult{Analysis: analysis, Fallback: !ok}, nil
}

// Latest returns the conversation's most recent analysis record. The Redis
// cache is consulted first; on a miss the archive is read and the cache
// repopulated best effort.
func (s *AnalysisService) Latest(ctx context.Context, userID, conversationID string) (*models.PatternAnalysis, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if conversation.UserID != userID {
		return nil, ErrConversationNotFound
	}

	if s.cache != nil {
		cached, err := s.cache.LatestAnalysis(ctx, conversationID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warnf("pattern analysis: cache read failed for conversation %s: %v", conversationID, err)
		}
	}

	records, err := s.analyses.ListAnalyses(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: load analyses: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoAnalysis
	}

	latest := records[0]
	if s.cache != nil {
		if err := s.cache.SetLatestAnalysis(ctx, &latest); err != nil {
			s.logger.Warnf("pattern analysis: cache repopulate failed for conversation %s: %v", conversationID, err)
		}
	}

	return &latest, nil
}

type analysisPayload struct {
	Patterns        models.PatternGroups `json:"patterns"`
	Insights        string               `json:"insights"`
	Recommendations string               `json:"recommendations"`
}

// parseAnalysis interprets the model reply as the required structured shape.
// A reply that is not valid JSON, or that carries no pattern lists at all,
// does not count as structured.
func parseAnalysis(raw string) (analysisPayload, bool) {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return analysisPayload{}, false
	}
	if payload.Patterns.Empty() {
		return analysisPayload{}, false
	}
	return payload, true
}

func truncateRunes(input string, max int) string {
	if max <= 0 || utf8.RuneCountInString(input) <= max {
		return input
	}

	count := 0
	for i := range input {
		if count == max {
			return input[:i]
		}
		count++
	}
	return input
}
