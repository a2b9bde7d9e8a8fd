package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindmirror-ai/mindmirror/internal/models"
	"github.com/mindmirror-ai/mindmirror/internal/utils"
)

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// AnalysisCache keeps the most recent pattern analysis per conversation in
// Redis. It is best effort: callers log cache errors and move on.
type AnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnalysisCache(client *redis.Client, cfg utils.RedisConfig) *AnalysisCache {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AnalysisCache{client: client, ttl: ttl}
}

func analysisKey(conversationID string) string {
	return "analysis:latest:" + conversationID
}

func (c *AnalysisCache) SetLatestAnalysis(ctx context.Context, analysis *models.PatternAnalysis) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("redis: marshal analysis: %w", err)
	}

	if err := c.client.Set(ctx, analysisKey(analysis.ConversationID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set analysis: %w", err)
	}

	return nil
}

// LatestAnalysis returns the cached analysis for a conversation, or
// ErrNotFound when the key is absent or expired.
func (c *AnalysisCache) LatestAnalysis(ctx context.Context, conversationID string) (*models.PatternAnalysis, error) {
	if c == nil || c.client == nil {
		return nil, ErrNotFound
	}

	payload, err := c.client.Get(ctx, analysisKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis: get analysis: %w", err)
	}

	var analysis models.PatternAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, fmt.Errorf("redis: decode analysis: %w", err)
	}

	return &analysis, nil
}
