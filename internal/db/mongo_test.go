package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindmirror-ai/mindmirror/internal/models"
	"github.com/mindmirror-ai/mindmirror/internal/utils"
)

// Integration tests against a real MongoDB. Set TEST_MONGO_URI to run,
// e.g. mongodb://localhost:27017
func newTestMongo(t *testing.T) *Mongo {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping Mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewMongo(ctx, utils.MongoConfig{
		URI:            uri,
		Database:       "mindmirror_test",
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to connect to test mongo: %v", err)
	}
	if err := store.EnsureCollections(ctx); err != nil {
		t.Fatalf("failed to ensure collections: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		_ = store.Analyses.Drop(cleanupCtx)
		_ = store.Close(cleanupCtx)
	})

	return store
}

func TestAnalysisArchiveRoundTrip(t *testing.T) {
	store := newTestMongo(t)
	ctx := context.Background()

	conversationID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := &models.PatternAnalysis{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Patterns: models.PatternGroups{
			Emotional: []string{"anxiety"},
			Themes:    []string{"conflict avoidance"},
		},
		Insights:        "first pass",
		Recommendations: "keep journaling",
		CreatedAt:       base.Add(-time.Hour),
	}
	newer := &models.PatternAnalysis{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Patterns: models.PatternGroups{
			Behavioral: []string{"over-committing"},
		},
		Insights:        "second pass",
		Recommendations: "practice refusals",
		CreatedAt:       base,
	}

	for _, analysis := range []*models.PatternAnalysis{older, newer} {
		if err := store.InsertAnalysis(ctx, analysis); err != nil {
			t.Fatalf("InsertAnalysis returned error: %v", err)
		}
	}

	// A record bound to another conversation must not leak into the listing.
	other := &models.PatternAnalysis{
		ID:             uuid.NewString(),
		ConversationID: uuid.NewString(),
		Insights:       "unrelated",
		CreatedAt:      base,
	}
	if err := store.InsertAnalysis(ctx, other); err != nil {
		t.Fatalf("InsertAnalysis returned error: %v", err)
	}

	analyses, err := store.ListAnalyses(ctx, conversationID)
	if err != nil {
		t.Fatalf("ListAnalyses returned error: %v", err)
	}
	if len(analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(analyses))
	}
	if analyses[0].ID != newer.ID || analyses[1].ID != older.ID {
		t.Fatalf("expected newest-first ordering, got %s then %s", analyses[0].ID, analyses[1].ID)
	}
	if analyses[0].Insights != "second pass" || len(analyses[0].Patterns.Behavioral) != 1 {
		t.Fatalf("analysis content did not survive round trip: %+v", analyses[0])
	}
}

func TestListAnalysesEmptyConversation(t *testing.T) {
	store := newTestMongo(t)

	analyses, err := store.ListAnalyses(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("ListAnalyses returned error: %v", err)
	}
	if len(analyses) != 0 {
		t.Fatalf("expected empty result, got %d", len(analyses))
	}
}
