package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mindmirror-ai/mindmirror/internal/models"
	"github.com/mindmirror-ai/mindmirror/internal/utils"
)

// Mongo archives pattern-analysis records. Analyses are document shaped
// (nested category lists) and append-only, so they live in a collection
// rather than in the relational store.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
	Analyses *mongo.Collection
}

func NewMongo(ctx context.Context, cfg utils.MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	database := client.Database(cfg.Database)
	store := &Mongo{
		Client:   client,
		Database: database,
		Analyses: database.Collection("pattern_analyses"),
	}

	return store, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Disconnect(ctx)
}

func (m *Mongo) EnsureCollections(ctx context.Context) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.Analyses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure analysis index: %w", err)
	}

	return nil
}

// InsertAnalysis stores one pattern-analysis record. Records are never
// updated or deleted; repeated analyses of a conversation accumulate.
func (m *Mongo) InsertAnalysis(ctx context.Context, analysis *models.PatternAnalysis) error {
	if m == nil || m.Analyses == nil {
		return fmt.Errorf("mongo: analyses collection not initialised")
	}

	if _, err := m.Analyses.InsertOne(ctx, analysis); err != nil {
		return fmt.Errorf("mongo: insert analysis: %w", err)
	}

	return nil
}

// ListAnalyses returns a conversation's stored analyses, newest first.
func (m *Mongo) ListAnalyses(ctx context.Context, conversationID string) ([]models.PatternAnalysis, error) {
	if m == nil || m.Analyses == nil {
		return nil, fmt.Errorf("mongo: analyses collection not initialised")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.Analyses.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list analyses: %w", err)
	}
	defer cursor.Close(ctx)

	analyses := make([]models.PatternAnalysis, 0)
	if err := cursor.All(ctx, &analyses); err != nil {
		return nil, fmt.Errorf("mongo: decode analyses: %w", err)
	}

	return analyses, nil
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
