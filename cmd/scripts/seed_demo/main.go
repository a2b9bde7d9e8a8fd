package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/utils"
)

// Seeds a demo account with one conversation that already has enough turns
// for a pattern-analysis request.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: failed to connect: %v", err)
	}
	defer postgres.Close()

	if err := postgres.EnsureSchema(ctx); err != nil {
		log.Fatalf("postgres: ensure schema: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	userID := uuid.NewString()
	now := time.Now().UTC()

	const insertUser = `INSERT INTO users (id, username, email, password, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (username) DO NOTHING`
	if _, err := postgres.Pool.Exec(ctx, insertUser, userID, "demo", "demo@example.com", string(hash), now); err != nil {
		log.Fatalf("insert demo user: %v", err)
	}

	if err := postgres.Pool.QueryRow(ctx, `SELECT id FROM users WHERE username = 'demo'`).Scan(&userID); err != nil {
		log.Fatalf("load demo user: %v", err)
	}

	store := db.NewConversationStore(postgres.Pool)
	conversation, err := store.CreateConversation(ctx, userID, "")
	if err != nil {
		log.Fatalf("create conversation: %v", err)
	}

	turns := [][2]string{
		{"I keep avoiding conflict at work", "What do you think makes those moments feel unsafe?"},
		{"I always say yes even when I'm overloaded", "It sounds like saying no carries a cost for you. What would happen if you tried?"},
	}
	for _, pair := range turns {
		if err := store.AppendTurnPair(ctx, conversation.ID, pair[0], pair[1]); err != nil {
			log.Fatalf("seed turns: %v", err)
		}
	}

	log.Printf("seeded demo user %s with conversation %s (%q)", userID, conversation.ID, conversation.Title)
}
