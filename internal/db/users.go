package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmirror-ai/mindmirror/internal/auth"
	"github.com/mindmirror-ai/mindmirror/internal/models"
)

// UserStore persists user accounts in Postgres. It satisfies auth.UserStore.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	if s == nil || s.pool == nil {
		return errors.New("db: user store not initialised")
	}

	const query = `INSERT INTO users (id, username, email, password, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == "users_email_key" {
				return auth.ErrEmailExists
			}
			return auth.ErrUserExists
		}
		return fmt.Errorf("db: insert user: %w", err)
	}

	return nil
}

// UserByIdentifier looks a user up by username or email, case-insensitively.
func (s *UserStore) UserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("db: user store not initialised")
	}

	const query = `SELECT id, username, COALESCE(email, ''), password, created_at, updated_at
FROM users
WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)`

	return s.scanUser(s.pool.QueryRow(ctx, query, identifier))
}

func (s *UserStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("db: user store not initialised")
	}

	const query = `SELECT id, username, COALESCE(email, ''), password, created_at, updated_at
FROM users
WHERE id = $1`

	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *UserStore) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("db: query user: %w", err)
	}

	return &user, nil
}
