package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
)

// Ensure UserRepo implements UserRepository
var _ repositories.UserRepository = (*UserRepo)(nil)

// UserRepo implements UserRepository using PostgreSQL
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create registers a user if not already present
func (r *UserRepo) Create(ctx context.Context, userID int64) (bool, error) {
	query := `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// GetByID retrieves a user by id
func (r *UserRepo) GetByID(ctx context.Context, userID int64) (*entities.User, error) {
	var user entities.User
	query := `SELECT user_id, wallet_address, created_at, updated_at FROM users WHERE user_id = $1`

	if err := r.db.GetContext(ctx, &user, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SetWallet creates or updates the user's wallet address
func (r *UserRepo) SetWallet(ctx context.Context, userID int64, walletAddress string) error {
	query := `
		INSERT INTO users (user_id, wallet_address)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, userID, walletAddress); err != nil {
		return fmt.Errorf("failed to set wallet: %w", err)
	}

	return nil
}

// ListPollable returns users that have a wallet configured
func (r *UserRepo) ListPollable(ctx context.Context) ([]entities.User, error) {
	var users []entities.User
	query := `
		SELECT user_id, wallet_address, created_at, updated_at
		FROM users
		WHERE wallet_address IS NOT NULL AND wallet_address <> ''
		ORDER BY user_id
	`

	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list pollable users: %w", err)
	}

	return users, nil
}

// Delete removes a user; tokens, deposits and sync state cascade
func (r *UserRepo) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Count returns the number of registered users
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
