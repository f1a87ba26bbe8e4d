package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
)

// Ensure TokenRepo implements TokenRepository
var _ repositories.TokenRepository = (*TokenRepo)(nil)

// TokenRepo implements TokenRepository using PostgreSQL
type TokenRepo struct {
	db *sqlx.DB
}

// NewTokenRepo creates a new token repository
func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// ListByUser retrieves all tokens a user monitors
func (r *TokenRepo) ListByUser(ctx context.Context, userID int64) ([]entities.MonitoredToken, error) {
	var tokens []entities.MonitoredToken
	query := `
		SELECT user_id, token_address, token_symbol, created_at
		FROM monitored_tokens
		WHERE user_id = $1
		ORDER BY created_at, token_address
	`

	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get monitored tokens: %w", err)
	}

	return tokens, nil
}

// Add creates or updates a monitored token. A nil symbol keeps the stored one.
func (r *TokenRepo) Add(ctx context.Context, token *entities.MonitoredToken) error {
	query := `
		INSERT INTO monitored_tokens (user_id, token_address, token_symbol)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token_address) DO UPDATE SET
			token_symbol = COALESCE(EXCLUDED.token_symbol, monitored_tokens.token_symbol)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.UserID,
		token.TokenAddress,
		token.TokenSymbol,
	)
	if err != nil {
		return fmt.Errorf("failed to add monitored token: %w", err)
	}

	return nil
}

// Remove stops monitoring a single token
func (r *TokenRepo) Remove(ctx context.Context, userID int64, tokenAddress string) (bool, error) {
	query := `DELETE FROM monitored_tokens WHERE user_id = $1 AND token_address = $2`

	result, err := r.db.ExecContext(ctx, query, userID, tokenAddress)
	if err != nil {
		return false, fmt.Errorf("failed to remove monitored token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// RemoveAll stops monitoring every token of a user
func (r *TokenRepo) RemoveAll(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM monitored_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove monitored tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
