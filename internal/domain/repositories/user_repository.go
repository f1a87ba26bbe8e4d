package repositories

import (
	"context"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// Create registers a user; returns false if the user already existed
	Create(ctx context.Context, userID int64) (bool, error)

	// GetByID retrieves a user, or nil if not found
	GetByID(ctx context.Context, userID int64) (*entities.User, error)

	// SetWallet stores the (already normalised) wallet address, creating the user if needed
	SetWallet(ctx context.Context, userID int64, walletAddress string) error

	// ListPollable returns every user with a wallet set
	ListPollable(ctx context.Context) ([]entities.User, error)

	// Delete removes the user together with tokens, deposits and sync state
	Delete(ctx context.Context, userID int64) error

	// Count returns the number of registered users
	Count(ctx context.Context) (int64, error)
}
