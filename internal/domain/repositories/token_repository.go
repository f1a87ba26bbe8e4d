package repositories

import (
	"context"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// TokenRepository defines the interface for monitored token operations
type TokenRepository interface {
	// ListByUser retrieves every token a user monitors
	ListByUser(ctx context.Context, userID int64) ([]entities.MonitoredToken, error)

	// Add creates or updates a monitored token
	Add(ctx context.Context, token *entities.MonitoredToken) error

	// Remove deletes a single monitored token; returns false if it was not monitored
	Remove(ctx context.Context, userID int64, tokenAddress string) (bool, error)

	// RemoveAll deletes every monitored token of a user and returns how many were removed
	RemoveAll(ctx context.Context, userID int64) (int64, error)
}
