package repositories

import (
	"context"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// DepositRepository defines read operations over recorded deposit history.
// Writes go through SyncStateRepository so they stay atomic with the mark.
type DepositRepository interface {
	// GetByFilter retrieves deposits matching the filter, newest first
	GetByFilter(ctx context.Context, filter entities.DepositFilter) ([]entities.Deposit, error)

	// GetCount returns the count of deposits matching the filter
	GetCount(ctx context.Context, filter entities.DepositFilter) (int64, error)

	// CountAll returns the number of deposits recorded across all users
	CountAll(ctx context.Context) (int64, error)
}
