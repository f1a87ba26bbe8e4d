package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
)

// Ensure DepositRepo implements DepositRepository
var _ repositories.DepositRepository = (*DepositRepo)(nil)

// DepositRepo implements DepositRepository using PostgreSQL
type DepositRepo struct {
	db *sqlx.DB
}

// NewDepositRepo creates a new deposit repository
func NewDepositRepo(db *sqlx.DB) *DepositRepo {
	return &DepositRepo{db: db}
}

// GetByFilter retrieves deposits matching the given filter
func (r *DepositRepo) GetByFilter(ctx context.Context, filter entities.DepositFilter) ([]entities.Deposit, error) {
	query, args := r.buildFilterQuery(filter, false)

	var deposits []entities.Deposit
	if err := r.db.SelectContext(ctx, &deposits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get deposits: %w", err)
	}

	return deposits, nil
}

// GetCount returns the count of deposits matching the filter
func (r *DepositRepo) GetCount(ctx context.Context, filter entities.DepositFilter) (int64, error) {
	query, args := r.buildFilterQuery(filter, true)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to get deposit count: %w", err)
	}

	return count, nil
}

// CountAll returns the number of deposits across all users
func (r *DepositRepo) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM deposits`); err != nil {
		return 0, fmt.Errorf("failed to count deposits: %w", err)
	}
	return count, nil
}

// buildFilterQuery builds the SQL query for filtering deposits
func (r *DepositRepo) buildFilterQuery(filter entities.DepositFilter, countOnly bool) (string, []interface{}) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.TokenAddress != nil {
		conditions = append(conditions, fmt.Sprintf("token_address = $%d", argIdx))
		args = append(args, *filter.TokenAddress)
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	if countOnly {
		return fmt.Sprintf("SELECT COUNT(*) FROM deposits %s", whereClause), args
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, tx_hash, token_address, token_symbol, amount,
			   amount_formatted, block_timestamp, from_address, created_at
		FROM deposits
		%s
		ORDER BY block_timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIdx, argIdx+1)

	args = append(args, filter.Limit, filter.Offset)

	return query, args
}
