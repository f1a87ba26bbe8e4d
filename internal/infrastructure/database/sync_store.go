package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
)

// pqUniqueViolation is the SQLSTATE for unique_violation
const pqUniqueViolation = "23505"

var (
	_ repositories.SyncStateRepository = (*SyncStore)(nil)
	_ repositories.SyncTx              = (*syncTx)(nil)
)

// SyncStore keeps the per-user mark and recorded deposits in PostgreSQL
type SyncStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSyncStore creates a new sync state store
func NewSyncStore(db *sqlx.DB, logger *zap.Logger) *SyncStore {
	return &SyncStore{
		db:     db,
		logger: logger,
	}
}

// LoadLastTimestamp returns the user's mark, or nil if never set or reset
func (s *SyncStore) LoadLastTimestamp(ctx context.Context, userID int64) (*string, error) {
	return loadLastTimestamp(ctx, s.db, userID)
}

// RecordNewDeposits inserts deposits and advances the mark in one transaction
func (s *SyncStore) RecordNewDeposits(ctx context.Context, userID int64, deposits []entities.Deposit, newLastTimestamp string) ([]entities.Deposit, error) {
	var inserted []entities.Deposit
	err := s.WithinTx(ctx, func(tx repositories.SyncTx) error {
		var err error
		inserted, err = tx.RecordNewDeposits(ctx, userID, deposits, newLastTimestamp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// Reset clears the mark; recorded deposits stay
func (s *SyncStore) Reset(ctx context.Context, userID int64) error {
	query := `
		UPDATE sync_state SET
			last_timestamp = NULL,
			updated_at = NOW()
		WHERE user_id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return storageErr("reset sync state", err)
	}

	return nil
}

// WithinTx runs fn in a read-committed transaction, rolling back if fn fails
func (s *SyncStore) WithinTx(ctx context.Context, fn func(tx repositories.SyncTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&syncTx{q: tx, logger: s.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}

	return nil
}

// syncTx implements SyncTx on top of an open transaction
type syncTx struct {
	q      sqlx.ExtContext
	logger *zap.Logger
}

func (t *syncTx) LoadLastTimestamp(ctx context.Context, userID int64) (*string, error) {
	return loadLastTimestamp(ctx, t.q, userID)
}

func (t *syncTx) ExistingKeys(ctx context.Context, userID int64, keys []entities.DedupKey) (map[entities.DedupKey]struct{}, error) {
	existing := make(map[entities.DedupKey]struct{})
	if len(keys) == 0 {
		return existing, nil
	}

	hashes := make([]string, 0, len(keys))
	wanted := make(map[entities.DedupKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := wanted[k]; !ok {
			hashes = append(hashes, k.TxHash)
		}
		wanted[k] = struct{}{}
	}

	query := `
		SELECT tx_hash, token_address
		FROM deposits
		WHERE user_id = $1 AND tx_hash = ANY($2)
	`

	var rows []struct {
		TxHash       string `db:"tx_hash"`
		TokenAddress string `db:"token_address"`
	}
	if err := sqlx.SelectContext(ctx, t.q, &rows, query, userID, pq.Array(hashes)); err != nil {
		return nil, storageErr("load recorded deposits", err)
	}

	for _, row := range rows {
		k := entities.DedupKey{TxHash: row.TxHash, TokenAddress: row.TokenAddress}
		if _, ok := wanted[k]; ok {
			existing[k] = struct{}{}
		}
	}

	return existing, nil
}

func (t *syncTx) RecordNewDeposits(ctx context.Context, userID int64, deposits []entities.Deposit, newLastTimestamp string) ([]entities.Deposit, error) {
	query := `
		INSERT INTO deposits (user_id, tx_hash, token_address, token_symbol, amount,
							  amount_formatted, block_timestamp, from_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, tx_hash, token_address) DO NOTHING
		RETURNING id, created_at
	`

	inserted := make([]entities.Deposit, 0, len(deposits))
	for _, d := range deposits {
		d.UserID = userID
		err := t.q.QueryRowxContext(ctx, query,
			userID,
			d.TxHash,
			d.TokenAddress,
			d.TokenSymbol,
			d.AmountRaw,
			d.AmountFormatted,
			d.BlockTimestamp,
			d.FromAddress,
		).Scan(&d.ID, &d.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			// Committed by a concurrent sync after our ExistingKeys read
			t.logger.Debug("Deposit already recorded",
				zap.Int64("user_id", userID),
				zap.String("tx_hash", d.TxHash),
				zap.String("token_address", d.TokenAddress),
			)
			continue
		}
		if err != nil {
			return nil, storageErr("insert deposit", err)
		}
		inserted = append(inserted, d)
	}

	if newLastTimestamp != "" {
		if err := t.AdvanceLastTimestamp(ctx, userID, newLastTimestamp); err != nil {
			return nil, err
		}
	}

	return inserted, nil
}

func (t *syncTx) AdvanceLastTimestamp(ctx context.Context, userID int64, timestamp string) error {
	query := `
		INSERT INTO sync_state (user_id, last_timestamp)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			last_timestamp = CASE
				WHEN sync_state.last_timestamp IS NULL
					OR sync_state.last_timestamp < EXCLUDED.last_timestamp
				THEN EXCLUDED.last_timestamp
				ELSE sync_state.last_timestamp
			END,
			updated_at = NOW()
	`

	if _, err := t.q.ExecContext(ctx, query, userID, timestamp); err != nil {
		return storageErr("advance last timestamp", err)
	}

	return nil
}

func loadLastTimestamp(ctx context.Context, q sqlx.QueryerContext, userID int64) (*string, error) {
	var last *string
	query := `SELECT last_timestamp FROM sync_state WHERE user_id = $1`

	if err := sqlx.GetContext(ctx, q, &last, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("load last timestamp", err)
	}

	return last, nil
}

// storageErr classifies a database error as ErrConflict or ErrStorage
func storageErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrConflict, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrStorage, err)
}
