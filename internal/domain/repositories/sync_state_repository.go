package repositories

import (
	"context"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// SyncStateRepository is the per-user sync state store: the high-water-mark
// plus the durable set of recorded deposits.
type SyncStateRepository interface {
	// LoadLastTimestamp returns the user's mark, or nil if never set or reset
	LoadLastTimestamp(ctx context.Context, userID int64) (*string, error)

	// RecordNewDeposits persists deposits and advances the mark in one transaction.
	// Rows already recorded are skipped; the returned slice holds only inserted rows.
	RecordNewDeposits(ctx context.Context, userID int64, deposits []entities.Deposit, newLastTimestamp string) ([]entities.Deposit, error)

	// Reset clears the mark without deleting recorded deposits
	Reset(ctx context.Context, userID int64) error

	// WithinTx runs fn inside a single transaction. If fn returns an error
	// everything done through the SyncTx is rolled back.
	WithinTx(ctx context.Context, fn func(tx SyncTx) error) error
}

// SyncTx is the unit of work handed out by WithinTx
type SyncTx interface {
	// LoadLastTimestamp returns the user's mark as seen by this transaction
	LoadLastTimestamp(ctx context.Context, userID int64) (*string, error)

	// ExistingKeys returns which of keys are already recorded for the user
	ExistingKeys(ctx context.Context, userID int64, keys []entities.DedupKey) (map[entities.DedupKey]struct{}, error)

	// RecordNewDeposits inserts deposits, skipping recorded ones, and advances the mark
	RecordNewDeposits(ctx context.Context, userID int64, deposits []entities.Deposit, newLastTimestamp string) ([]entities.Deposit, error)

	// AdvanceLastTimestamp moves the mark forward; an older value is ignored
	AdvanceLastTimestamp(ctx context.Context, userID int64, timestamp string) error
}
