package services

import (
	"context"
	"time"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// DepositFetcher reads a wallet's incoming transfers for the given token contracts
type DepositFetcher interface {
	Fetch(ctx context.Context, wallet string, monitoredTokens []string) ([]entities.Deposit, error)
}

// Notifier delivers newly recorded deposits to their owner
type Notifier interface {
	NotifyDeposits(ctx context.Context, userID int64, deposits []entities.Deposit) error
}

// SyncLocker hands out a best-effort per-user lease
type SyncLocker interface {
	Acquire(ctx context.Context, userID int64) (release func(), acquired bool, err error)
}

// Cache is the subset of the Redis cache the services use
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}
