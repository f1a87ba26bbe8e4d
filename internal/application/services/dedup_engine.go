package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
	"github.com/bimakw/deposit-tracker/internal/pkg/retry"
)

// DedupEngine decides which fetched deposits are new for a user and records them.
//
// A sync fetches the wallet history outside any transaction, then opens one
// unit of work that pre-filters candidates by the user's high-water-mark,
// drops keys already recorded, inserts the rest and advances the mark.
// Storage uniqueness on (user, tx_hash, token_address) is the final guard,
// so concurrent syncs for the same user never report a deposit twice.
type DedupEngine struct {
	userRepo  repositories.UserRepository
	tokenRepo repositories.TokenRepository
	store     repositories.SyncStateRepository
	fetcher   DepositFetcher
	lease     SyncLocker
	cache     Cache
	retry     retry.Retry
	config    config.SyncConfig
	logger    *zap.Logger
}

// EngineOption configures optional DedupEngine collaborators
type EngineOption func(*DedupEngine)

// WithLease skips a sync while another one holds the user's lease
func WithLease(l SyncLocker) EngineOption {
	return func(e *DedupEngine) {
		e.lease = l
	}
}

// WithCache invalidates a user's cached deposit pages after new deposits
func WithCache(c Cache) EngineOption {
	return func(e *DedupEngine) {
		e.cache = c
	}
}

// NewDedupEngine creates a new dedup engine
func NewDedupEngine(
	userRepo repositories.UserRepository,
	tokenRepo repositories.TokenRepository,
	store repositories.SyncStateRepository,
	fetcher DepositFetcher,
	cfg config.SyncConfig,
	logger *zap.Logger,
	opts ...EngineOption,
) *DedupEngine {
	attempts := cfg.ConflictAttempts
	if attempts == 0 {
		attempts = 1
	}

	e := &DedupEngine{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		store:     store,
		fetcher:   fetcher,
		config:    cfg,
		logger:    logger,
		retry: retry.New(
			retry.WithAttempts(attempts),
			retry.WithDelay(50*time.Millisecond),
			retry.WithMaxDelay(500*time.Millisecond),
			retry.WithRetryIf(func(err error) bool {
				return errors.Is(err, domain.ErrConflict)
			}),
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckWallet returns ErrNoWalletConfigured unless the user can be synced
func (e *DedupEngine) CheckWallet(ctx context.Context, userID int64) error {
	user, err := e.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w: %w", domain.ErrStorage, err)
	}
	if !user.HasWallet() {
		return domain.ErrNoWalletConfigured
	}
	return nil
}

// Sync fetches the user's history and returns the deposits recorded by this call.
// Users without a wallet or without monitored tokens yield an empty result.
func (e *DedupEngine) Sync(ctx context.Context, userID int64) ([]entities.Deposit, error) {
	start := time.Now()

	deposits, err := e.sync(ctx, userID)

	syncDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		syncsTotal.WithLabelValues("ok").Inc()
		depositsFoundTotal.Add(float64(len(deposits)))
	case errors.Is(err, domain.ErrSyncInProgress):
		syncsTotal.WithLabelValues("skipped").Inc()
	default:
		syncsTotal.WithLabelValues("error").Inc()
		syncErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	}

	return deposits, err
}

func (e *DedupEngine) sync(ctx context.Context, userID int64) ([]entities.Deposit, error) {
	user, err := e.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w: %w", domain.ErrStorage, err)
	}
	if !user.HasWallet() {
		e.logger.Debug("Skipping user without wallet", zap.Int64("user_id", userID))
		return nil, nil
	}

	tokens, err := e.tokenRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitored tokens: %w: %w", domain.ErrStorage, err)
	}
	if len(tokens) == 0 {
		e.logger.Debug("Skipping user without monitored tokens", zap.Int64("user_id", userID))
		return nil, nil
	}

	if e.lease != nil {
		release, acquired, err := e.lease.Acquire(ctx, userID)
		switch {
		case err != nil:
			e.logger.Warn("Sync lease unavailable, continuing without it",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		case !acquired:
			return nil, domain.ErrSyncInProgress
		default:
			defer release()
		}
	}

	fetched, err := e.fetcher.Fetch(ctx, user.Wallet(), entities.TokenAddresses(tokens))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deposits: %w", err)
	}
	if len(fetched) == 0 {
		return nil, nil
	}

	// Nothing has been written yet, so abandoning here leaves no partial state
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var recorded []entities.Deposit
	err = e.retry.Execute(ctx, func() error {
		var err error
		recorded, err = e.apply(ctx, userID, fetched)
		if errors.Is(err, domain.ErrConflict) {
			e.logger.Info("Concurrent insert detected, retrying sync",
				zap.Int64("user_id", userID),
			)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(recorded) > 0 {
		e.invalidate(ctx, userID)
		e.logger.Info("Recorded new deposits",
			zap.Int64("user_id", userID),
			zap.Int("deposit_count", len(recorded)),
			zap.String("last_timestamp", entities.MaxTimestamp(recorded)),
		)
	}

	return recorded, nil
}

// apply runs the atomic part of a sync and returns what it inserted
func (e *DedupEngine) apply(ctx context.Context, userID int64, fetched []entities.Deposit) ([]entities.Deposit, error) {
	var recorded []entities.Deposit

	err := e.store.WithinTx(ctx, func(tx repositories.SyncTx) error {
		last, err := tx.LoadLastTimestamp(ctx, userID)
		if err != nil {
			return err
		}

		candidates := FilterAfter(fetched, last)
		if len(candidates) == 0 {
			return nil
		}

		keys := make([]entities.DedupKey, len(candidates))
		for i, d := range candidates {
			keys[i] = d.Key()
		}

		existing, err := tx.ExistingKeys(ctx, userID, keys)
		if err != nil {
			return err
		}

		trulyNew := make([]entities.Deposit, 0, len(candidates))
		for _, d := range candidates {
			if _, ok := existing[d.Key()]; !ok {
				trulyNew = append(trulyNew, d)
			}
		}

		if len(trulyNew) == 0 {
			if !e.config.AdvanceStaleMark {
				return nil
			}
			staleMax := entities.MaxTimestamp(candidates)
			e.logger.Debug("Advancing stale mark",
				zap.Int64("user_id", userID),
				zap.String("last_timestamp", staleMax),
			)
			return tx.AdvanceLastTimestamp(ctx, userID, staleMax)
		}

		recorded, err = tx.RecordNewDeposits(ctx, userID, trulyNew, entities.MaxTimestamp(trulyNew))
		return err
	})
	if err != nil {
		return nil, err
	}

	return recorded, nil
}

// Reset clears the user's mark so the next sync re-examines the whole history.
// Recorded deposits are kept and will not be reported again.
func (e *DedupEngine) Reset(ctx context.Context, userID int64) error {
	if err := e.store.Reset(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset sync state: %w", err)
	}

	e.logger.Info("Sync state reset", zap.Int64("user_id", userID))
	return nil
}

// LastTimestamp returns the user's current mark, or nil
func (e *DedupEngine) LastTimestamp(ctx context.Context, userID int64) (*string, error) {
	return e.store.LoadLastTimestamp(ctx, userID)
}

func (e *DedupEngine) invalidate(ctx context.Context, userID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.DeletePattern(ctx, cache.UserDepositsPattern(userID)); err != nil {
		e.logger.Warn("Failed to invalidate deposit cache", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := e.cache.Delete(ctx, cache.KeyStats); err != nil {
		e.logger.Warn("Failed to invalidate stats cache", zap.Error(err))
	}
}

// FilterAfter keeps deposits strictly newer than last, dropping repeated keys.
// A nil mark admits everything.
func FilterAfter(deposits []entities.Deposit, last *string) []entities.Deposit {
	seen := make(map[entities.DedupKey]struct{}, len(deposits))
	out := make([]entities.Deposit, 0, len(deposits))
	for _, d := range deposits {
		if last != nil && d.BlockTimestamp <= *last {
			continue
		}
		if _, dup := seen[d.Key()]; dup {
			continue
		}
		seen[d.Key()] = struct{}{}
		out = append(out, d)
	}
	return out
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
