package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
)

// Syncer is the part of the DedupEngine the scheduler drives
type Syncer interface {
	Sync(ctx context.Context, userID int64) ([]entities.Deposit, error)
}

// Scheduler periodically syncs every pollable user and notifies them of new deposits
type Scheduler struct {
	userRepo repositories.UserRepository
	syncer   Syncer
	notifier Notifier
	config   config.SchedulerConfig
	logger   *zap.Logger
	metrics  *SchedulerMetrics
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// SchedulerMetrics tracks scheduler progress
type SchedulerMetrics struct {
	mu             sync.RWMutex
	CyclesRun      int64
	UsersSynced    int64
	DepositsFound  int64
	ErrorCount     int64
	LastCycleID    string
	LastCycleTime  time.Time
	CycleLatencyMs int64
}

// CycleResult summarises one scheduler cycle
type CycleResult struct {
	CycleID       string
	Users         int
	Failed        int
	DepositsFound int
}

// NewScheduler creates a new scheduler
func NewScheduler(
	userRepo repositories.UserRepository,
	syncer Syncer,
	notifier Notifier,
	cfg config.SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		userRepo: userRepo,
		syncer:   syncer,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		metrics:  &SchedulerMetrics{},
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in the background
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("worker_count", s.config.WorkerCount),
	)

	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Stop gracefully stops the scheduler and waits for the running cycle
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// GetMetrics returns a snapshot of scheduler metrics
func (s *Scheduler) GetMetrics() SchedulerMetrics {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()
	return SchedulerMetrics{
		CyclesRun:      s.metrics.CyclesRun,
		UsersSynced:    s.metrics.UsersSynced,
		DepositsFound:  s.metrics.DepositsFound,
		ErrorCount:     s.metrics.ErrorCount,
		LastCycleID:    s.metrics.LastCycleID,
		LastCycleTime:  s.metrics.LastCycleTime,
		CycleLatencyMs: s.metrics.CycleLatencyMs,
	}
}

// runLoop runs a cycle immediately, then once per poll interval
func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduler cycle failed", zap.Error(err))
	}
}

// RunOnce syncs every pollable user once. A user's failure is logged and
// counted but never stops the others; only failing to list users is an error.
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleResult, error) {
	startTime := time.Now()
	cycleID := uuid.NewString()
	logger := s.logger.With(zap.String("cycle_id", cycleID))

	users, err := s.userRepo.ListPollable(ctx)
	if err != nil {
		s.incrementErrorCount()
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	schedulerCycleUsers.Set(float64(len(users)))

	logger.Info("Starting sync cycle", zap.Int("user_count", len(users)))

	workers := s.config.WorkerCount
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		result = &CycleResult{CycleID: cycleID, Users: len(users)}
	)

	// Workers never return errors so one user cannot cancel the rest
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, u := range users {
		userID := u.ID
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}

			found, ok := s.syncUser(gCtx, logger, userID)

			mu.Lock()
			if ok {
				result.DepositsFound += found
			} else {
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	schedulerCyclesTotal.Inc()

	s.metrics.mu.Lock()
	s.metrics.CyclesRun++
	s.metrics.UsersSynced += int64(result.Users - result.Failed)
	s.metrics.DepositsFound += int64(result.DepositsFound)
	s.metrics.ErrorCount += int64(result.Failed)
	s.metrics.LastCycleID = cycleID
	s.metrics.LastCycleTime = time.Now()
	s.metrics.CycleLatencyMs = time.Since(startTime).Milliseconds()
	s.metrics.mu.Unlock()

	logger.Info("Sync cycle finished",
		zap.Int("user_count", result.Users),
		zap.Int("failed_count", result.Failed),
		zap.Int("deposit_count", result.DepositsFound),
		zap.Duration("duration", time.Since(startTime)),
	)

	return result, nil
}

// syncUser runs one user's sync and hands new deposits to the notifier
func (s *Scheduler) syncUser(ctx context.Context, logger *zap.Logger, userID int64) (int, bool) {
	deposits, err := s.syncer.Sync(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			logger.Info("Sync already in progress, skipping user", zap.Int64("user_id", userID))
			return 0, true
		}
		logger.Error("Failed to sync user",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return 0, false
	}

	if len(deposits) == 0 || s.notifier == nil {
		return len(deposits), true
	}

	if err := s.notifier.NotifyDeposits(ctx, userID, deposits); err != nil {
		notificationFailuresTotal.Inc()
		logger.Warn("Failed to notify user",
			zap.Int64("user_id", userID),
			zap.Int("deposit_count", len(deposits)),
			zap.Error(err),
		)
	}

	return len(deposits), true
}

func (s *Scheduler) incrementErrorCount() {
	s.metrics.mu.Lock()
	s.metrics.ErrorCount++
	s.metrics.mu.Unlock()
}
