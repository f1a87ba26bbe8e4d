package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
)

// StatsService provides global tracker statistics
type StatsService struct {
	userRepo    repositories.UserRepository
	depositRepo repositories.DepositRepository
	cache       Cache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(
	userRepo repositories.UserRepository,
	depositRepo repositories.DepositRepository,
	cache Cache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		userRepo:    userRepo,
		depositRepo: depositRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// StatsResponse is the API response for global statistics
type StatsResponse struct {
	TotalUsers        int64 `json:"total_users"`
	TotalTransactions int64 `json:"total_transactions"`
}

// GetStats returns the number of users and recorded deposits
func (s *StatsService) GetStats(ctx context.Context) (*StatsResponse, error) {
	// Try cache first
	var cached StatsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cache.KeyStats, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cache.KeyStats))
			return &cached, nil
		}
	}

	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	deposits, err := s.depositRepo.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count deposits: %w", err)
	}

	response := &StatsResponse{
		TotalUsers:        users,
		TotalTransactions: deposits,
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cache.KeyStats, response, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}
