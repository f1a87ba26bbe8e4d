package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
)

// DepositService provides read access to recorded deposit history
type DepositService struct {
	depositRepo repositories.DepositRepository
	cache       Cache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewDepositService creates a new deposit service
func NewDepositService(
	depositRepo repositories.DepositRepository,
	cache Cache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DepositService {
	return &DepositService{
		depositRepo: depositRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// DepositResponse is the API response for deposit history queries
type DepositResponse struct {
	Deposits []DepositDTO `json:"deposits"`
	Total    int64        `json:"total"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	HasMore  bool         `json:"has_more"`
}

// DepositDTO is the API representation of a deposit
type DepositDTO struct {
	TxHash          string `json:"tx_hash"`
	TokenAddress    string `json:"token_address"`
	TokenSymbol     string `json:"token_symbol"`
	Amount          string `json:"amount"`
	AmountFormatted string `json:"amount_formatted"`
	BlockTimestamp  string `json:"block_timestamp"`
	FromAddress     string `json:"from_address"`
}

// GetDeposits retrieves a page of the user's deposits, newest first
func (s *DepositService) GetDeposits(ctx context.Context, filter entities.DepositFilter) (*DepositResponse, error) {
	token := ""
	if filter.TokenAddress != nil {
		token = *filter.TokenAddress
	}
	cacheKey := cache.UserDepositsKey(filter.UserID, token, filter.Limit, filter.Offset)

	// Try cache first
	var cached DepositResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	deposits, err := s.depositRepo.GetByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposits: %w", err)
	}

	total, err := s.depositRepo.GetCount(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit count: %w", err)
	}

	response := &DepositResponse{
		Deposits: ToDepositDTOs(deposits),
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
		HasMore:  int64(filter.Offset+len(deposits)) < total,
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

// ToDepositDTOs converts deposit entities to their API representation
func ToDepositDTOs(deposits []entities.Deposit) []DepositDTO {
	dtos := make([]DepositDTO, len(deposits))
	for i, d := range deposits {
		dtos[i] = DepositDTO{
			TxHash:          d.TxHash,
			TokenAddress:    d.TokenAddress,
			TokenSymbol:     d.TokenSymbol,
			Amount:          d.AmountRaw,
			AmountFormatted: d.AmountFormatted,
			BlockTimestamp:  d.BlockTimestamp,
			FromAddress:     d.FromAddress,
		}
	}
	return dtos
}
