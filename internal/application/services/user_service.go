package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
	"github.com/bimakw/deposit-tracker/internal/pkg/address"
)

// SymbolResolver looks up a token's on-chain symbol
type SymbolResolver interface {
	Symbol(ctx context.Context, tokenAddress string) (string, error)
}

// UserService manages users, their wallet and monitored tokens
type UserService struct {
	userRepo  repositories.UserRepository
	tokenRepo repositories.TokenRepository
	symbols   SymbolResolver
	cache     Cache
	logger    *zap.Logger
}

// NewUserService creates a new user service. symbols and cache may be nil.
func NewUserService(
	userRepo repositories.UserRepository,
	tokenRepo repositories.TokenRepository,
	symbols SymbolResolver,
	cache Cache,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		symbols:   symbols,
		cache:     cache,
		logger:    logger,
	}
}

// UserDTO is the API representation of a user
type UserDTO struct {
	UserID        int64   `json:"user_id"`
	WalletAddress *string `json:"wallet_address"`
	CreatedAt     string  `json:"created_at"`
}

// TokenDTO is the API representation of a monitored token
type TokenDTO struct {
	TokenAddress string `json:"token_address"`
	TokenSymbol  string `json:"token_symbol"`
}

// TokenListResponse is the API response for monitored token queries
type TokenListResponse struct {
	Data []TokenDTO `json:"data"`
}

// Register creates the user if needed; returns true for a new user
func (s *UserService) Register(ctx context.Context, userID int64) (bool, error) {
	created, err := s.userRepo.Create(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to register user: %w", err)
	}

	if created {
		s.logger.Info("Registered user", zap.Int64("user_id", userID))
		s.invalidateStats(ctx)
	}
	return created, nil
}

// GetUser returns the user, or ErrUserNotFound
func (s *UserService) GetUser(ctx context.Context, userID int64) (*UserDTO, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	return &UserDTO{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		CreatedAt:     user.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}, nil
}

// SetWallet validates and stores the user's wallet, returning the normalised address
func (s *UserService) SetWallet(ctx context.Context, userID int64, wallet string) (string, error) {
	normalized, err := address.Normalize(wallet)
	if err != nil {
		return "", err
	}

	if err := s.userRepo.SetWallet(ctx, userID, normalized); err != nil {
		return "", fmt.Errorf("failed to set wallet: %w", err)
	}

	s.logger.Info("Wallet updated",
		zap.Int64("user_id", userID),
		zap.String("wallet", normalized),
	)
	return normalized, nil
}

// AddToken starts monitoring a token. Without a symbol one is looked up on-chain when possible.
func (s *UserService) AddToken(ctx context.Context, userID int64, tokenAddress, symbol string) (*TokenDTO, error) {
	normalized, err := address.Normalize(tokenAddress)
	if err != nil {
		return nil, err
	}

	if _, err := s.Register(ctx, userID); err != nil {
		return nil, err
	}

	symbol = strings.TrimSpace(symbol)
	if symbol == "" && s.symbols != nil {
		resolved, err := s.symbols.Symbol(ctx, normalized)
		if err != nil {
			s.logger.Debug("Symbol lookup failed",
				zap.String("token_address", normalized),
				zap.Error(err),
			)
		} else {
			symbol = resolved
		}
	}

	token := &entities.MonitoredToken{
		UserID:       userID,
		TokenAddress: normalized,
	}
	if symbol != "" {
		token.TokenSymbol = &symbol
	}

	if err := s.tokenRepo.Add(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to add token: %w", err)
	}

	s.logger.Info("Monitoring token",
		zap.Int64("user_id", userID),
		zap.String("token_address", normalized),
	)
	return &TokenDTO{TokenAddress: normalized, TokenSymbol: token.Symbol()}, nil
}

// RemoveToken stops monitoring a token; returns false if it was not monitored
func (s *UserService) RemoveToken(ctx context.Context, userID int64, tokenAddress string) (bool, error) {
	normalized, err := address.Normalize(tokenAddress)
	if err != nil {
		return false, err
	}

	removed, err := s.tokenRepo.Remove(ctx, userID, normalized)
	if err != nil {
		return false, fmt.Errorf("failed to remove token: %w", err)
	}
	return removed, nil
}

// ClearTokens stops monitoring every token and returns how many were removed
func (s *UserService) ClearTokens(ctx context.Context, userID int64) (int64, error) {
	n, err := s.tokenRepo.RemoveAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tokens: %w", err)
	}
	return n, nil
}

// ListTokens returns the user's monitored tokens
func (s *UserService) ListTokens(ctx context.Context, userID int64) (*TokenListResponse, error) {
	tokens, err := s.tokenRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	dtos := make([]TokenDTO, len(tokens))
	for i, t := range tokens {
		dtos[i] = TokenDTO{TokenAddress: t.TokenAddress, TokenSymbol: t.Symbol()}
	}
	return &TokenListResponse{Data: dtos}, nil
}

// DeleteUser removes the user with all tokens, deposits and sync state
func (s *UserService) DeleteUser(ctx context.Context, userID int64) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("Deleted user", zap.Int64("user_id", userID))
	s.invalidateStats(ctx)
	if s.cache != nil {
		if err := s.cache.DeletePattern(ctx, cache.UserDepositsPattern(userID)); err != nil {
			s.logger.Warn("Failed to invalidate deposit cache", zap.Error(err))
		}
	}
	return nil
}

func (s *UserService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.KeyStats); err != nil {
		s.logger.Warn("Failed to invalidate stats cache", zap.Error(err))
	}
}
