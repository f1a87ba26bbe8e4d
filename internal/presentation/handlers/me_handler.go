package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/pkg/address"
	"github.com/bimakw/deposit-tracker/internal/presentation/middleware"
)

// MeHandler serves the authenticated user's account, tokens and deposits
type MeHandler struct {
	users    *services.UserService
	deposits *services.DepositService
	engine   *services.DedupEngine
	notifier services.Notifier
	logger   *zap.Logger
}

// NewMeHandler creates a new account handler. notifier may be nil.
func NewMeHandler(
	users *services.UserService,
	deposits *services.DepositService,
	engine *services.DedupEngine,
	notifier services.Notifier,
	logger *zap.Logger,
) *MeHandler {
	return &MeHandler{
		users:    users,
		deposits: deposits,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterRoutes registers the account routes; callers must wrap them with RequireAuth
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Put("/me/wallet", h.SetWallet)
	r.Get("/me/tokens", h.ListTokens)
	r.Post("/me/tokens", h.AddToken)
	r.Delete("/me/tokens", h.ClearTokens)
	r.Delete("/me/tokens/{address}", h.RemoveToken)
	r.Get("/me/deposits", h.GetDeposits)
	r.Post("/me/sync", h.Sync)
	r.Post("/me/reset", h.Reset)
}

// SetWalletRequest is the body of PUT /api/me/wallet
type SetWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// AddTokenRequest is the body of POST /api/me/tokens
type AddTokenRequest struct {
	TokenAddress string `json:"token_address"`
	TokenSymbol  string `json:"token_symbol,omitempty"`
}

// SyncResponse lists the deposits recorded by an on-demand sync
type SyncResponse struct {
	Count       int                   `json:"count"`
	NewDeposits []services.DepositDTO `json:"new_deposits"`
}

func (h *MeHandler) currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Could not validate credentials")
	}
	return userID, ok
}

// GetMe handles GET /api/me
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get user", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// SetWallet handles PUT /api/me/wallet
func (h *MeHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req SetWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	if _, err := h.users.Register(ctx, userID); err != nil {
		h.logger.Error("Failed to register user", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to set wallet")
		return
	}

	wallet, err := h.users.SetWallet(ctx, userID, req.WalletAddress)
	if errors.Is(err, domain.ErrValidation) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}
	if err != nil {
		h.logger.Error("Failed to set wallet", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to set wallet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"wallet_address": wallet})
}

// ListTokens handles GET /api/me/tokens
func (h *MeHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	response, err := h.users.ListTokens(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list tokens", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch user tokens")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// AddToken handles POST /api/me/tokens
func (h *MeHandler) AddToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req AddTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.users.AddToken(r.Context(), userID, req.TokenAddress, req.TokenSymbol)
	if errors.Is(err, domain.ErrValidation) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}
	if err != nil {
		h.logger.Error("Failed to add token", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to add token")
		return
	}

	respondJSON(w, http.StatusCreated, token)
}

// RemoveToken handles DELETE /api/me/tokens/{address}
func (h *MeHandler) RemoveToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	removed, err := h.users.RemoveToken(r.Context(), userID, chi.URLParam(r, "address"))
	if errors.Is(err, domain.ErrValidation) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}
	if err != nil {
		h.logger.Error("Failed to remove token", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to remove token")
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "token not monitored")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearTokens handles DELETE /api/me/tokens
func (h *MeHandler) ClearTokens(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	n, err := h.users.ClearTokens(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to clear tokens", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to clear tokens")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// GetDeposits handles GET /api/me/deposits
func (h *MeHandler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	filter := entities.DefaultDepositFilter(userID)
	filter.Limit, filter.Offset = parsePagination(r)

	if v := r.URL.Query().Get("token"); v != "" {
		token, err := address.Normalize(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid address format")
			return
		}
		filter.TokenAddress = &token
	}

	response, err := h.deposits.GetDeposits(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to get deposits", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get deposits")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// Sync handles POST /api/me/sync
func (h *MeHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.engine.CheckWallet(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNoWalletConfigured) {
			respondError(w, http.StatusBadRequest, "No wallet configured")
			return
		}
		h.logger.Error("Failed to check wallet", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to sync deposits")
		return
	}

	deposits, err := h.engine.Sync(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		respondError(w, http.StatusConflict, "Sync already in progress")
		return
	case errors.Is(err, domain.ErrUpstream):
		h.logger.Warn("Sync failed upstream", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Deposit history is temporarily unavailable")
		return
	case err != nil:
		h.logger.Error("Sync failed", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to sync deposits")
		return
	}

	if len(deposits) > 0 && h.notifier != nil {
		if err := h.notifier.NotifyDeposits(ctx, userID, deposits); err != nil {
			h.logger.Warn("Failed to notify deposits", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, SyncResponse{
		Count:       len(deposits),
		NewDeposits: services.ToDepositDTOs(deposits),
	})
}

// Reset handles POST /api/me/reset
func (h *MeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.engine.Reset(r.Context(), userID); err != nil {
		h.logger.Error("Failed to reset sync state", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to reset sync state")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
