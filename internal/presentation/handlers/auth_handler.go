package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/presentation/middleware"
)

var (
	// ErrInvalidLogin is returned when the login widget signature does not match
	ErrInvalidLogin = errors.New("invalid telegram authorization data")

	// ErrLoginExpired is returned when auth_date is older than the allowed age
	ErrLoginExpired = errors.New("telegram authorization data is too old")
)

// AuthHandler exchanges Telegram login widget data for a dashboard token
type AuthHandler struct {
	users    *services.UserService
	issuer   *middleware.TokenIssuer
	botToken string
	maxAge   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	users *services.UserService,
	issuer *middleware.TokenIssuer,
	botToken string,
	maxAge time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:    users,
		issuer:   issuer,
		botToken: botToken,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger,
	}
}

// TokenResponse is returned after a successful login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

// TelegramLogin handles POST /auth/telegram
func (h *AuthHandler) TelegramLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeLoginFields(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, err := VerifyTelegramLogin(fields, h.botToken, h.maxAge, h.now())
	if err != nil {
		h.logger.Warn("Rejected telegram login", zap.Error(err))
		message := "Invalid Telegram authorization data"
		if errors.Is(err, ErrLoginExpired) {
			message = "Telegram authorization data is too old"
		}
		respondError(w, http.StatusUnauthorized, message)
		return
	}

	ctx := r.Context()
	if _, err := h.users.Register(ctx, userID); err != nil {
		h.logger.Error("Failed to register user", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	token, expiresAt, err := h.issuer.Issue(userID)
	if err != nil {
		h.logger.Error("Failed to issue token", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	h.logger.Info("Issued dashboard token", zap.Int64("user_id", userID))
	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      userID,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}

// decodeLoginFields flattens the widget payload to the string form used in the check string
func decodeLoginFields(r *http.Request) (map[string]string, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		default:
			return nil, fmt.Errorf("unsupported value for %q", k)
		}
	}
	return fields, nil
}

// maxLoginClockSkew is how far ahead of our clock a login's auth_date may be
const maxLoginClockSkew = time.Minute

// VerifyTelegramLogin checks the login widget signature and freshness and returns the user id.
// The signature is HMAC-SHA256 over the sorted "key=value" lines (excluding hash),
// keyed with SHA-256 of the bot token.
func VerifyTelegramLogin(fields map[string]string, botToken string, maxAge time.Duration, now time.Time) (int64, error) {
	hash, ok := fields["hash"]
	if !ok || hash == "" {
		return 0, fmt.Errorf("%w: missing hash", ErrInvalidLogin)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var check bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			check.WriteByte('\n')
		}
		check.WriteString(k)
		check.WriteByte('=')
		check.WriteString(fields[k])
	}

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(check.Bytes())
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return 0, ErrInvalidLogin
	}

	authDate, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad auth_date", ErrInvalidLogin)
	}
	age := now.Sub(time.Unix(authDate, 0))
	if age < -maxLoginClockSkew {
		return 0, fmt.Errorf("%w: auth_date in the future", ErrInvalidLogin)
	}
	if age > maxAge {
		return 0, ErrLoginExpired
	}

	userID, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil || userID == 0 {
		return 0, fmt.Errorf("%w: bad id", ErrInvalidLogin)
	}
	return userID, nil
}
