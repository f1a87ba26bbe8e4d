package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var testNow = time.Unix(1700000000, 0)

func newTestIssuer(secret string) *TokenIssuer {
	issuer := NewTokenIssuer([]byte(secret), time.Hour)
	issuer.now = func() time.Time { return testNow }
	return issuer
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newTestIssuer("secret")

	token, expiresAt, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("expected expiry %v, got %v", testNow.Add(time.Hour), expiresAt)
	}

	userID, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected user 42, got %d", userID)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := newTestIssuer("secret")
	token, _, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	expired := newTestIssuer("secret")
	expired.now = func() time.Time { return testNow.Add(2 * time.Hour) }

	tests := []struct {
		name   string
		issuer *TokenIssuer
		token  string
	}{
		{"wrong secret", newTestIssuer("other"), token},
		{"expired", expired, token},
		{"garbage", issuer, "not-a-jwt"},
		{"tampered", issuer, token[:len(token)-2] + "xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.Parse(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	issuer := newTestIssuer("secret")
	token, _, _ := issuer.Issue(7)

	var seen int64
	handler := RequireAuth(issuer, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = 0
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if w.Header().Get("WWW-Authenticate") != "Bearer" {
					t.Error("expected WWW-Authenticate header")
				}
				if seen != 0 {
					t.Error("handler should not run for rejected requests")
				}
			} else if seen != 7 {
				t.Errorf("expected user 7 in context, got %d", seen)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	handler := RateLimiter(1)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if !strings.Contains(second.Body.String(), "Too many requests") {
		t.Errorf("unexpected body %q", second.Body.String())
	}
}

func TestRoutePattern(t *testing.T) {
	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("expected unmatched outside a router, got %q", got)
	}

	var got string
	r := chi.NewRouter()
	r.Use(Logger(zap.NewNop()))
	r.Use(Metrics())
	r.Delete("/me/tokens/{address}", func(w http.ResponseWriter, r *http.Request) {
		got = routePattern(r)
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/me/tokens/0xabc", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if got != "/me/tokens/{address}" {
		t.Errorf("expected route pattern, got %q", got)
	}
}
