package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/testutil"
)

func TestStatsHandler_GetStats(t *testing.T) {
	db := testutil.NewMemoryDB()
	service := services.NewStatsService(
		testutil.NewMockUserRepository(db),
		testutil.NewMockDepositRepository(db),
		nil,
		time.Minute,
		zap.NewNop(),
	)
	handler := NewStatsHandler(service, zap.NewNop())

	testutil.Seed(db, 1)
	db.AddDeposits(testutil.CreateMultipleDeposits(4, testutil.WithUserID(1))...)

	r := chi.NewRouter()
	r.Route("/api", handler.RegisterRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["total_users"] != 1 {
		t.Errorf("expected 1 user, got %d", response["total_users"])
	}
	if response["total_transactions"] != 4 {
		t.Errorf("expected 4 transactions, got %d", response["total_transactions"])
	}
}
