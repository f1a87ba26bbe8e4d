package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
	"github.com/bimakw/deposit-tracker/internal/testutil"
)

func TestStatsService_GetStats(t *testing.T) {
	db := testutil.NewMemoryDB()
	service := NewStatsService(
		testutil.NewMockUserRepository(db),
		testutil.NewMockDepositRepository(db),
		nil,
		time.Minute,
		zap.NewNop(),
	)

	testutil.Seed(db, 1)
	testutil.Seed(db, 2)
	db.AddDeposits(testutil.CreateMultipleDeposits(3, testutil.WithUserID(1))...)

	response, err := service.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.TotalUsers != 2 {
		t.Errorf("expected 2 users, got %d", response.TotalUsers)
	}
	if response.TotalTransactions != 3 {
		t.Errorf("expected 3 transactions, got %d", response.TotalTransactions)
	}
}

func TestStatsService_GetStats_Empty(t *testing.T) {
	db := testutil.NewMemoryDB()
	service := NewStatsService(
		testutil.NewMockUserRepository(db),
		testutil.NewMockDepositRepository(db),
		nil,
		time.Minute,
		zap.NewNop(),
	)

	response, err := service.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.TotalUsers != 0 || response.TotalTransactions != 0 {
		t.Errorf("expected zero stats, got %+v", *response)
	}
}

func TestStatsService_GetStats_CachedUntilInvalidated(t *testing.T) {
	db := testutil.NewMemoryDB()
	c := testutil.NewMockCache()
	service := NewStatsService(
		testutil.NewMockUserRepository(db),
		testutil.NewMockDepositRepository(db),
		c,
		time.Minute,
		zap.NewNop(),
	)
	ctx := context.Background()

	testutil.Seed(db, 1)
	if _, err := service.GetStats(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Has(cache.KeyStats) {
		t.Fatal("expected stats to be cached")
	}

	testutil.Seed(db, 2)
	response, _ := service.GetStats(ctx)
	if response.TotalUsers != 1 {
		t.Errorf("expected cached count 1, got %d", response.TotalUsers)
	}

	_ = c.Delete(ctx, cache.KeyStats)
	response, _ = service.GetStats(ctx)
	if response.TotalUsers != 2 {
		t.Errorf("expected fresh count 2, got %d", response.TotalUsers)
	}
}
