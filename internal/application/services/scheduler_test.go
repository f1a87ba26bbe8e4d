package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/testutil"
)

// stubSyncer returns canned results per user
type stubSyncer struct {
	mu       sync.Mutex
	results  map[int64][]entities.Deposit
	errs     map[int64]error
	calls    []int64
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func newStubSyncer() *stubSyncer {
	return &stubSyncer{
		results: make(map[int64][]entities.Deposit),
		errs:    make(map[int64]error),
	}
}

func (s *stubSyncer) Sync(ctx context.Context, userID int64) ([]entities.Deposit, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		m := atomic.LoadInt32(&s.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxSeen, m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID)
	return s.results[userID], s.errs[userID]
}

func (s *stubSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func setupSchedulerTest(workers int) (*Scheduler, *testutil.MemoryDB, *stubSyncer, *testutil.MockNotifier) {
	db := testutil.NewMemoryDB()
	users := testutil.NewMockUserRepository(db)
	syncer := newStubSyncer()
	notifier := testutil.NewMockNotifier()

	cfg := config.SchedulerConfig{
		PollInterval: time.Hour,
		WorkerCount:  workers,
	}
	s := NewScheduler(users, syncer, notifier, cfg, zap.NewNop())
	return s, db, syncer, notifier
}

func TestScheduler_RunOnce_SyncsPollableUsers(t *testing.T) {
	s, db, syncer, notifier := setupSchedulerTest(1)
	ctx := context.Background()

	db.AddUser(1, testutil.WalletAddress)
	db.AddUser(2, testutil.WalletAddress)
	db.AddUser(3, "") // no wallet, not polled

	syncer.results[1] = testutil.CreateMultipleDeposits(2)

	result, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Users != 2 {
		t.Errorf("expected 2 users, got %d", result.Users)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %d", result.Failed)
	}
	if result.DepositsFound != 2 {
		t.Errorf("expected 2 deposits, got %d", result.DepositsFound)
	}
	if result.CycleID == "" {
		t.Error("expected cycle id")
	}
	if syncer.callCount() != 2 {
		t.Errorf("expected 2 sync calls, got %d", syncer.callCount())
	}
	if len(notifier.DeliveredTo(1)) != 2 {
		t.Errorf("expected 2 deposits delivered to user 1, got %d", len(notifier.DeliveredTo(1)))
	}
	if len(notifier.DeliveredTo(2)) != 0 {
		t.Errorf("expected nothing delivered to user 2, got %d", len(notifier.DeliveredTo(2)))
	}
}

func TestScheduler_RunOnce_FailureIsolation(t *testing.T) {
	s, db, syncer, notifier := setupSchedulerTest(1)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		db.AddUser(id, testutil.WalletAddress)
	}
	syncer.errs[2] = &domain.UpstreamError{StatusCode: 502}
	syncer.results[3] = testutil.CreateMultipleDeposits(1)

	result, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
	if syncer.callCount() != 3 {
		t.Errorf("expected every user synced, got %d", syncer.callCount())
	}
	if len(notifier.DeliveredTo(3)) != 1 {
		t.Errorf("expected user after the failure to be notified, got %d", len(notifier.DeliveredTo(3)))
	}

	metrics := s.GetMetrics()
	if metrics.ErrorCount != 1 {
		t.Errorf("expected error count 1, got %d", metrics.ErrorCount)
	}
	if metrics.UsersSynced != 2 {
		t.Errorf("expected 2 users synced, got %d", metrics.UsersSynced)
	}
}

func TestScheduler_RunOnce_SyncInProgressIsNotFailure(t *testing.T) {
	s, db, syncer, _ := setupSchedulerTest(1)
	db.AddUser(1, testutil.WalletAddress)
	syncer.errs[1] = domain.ErrSyncInProgress

	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("expected no failures, got %d", result.Failed)
	}
}

func TestScheduler_RunOnce_NotifierErrorTolerated(t *testing.T) {
	s, db, syncer, notifier := setupSchedulerTest(1)
	db.AddUser(1, testutil.WalletAddress)
	db.AddUser(2, testutil.WalletAddress)
	syncer.results[1] = testutil.CreateMultipleDeposits(1)
	syncer.results[2] = testutil.CreateMultipleDeposits(2)
	notifier.Err = errors.New("chat not found")

	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("expected notification failures not to fail the sync, got %d", result.Failed)
	}
	if result.DepositsFound != 3 {
		t.Errorf("expected 3 deposits, got %d", result.DepositsFound)
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	db := testutil.NewMemoryDB()
	users := testutil.NewMockUserRepository(db)
	users.ListPollableFunc = func(ctx context.Context) ([]entities.User, error) {
		return nil, errors.New("connection refused")
	}
	s := NewScheduler(users, newStubSyncer(), nil, config.SchedulerConfig{PollInterval: time.Hour, WorkerCount: 1}, zap.NewNop())

	_, err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if s.GetMetrics().ErrorCount != 1 {
		t.Errorf("expected error count 1, got %d", s.GetMetrics().ErrorCount)
	}
}

func TestScheduler_RunOnce_WorkerLimit(t *testing.T) {
	s, db, syncer, _ := setupSchedulerTest(2)
	syncer.delay = 20 * time.Millisecond
	for id := int64(1); id <= 6; id++ {
		db.AddUser(id, testutil.WalletAddress)
	}

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if syncer.callCount() != 6 {
		t.Errorf("expected 6 sync calls, got %d", syncer.callCount())
	}
	if peak := atomic.LoadInt32(&syncer.maxSeen); peak > 2 {
		t.Errorf("expected at most 2 concurrent syncs, saw %d", peak)
	}
}

func TestScheduler_RunOnce_WithDedupEngine(t *testing.T) {
	db := testutil.NewMemoryDB()
	users := testutil.NewMockUserRepository(db)
	tokens := testutil.NewMockTokenRepository(db)
	store := testutil.NewMockSyncStore(db)
	fetcher := testutil.NewMockFetcher()
	notifier := testutil.NewMockNotifier()

	engine := NewDedupEngine(users, tokens, store, fetcher, defaultSyncConfig(), zap.NewNop())
	s := NewScheduler(users, engine, notifier, config.SchedulerConfig{PollInterval: time.Hour, WorkerCount: 1}, zap.NewNop())

	testutil.Seed(db, 1)
	fetcher.SetDeposits(testutil.CreateMultipleDeposits(3)...)

	for i := 0; i < 3; i++ {
		if _, err := s.RunOnce(context.Background()); err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", i, err)
		}
	}

	if len(notifier.DeliveredTo(1)) != 3 {
		t.Errorf("expected each deposit delivered once across cycles, got %d", len(notifier.DeliveredTo(1)))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, db, syncer, _ := setupSchedulerTest(1)
	db.AddUser(1, testutil.WalletAddress)

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for syncer.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	s.Stop() // idempotent

	if syncer.callCount() == 0 {
		t.Error("expected an immediate cycle on start")
	}
	if s.GetMetrics().CyclesRun < 1 {
		t.Errorf("expected at least 1 cycle, got %d", s.GetMetrics().CyclesRun)
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s, _, _, _ := setupSchedulerTest(1)
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}
