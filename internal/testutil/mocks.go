package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/domain/repositories"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MemoryDB is the shared in-memory state behind the mock repositories.
// Deleting a user cascades to its tokens, deposits and sync state.
type MemoryDB struct {
	mu       sync.RWMutex
	users    map[int64]*entities.User
	tokens   map[int64][]entities.MonitoredToken
	deposits []entities.Deposit
	marks    map[int64]*string
	nextID   int64

	// txMu serialises WithinTx units of work
	txMu sync.Mutex
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:  make(map[int64]*entities.User),
		tokens: make(map[int64][]entities.MonitoredToken),
		marks:  make(map[int64]*string),
	}
}

// AddUser stores a user, with or without a wallet
func (db *MemoryDB) AddUser(userID int64, wallet string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u := &entities.User{ID: userID}
	if wallet != "" {
		u.WalletAddress = &wallet
	}
	db.users[userID] = u
}

// AddToken monitors a token for a user
func (db *MemoryDB) AddToken(userID int64, tokenAddress string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tokens[userID] = append(db.tokens[userID], entities.MonitoredToken{UserID: userID, TokenAddress: tokenAddress})
}

// AddDeposits stores deposits directly, bypassing dedup
func (db *MemoryDB) AddDeposits(deposits ...entities.Deposit) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, d := range deposits {
		db.nextID++
		d.ID = db.nextID
		db.deposits = append(db.deposits, d)
	}
}

// SetMark overrides a user's high-water-mark
func (db *MemoryDB) SetMark(userID int64, ts *string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.marks[userID] = ts
}

// Mark returns a copy of the user's high-water-mark
func (db *MemoryDB) Mark(userID int64) *string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if ts := db.marks[userID]; ts != nil {
		v := *ts
		return &v
	}
	return nil
}

// Deposits returns the recorded deposits of a user in insertion order
func (db *MemoryDB) Deposits(userID int64) []entities.Deposit {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []entities.Deposit
	for _, d := range db.deposits {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out
}

func (db *MemoryDB) hasKeyLocked(userID int64, k entities.DedupKey) bool {
	for _, d := range db.deposits {
		if d.UserID == userID && d.Key() == k {
			return true
		}
	}
	return false
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	db *MemoryDB

	GetByIDFunc      func(ctx context.Context, userID int64) (*entities.User, error)
	ListPollableFunc func(ctx context.Context) ([]entities.User, error)

	callMu sync.Mutex
	Calls  []MockCall
}

var _ repositories.UserRepository = (*MockUserRepository)(nil)

func NewMockUserRepository(db *MemoryDB) *MockUserRepository {
	return &MockUserRepository{db: db, Calls: make([]MockCall, 0)}
}

func (m *MockUserRepository) record(method string, args ...interface{}) {
	m.callMu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.callMu.Unlock()
}

func (m *MockUserRepository) Create(ctx context.Context, userID int64) (bool, error) {
	m.record("Create", userID)

	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.users[userID]; ok {
		return false, nil
	}
	m.db.users[userID] = &entities.User{ID: userID}
	return true, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID int64) (*entities.User, error) {
	m.record("GetByID", userID)
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID)
	}

	m.db.mu.RLock()
	defer m.db.mu.RUnlock()
	u, ok := m.db.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) SetWallet(ctx context.Context, userID int64, walletAddress string) error {
	m.record("SetWallet", userID, walletAddress)

	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[userID]
	if !ok {
		u = &entities.User{ID: userID}
		m.db.users[userID] = u
	}
	u.WalletAddress = &walletAddress
	return nil
}

func (m *MockUserRepository) ListPollable(ctx context.Context) ([]entities.User, error) {
	m.record("ListPollable")
	if m.ListPollableFunc != nil {
		return m.ListPollableFunc(ctx)
	}

	m.db.mu.RLock()
	defer m.db.mu.RUnlock()
	users := make([]entities.User, 0)
	for _, u := range m.db.users {
		if u.HasWallet() {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, userID int64) error {
	m.record("Delete", userID)

	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.users, userID)
	delete(m.db.tokens, userID)
	delete(m.db.marks, userID)
	kept := m.db.deposits[:0]
	for _, d := range m.db.deposits {
		if d.UserID != userID {
			kept = append(kept, d)
		}
	}
	m.db.deposits = kept
	return nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	m.record("Count")

	m.db.mu.RLock()
	defer m.db.mu.RUnlock()
	return int64(len(m.db.users)), nil
}

// MockTokenRepository is a mock implementation of TokenRepository
type MockTokenRepository struct {
	db *MemoryDB

	ListByUserFunc func(ctx context.Context, userID int64) ([]entities.MonitoredToken, error)
}

var _ repositories.TokenRepository = (*MockTokenRepository)(nil)

func NewMockTokenRepository(db *MemoryDB) *MockTokenRepository {
	return &MockTokenRepository{db: db}
}

func (m *MockTokenRepository) ListByUser(ctx context.Context, userID int64) ([]entities.MonitoredToken, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}

	m.db.mu.RLock()
	defer m.db.mu.RUnlock()
	out := make([]entities.MonitoredToken, len(m.db.tokens[userID]))
	copy(out, m.db.tokens[userID])
	return out, nil
}

func (m *MockTokenRepository) Add(ctx context.Context, token *entities.MonitoredToken) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if _, ok := m.db.users[token.UserID]; !ok {
		return errors.New("user does not exist")
	}

	list := m.db.tokens[token.UserID]
	for i, t := range list {
		if t.TokenAddress == token.TokenAddress {
			if token.TokenSymbol != nil {
				list[i].TokenSymbol = token.TokenSymbol
			}
			return nil
		}
	}
	m.db.tokens[token.UserID] = append(list, *token)
	return nil
}

func (m *MockTokenRepository) Remove(ctx context.Context, userID int64, tokenAddress string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	list := m.db.tokens[userID]
	for i, t := range list {
		if t.TokenAddress == tokenAddress {
			m.db.tokens[userID] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MockTokenRepository) RemoveAll(ctx context.Context, userID int64) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	n := int64(len(m.db.tokens[userID]))
	delete(m.db.tokens, userID)
	return n, nil
}

// MockDepositRepository is a mock implementation of DepositRepository
type MockDepositRepository struct {
	db *MemoryDB

	GetByFilterFunc func(ctx context.Context, filter entities.DepositFilter) ([]entities.Deposit, error)
}

var _ repositories.DepositRepository = (*MockDepositRepository)(nil)

func NewMockDepositRepository(db *MemoryDB) *MockDepositRepository {
	return &MockDepositRepository{db: db}
}

func (m *MockDepositRepository) matching(filter entities.DepositFilter) []entities.Deposit {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	result := make([]entities.Deposit, 0)
	for _, d := range m.db.deposits {
		if d.UserID != filter.UserID {
			continue
		}
		if filter.TokenAddress != nil && d.TokenAddress != *filter.TokenAddress {
			continue
		}
		result = append(result, d)
	}

	// Newest first, like the SQL implementation
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].BlockTimestamp != result[j].BlockTimestamp {
			return result[i].BlockTimestamp > result[j].BlockTimestamp
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func (m *MockDepositRepository) GetByFilter(ctx context.Context, filter entities.DepositFilter) ([]entities.Deposit, error) {
	if m.GetByFilterFunc != nil {
		return m.GetByFilterFunc(ctx, filter)
	}

	result := m.matching(filter)

	// Apply pagination
	start := filter.Offset
	if start > len(result) {
		return []entities.Deposit{}, nil
	}
	end := start + filter.Limit
	if end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (m *MockDepositRepository) GetCount(ctx context.Context, filter entities.DepositFilter) (int64, error) {
	return int64(len(m.matching(filter))), nil
}

func (m *MockDepositRepository) CountAll(ctx context.Context) (int64, error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()
	return int64(len(m.db.deposits)), nil
}

// MockSyncStore is an in-memory SyncStateRepository.
// Units of work are serialised and buffer their writes until commit;
// inserts skip keys already recorded, like ON CONFLICT DO NOTHING.
type MockSyncStore struct {
	db *MemoryDB

	// Hooks run inside the unit of work
	ExistingKeysFunc      func(ctx context.Context, userID int64, keys []entities.DedupKey) (map[entities.DedupKey]struct{}, error)
	RecordNewDepositsFunc func(ctx context.Context, userID int64, deposits []entities.Deposit, newLast string) error
	BeforeCommitFunc      func() error

	callMu sync.Mutex
	Calls  []MockCall
}

var (
	_ repositories.SyncStateRepository = (*MockSyncStore)(nil)
	_ repositories.SyncTx              = (*memTx)(nil)
)

func NewMockSyncStore(db *MemoryDB) *MockSyncStore {
	return &MockSyncStore{db: db, Calls: make([]MockCall, 0)}
}

func (m *MockSyncStore) record(method string, args ...interface{}) {
	m.callMu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.callMu.Unlock()
}

// CallCount returns how many times method was invoked
func (m *MockSyncStore) CallCount(method string) int {
	m.callMu.Lock()
	defer m.callMu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockSyncStore) LoadLastTimestamp(ctx context.Context, userID int64) (*string, error) {
	m.record("LoadLastTimestamp", userID)
	return m.db.Mark(userID), nil
}

func (m *MockSyncStore) RecordNewDeposits(ctx context.Context, userID int64, deposits []entities.Deposit, newLast string) ([]entities.Deposit, error) {
	var inserted []entities.Deposit
	err := m.WithinTx(ctx, func(tx repositories.SyncTx) error {
		var err error
		inserted, err = tx.RecordNewDeposits(ctx, userID, deposits, newLast)
		return err
	})
	return inserted, err
}

func (m *MockSyncStore) Reset(ctx context.Context, userID int64) error {
	m.record("Reset", userID)
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.marks[userID]; ok {
		m.db.marks[userID] = nil
	}
	return nil
}

func (m *MockSyncStore) WithinTx(ctx context.Context, fn func(tx repositories.SyncTx) error) error {
	m.record("WithinTx")

	m.db.txMu.Lock()
	defer m.db.txMu.Unlock()

	tx := &memTx{store: m, marks: make(map[int64]string)}
	if err := fn(tx); err != nil {
		m.record("Rollback")
		return err
	}
	if m.BeforeCommitFunc != nil {
		if err := m.BeforeCommitFunc(); err != nil {
			m.record("Rollback")
			return err
		}
	}

	tx.commit()
	m.record("Commit")
	return nil
}

type memTx struct {
	store    *MockSyncStore
	deposits []entities.Deposit
	marks    map[int64]string
}

func (t *memTx) LoadLastTimestamp(ctx context.Context, userID int64) (*string, error) {
	if ts, ok := t.marks[userID]; ok {
		return &ts, nil
	}
	return t.store.db.Mark(userID), nil
}

func (t *memTx) ExistingKeys(ctx context.Context, userID int64, keys []entities.DedupKey) (map[entities.DedupKey]struct{}, error) {
	t.store.record("ExistingKeys", userID, keys)
	if t.store.ExistingKeysFunc != nil {
		return t.store.ExistingKeysFunc(ctx, userID, keys)
	}

	db := t.store.db
	db.mu.RLock()
	defer db.mu.RUnlock()

	existing := make(map[entities.DedupKey]struct{})
	for _, k := range keys {
		if db.hasKeyLocked(userID, k) || t.hasPending(userID, k) {
			existing[k] = struct{}{}
		}
	}
	return existing, nil
}

func (t *memTx) hasPending(userID int64, k entities.DedupKey) bool {
	for _, d := range t.deposits {
		if d.UserID == userID && d.Key() == k {
			return true
		}
	}
	return false
}

func (t *memTx) RecordNewDeposits(ctx context.Context, userID int64, deposits []entities.Deposit, newLast string) ([]entities.Deposit, error) {
	t.store.record("RecordNewDeposits", userID, deposits, newLast)
	if t.store.RecordNewDepositsFunc != nil {
		if err := t.store.RecordNewDepositsFunc(ctx, userID, deposits, newLast); err != nil {
			return nil, err
		}
	}

	db := t.store.db
	db.mu.RLock()
	inserted := make([]entities.Deposit, 0, len(deposits))
	for _, d := range deposits {
		d.UserID = userID
		if db.hasKeyLocked(userID, d.Key()) || t.hasPending(userID, d.Key()) {
			continue
		}
		t.deposits = append(t.deposits, d)
		inserted = append(inserted, d)
	}
	db.mu.RUnlock()

	if newLast != "" {
		if err := t.AdvanceLastTimestamp(ctx, userID, newLast); err != nil {
			return nil, err
		}
	}
	return inserted, nil
}

func (t *memTx) AdvanceLastTimestamp(ctx context.Context, userID int64, timestamp string) error {
	t.store.record("AdvanceLastTimestamp", userID, timestamp)

	current, _ := t.LoadLastTimestamp(ctx, userID)
	if current == nil || *current < timestamp {
		t.marks[userID] = timestamp
	}
	return nil
}

func (t *memTx) commit() {
	db := t.store.db
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, d := range t.deposits {
		db.nextID++
		d.ID = db.nextID
		db.deposits = append(db.deposits, d)
	}
	for userID, ts := range t.marks {
		ts := ts
		if cur := db.marks[userID]; cur == nil || *cur < ts {
			db.marks[userID] = &ts
		}
	}
}

// MockFetcher serves canned deposits and counts calls
type MockFetcher struct {
	mu       sync.Mutex
	deposits []entities.Deposit

	FetchFunc func(ctx context.Context, wallet string, tokens []string) ([]entities.Deposit, error)
	Calls     []MockCall
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Calls: make([]MockCall, 0)}
}

// SetDeposits replaces the upstream dataset
func (m *MockFetcher) SetDeposits(deposits ...entities.Deposit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits = append([]entities.Deposit(nil), deposits...)
}

func (m *MockFetcher) Fetch(ctx context.Context, wallet string, tokens []string) ([]entities.Deposit, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Fetch", Args: []interface{}{wallet, tokens}})
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, wallet, tokens)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Deposit(nil), m.deposits...), nil
}

// CallCount returns the number of Fetch calls
func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockNotifier records delivered deposits per user
type MockNotifier struct {
	mu        sync.Mutex
	Delivered map[int64][]entities.Deposit
	Err       error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Delivered: make(map[int64][]entities.Deposit)}
}

func (m *MockNotifier) NotifyDeposits(ctx context.Context, userID int64, deposits []entities.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Delivered[userID] = append(m.Delivered[userID], deposits...)
	return nil
}

// DeliveredTo returns what was delivered to a user
func (m *MockNotifier) DeliveredTo(userID int64) []entities.Deposit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Deposit(nil), m.Delivered[userID]...)
}

// MockLease is an in-process sync lease
type MockLease struct {
	mu   sync.Mutex
	held map[int64]bool
	Err  error
}

func NewMockLease() *MockLease {
	return &MockLease{held: make(map[int64]bool)}
}

func (m *MockLease) Acquire(ctx context.Context, userID int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	if m.held[userID] {
		return nil, false, nil
	}
	m.held[userID] = true
	return func() {
		m.mu.Lock()
		delete(m.held, userID)
		m.mu.Unlock()
	}, true, nil
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mu sync.RWMutex

	Healthy bool
	Error   error
	Calls   []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	var err error
	if !healthy {
		err = errors.New("health check failed")
	}
	return &MockHealthChecker{
		Healthy: healthy,
		Error:   err,
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck", Args: nil})
	m.mu.Unlock()

	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Healthy = healthy
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}

// ErrCacheMiss is returned by MockCache for absent keys
var ErrCacheMiss = errors.New("cache miss")

// MockCache is an in-memory cache storing JSON like the Redis cache does
type MockCache struct {
	mu    sync.Mutex
	items map[string][]byte
	Calls []MockCall
}

func NewMockCache() *MockCache {
	return &MockCache{items: make(map[string][]byte), Calls: make([]MockCall, 0)}
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "Get", Args: []interface{}{key}})

	data, ok := m.items[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "SetWithTTL", Args: []interface{}{key, ttl}})
	m.items[key] = data
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "Delete", Args: []interface{}{key}})
	delete(m.items, key)
	return nil
}

// DeletePattern removes keys matching a glob, like Redis SCAN MATCH
func (m *MockCache) DeletePattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "DeletePattern", Args: []interface{}{pattern}})
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
		}
	}
	return nil
}

// Has reports whether key is cached
func (m *MockCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}

// MockSymbolResolver serves token symbols from a map
type MockSymbolResolver struct {
	Symbols map[string]string
	Err     error
}

func (m *MockSymbolResolver) Symbol(ctx context.Context, tokenAddress string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	sym, ok := m.Symbols[tokenAddress]
	if !ok {
		return "", errors.New("no symbol")
	}
	return sym, nil
}
