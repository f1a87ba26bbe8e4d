package moralis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/domain"
)

const (
	testWallet = "0xabcabcabcabcabcabcabcabcabcabcabcabcabca"
	testToken  = "0xdefdefdefdefdefdefdefdefdefdefdefdefdefd"
	otherToken = "0x1111111111111111111111111111111111111111"
)

func testConfig(baseURL string) config.MoralisConfig {
	return config.MoralisConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Chain:          "polygon",
		PageSize:       1,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryWaitMin:   time.Millisecond,
		RetryWaitMax:   2 * time.Millisecond,
	}
}

func record(hash, ts string, transfers ...map[string]any) map[string]any {
	return map[string]any{
		"hash":            hash,
		"block_timestamp": ts,
		"erc20_transfers": transfers,
	}
}

func transfer(to, token, value string) map[string]any {
	return map[string]any{
		"to_address":      to,
		"from_address":    "0x9999999999999999999999999999999999999999",
		"address":         token,
		"value":           value,
		"value_formatted": value,
		"token_symbol":    "TKN",
	}
}

// txHash left-pads a short hex suffix into a 32-byte transaction hash
func txHash(suffix string) string {
	return "0x" + strings.Repeat("0", 64-len(suffix)) + suffix
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("failed to encode response: %v", err)
	}
}

func TestFetcher_Pagination(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)

		if r.URL.Path != "/wallets/"+testWallet+"/history" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("Missing API key header")
		}
		q := r.URL.Query()
		if q.Get("chain") != "polygon" || q.Get("order") != "DESC" || q.Get("limit") != "1" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}

		switch q.Get("cursor") {
		case "":
			writeJSON(t, w, map[string]any{
				"result": []any{record(txHash("aaa"), "2024-01-03T00:00:00.000Z", transfer(testWallet, testToken, "3"))},
				"cursor": "page2",
			})
		case "page2":
			writeJSON(t, w, map[string]any{
				"result": []any{record(txHash("bbb"), "2024-01-02T00:00:00.000Z", transfer(testWallet, testToken, "2"))},
				"cursor": "page3",
			})
		case "page3":
			writeJSON(t, w, map[string]any{
				"result": []any{record(txHash("ccc"), "2024-01-01T00:00:00.000Z", transfer(testWallet, testToken, "1"))},
				"cursor": nil,
			})
		default:
			t.Errorf("Unexpected cursor %q", q.Get("cursor"))
		}
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop())
	deposits, err := f.Fetch(context.Background(), testWallet, []string{testToken})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(deposits) != 3 {
		t.Fatalf("Expected 3 deposits, got %d", len(deposits))
	}
	if hits != 3 {
		t.Errorf("Expected 3 requests, got %d", hits)
	}
	for i, want := range []string{txHash("aaa"), txHash("bbb"), txHash("ccc")} {
		if deposits[i].TxHash != want {
			t.Errorf("Deposit %d: expected hash %s, got %s", i, want, deposits[i].TxHash)
		}
	}
}

func TestFetcher_MaxPages(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		writeJSON(t, w, map[string]any{
			"result": []any{record(txHash(fmt.Sprint(n)), "2024-01-01T00:00:00.000Z", transfer(testWallet, testToken, "1"))},
			"cursor": "more",
		})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPages = 2

	deposits, err := NewFetcher(cfg, zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(deposits) != 2 || hits != 2 {
		t.Errorf("Expected 2 deposits over 2 pages, got %d over %d", len(deposits), hits)
	}
}

func TestFetcher_RepeatedCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursors []string
		want    int32
	}{
		{"same cursor", []string{"same"}, 2},
		{"cycle", []string{"a", "b", "c"}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&hits, 1)
				writeJSON(t, w, map[string]any{
					"result": []any{record(txHash(fmt.Sprint(n)), "2024-01-01T00:00:00.000Z", transfer(testWallet, testToken, "1"))},
					"cursor": tt.cursors[int(n-1)%len(tt.cursors)],
				})
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.MaxPages = 0

			deposits, err := NewFetcher(cfg, zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})
			if !errors.Is(err, ErrCursorLoop) || !errors.Is(err, domain.ErrUpstream) {
				t.Fatalf("Expected cursor loop upstream error, got %v", err)
			}
			if deposits != nil {
				t.Errorf("Expected no deposits on failure, got %d", len(deposits))
			}
			if got := atomic.LoadInt32(&hits); got != tt.want {
				t.Errorf("Expected %d requests, got %d", tt.want, got)
			}
		})
	}
}

func TestFetcher_Filtering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		missingTo := transfer(testWallet, testToken, "5")
		delete(missingTo, "to_address")
		missingToken := transfer(testWallet, testToken, "6")
		missingToken["address"] = nil
		noSymbol := transfer("0xABCABCABCABCABCABCABCABCABCABCABCABCABCA", "0xDEFDEFDEFDEFDEFDEFDEFDEFDEFDEFDEFDEFDEFD", "7")
		noSymbol["token_symbol"] = ""

		writeJSON(t, w, map[string]any{
			"result": []any{
				record(txHash("AAA"), "2024-01-01T00:00:00.000Z",
					transfer(testWallet, testToken, "1"),
					transfer(testWallet, otherToken, "2"),
					transfer("0x2222222222222222222222222222222222222222", testToken, "3"),
					missingTo,
					missingToken,
					noSymbol,
				),
				record(txHash("bbb"), "2024-01-02T00:00:00.000Z"),
				record("0xnot-a-hash", "2024-01-03T00:00:00.000Z", transfer(testWallet, testToken, "8")),
				record("", "2024-01-03T00:00:00.000Z", transfer(testWallet, testToken, "9")),
			},
		})
	}))
	defer srv.Close()

	deposits, err := NewFetcher(testConfig(srv.URL), zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(deposits) != 2 {
		t.Fatalf("Expected 2 deposits, got %d: %+v", len(deposits), deposits)
	}

	first := deposits[0]
	if first.TxHash != txHash("aaa") || first.TokenAddress != testToken || first.AmountRaw != "1" || first.TokenSymbol != "TKN" {
		t.Errorf("Unexpected first deposit %+v", first)
	}
	if first.BlockTimestamp != "2024-01-01T00:00:00.000Z" {
		t.Errorf("Unexpected timestamp %s", first.BlockTimestamp)
	}

	second := deposits[1]
	if second.TokenSymbol != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN symbol, got %s", second.TokenSymbol)
	}
	if second.TokenAddress != testToken {
		t.Errorf("Expected normalised token address, got %s", second.TokenAddress)
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]any{
			"result": []any{record(txHash("aaa"), "2024-01-01T00:00:00.000Z", transfer(testWallet, testToken, "1"))},
		})
	}))
	defer srv.Close()

	deposits, err := NewFetcher(testConfig(srv.URL), zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(deposits) != 1 {
		t.Errorf("Expected 1 deposit, got %d", len(deposits))
	}
	if hits != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits)
	}
}

func TestFetcher_RetriesExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"message":"internal"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewFetcher(testConfig(srv.URL), zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("Expected upstream error, got %v", err)
	}

	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("Expected *UpstreamError, got %T", err)
	}
	if upErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", upErr.StatusCode)
	}
	if hits != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits)
	}
}

func TestFetcher_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewFetcher(testConfig(srv.URL), zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})

	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 upstream error, got %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected a single attempt, got %d", hits)
	}
}

func TestFetcher_MalformedJSONNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": [`))
	}))
	defer srv.Close()

	_, err := NewFetcher(testConfig(srv.URL), zap.NewNop()).Fetch(context.Background(), testWallet, []string{testToken})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("Expected upstream error, got %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected a single attempt, got %d", hits)
	}
}

func TestFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request expected after cancellation")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(testConfig(srv.URL), zap.NewNop()).Fetch(ctx, testWallet, []string{testToken})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
