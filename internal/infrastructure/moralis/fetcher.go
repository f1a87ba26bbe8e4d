package moralis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/pkg/address"
	"github.com/bimakw/deposit-tracker/internal/pkg/httpclient"
)

// maxErrorBody bounds how much of an error response is kept for logs
const maxErrorBody = 512

// ErrCursorLoop is wrapped in the UpstreamError returned when the API hands
// back a cursor it already served, which would otherwise page forever
var ErrCursorLoop = errors.New("pagination cursor repeated")

// Fetcher reads a wallet's incoming ERC-20 transfers from the indexing API
type Fetcher struct {
	client *retryablehttp.Client
	config config.MoralisConfig
	logger *zap.Logger
}

// NewFetcher creates a new deposit fetcher
func NewFetcher(cfg config.MoralisConfig, logger *zap.Logger) *Fetcher {
	client := httpclient.New(
		httpclient.WithTimeout(cfg.RequestTimeout),
		httpclient.WithRetryMax(cfg.MaxRetries),
		httpclient.WithRetryWaitMin(cfg.RetryWaitMin),
		httpclient.WithRetryWaitMax(cfg.RetryWaitMax),
		httpclient.WithLogger(logger.Named("moralis_http")),
	)
	// Hand the final response back so the status and body reach UpstreamError
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Fetcher{
		client: client,
		config: cfg,
		logger: logger,
	}
}

type historyPage struct {
	Result []historyRecord `json:"result"`
	Cursor *string         `json:"cursor"`
}

type historyRecord struct {
	Hash           string          `json:"hash"`
	BlockTimestamp string          `json:"block_timestamp"`
	ERC20Transfers []erc20Transfer `json:"erc20_transfers"`
}

type erc20Transfer struct {
	ToAddress      *string `json:"to_address"`
	FromAddress    string  `json:"from_address"`
	Address        *string `json:"address"`
	Value          string  `json:"value"`
	ValueFormatted string  `json:"value_formatted"`
	TokenSymbol    string  `json:"token_symbol"`
}

// Fetch returns every incoming transfer to wallet for the monitored tokens,
// following the pagination cursor until the API reports no further pages
func (f *Fetcher) Fetch(ctx context.Context, wallet string, monitoredTokens []string) ([]entities.Deposit, error) {
	wallet = strings.ToLower(wallet)
	monitored := make(map[string]struct{}, len(monitoredTokens))
	for _, t := range monitoredTokens {
		monitored[strings.ToLower(t)] = struct{}{}
	}

	var (
		deposits []entities.Deposit
		cursor   string
		pages    int
		dropped  int
		seen     = make(map[string]struct{})
	)

	for {
		page, err := f.fetchPage(ctx, wallet, cursor)
		if err != nil {
			return nil, err
		}
		pages++

		for _, rec := range page.Result {
			got, bad := extractDeposits(rec, wallet, monitored)
			deposits = append(deposits, got...)
			dropped += bad
		}

		if page.Cursor == nil || *page.Cursor == "" {
			break
		}
		if f.config.MaxPages > 0 && pages >= f.config.MaxPages {
			f.logger.Warn("Page limit reached, history truncated",
				zap.String("wallet", wallet),
				zap.Int("pages", pages),
			)
			break
		}
		cursor = *page.Cursor
		if _, ok := seen[cursor]; ok {
			return nil, &domain.UpstreamError{Err: fmt.Errorf("%w after %d pages", ErrCursorLoop, pages)}
		}
		seen[cursor] = struct{}{}
	}

	if dropped > 0 {
		f.logger.Debug("Dropped malformed transfers",
			zap.String("wallet", wallet),
			zap.Int("dropped", dropped),
		)
	}

	f.logger.Debug("Fetched deposits",
		zap.String("wallet", wallet),
		zap.Int("pages", pages),
		zap.Int("deposit_count", len(deposits)),
	)

	return deposits, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, wallet, cursor string) (*historyPage, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.pageURL(wallet, cursor), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-Key", f.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var page historyPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode wallet history: %w", err),
		}
	}

	return &page, nil
}

func (f *Fetcher) pageURL(wallet, cursor string) string {
	q := url.Values{}
	q.Set("chain", f.config.Chain)
	q.Set("order", "DESC")
	q.Set("limit", strconv.Itoa(f.config.PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	base := strings.TrimRight(f.config.BaseURL, "/")
	return fmt.Sprintf("%s/wallets/%s/history?%s", base, url.PathEscape(wallet), q.Encode())
}

// extractDeposits flattens a history record into deposits for wallet.
// Transfers missing a destination or token address, and records without a
// well-formed tx hash or timestamp, are dropped and counted.
func extractDeposits(rec historyRecord, wallet string, monitored map[string]struct{}) ([]entities.Deposit, int) {
	var (
		out     []entities.Deposit
		dropped int
	)

	for _, t := range rec.ERC20Transfers {
		if t.ToAddress == nil || *t.ToAddress == "" || t.Address == nil || *t.Address == "" {
			dropped++
			continue
		}

		to := strings.ToLower(*t.ToAddress)
		token := strings.ToLower(*t.Address)
		if to != wallet {
			continue
		}
		if _, ok := monitored[token]; !ok {
			continue
		}
		if !address.IsTxHash(rec.Hash) || rec.BlockTimestamp == "" {
			dropped++
			continue
		}

		symbol := t.TokenSymbol
		if symbol == "" {
			symbol = entities.UnknownSymbol
		}

		out = append(out, entities.Deposit{
			TxHash:          strings.ToLower(rec.Hash),
			TokenAddress:    token,
			TokenSymbol:     symbol,
			AmountRaw:       t.Value,
			AmountFormatted: t.ValueFormatted,
			BlockTimestamp:  rec.BlockTimestamp,
			FromAddress:     strings.ToLower(t.FromAddress),
		})
	}

	return out, dropped
}
