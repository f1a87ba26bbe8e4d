package ethereum

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/pkg/retry"
)

// Client is a read-only JSON-RPC client used for token metadata lookups
type Client struct {
	client  *ethclient.Client
	retry   retry.Retry
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient dials the RPC endpoint and verifies it answers
func NewClient(ctx context.Context, cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	logger.Info("Connected to Ethereum node", zap.Int64("chain_id", chainID.Int64()))

	return &Client{
		client:  client,
		timeout: cfg.RequestTimeout,
		logger:  logger,
		retry: retry.New(
			retry.WithAttempts(3),
			retry.WithDelay(500*time.Millisecond),
			retry.WithMaxDelay(2*time.Second),
			retry.WithOnRetry(func(attempt uint, err error) {
				logger.Warn("eth_call failed, retrying",
					zap.Uint("attempt", attempt+1),
					zap.Error(err),
				)
			}),
		),
	}, nil
}

// Close closes the RPC connection
func (c *Client) Close() {
	c.client.Close()
}

// HealthCheck verifies the node still answers
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.client.ChainID(ctx); err != nil {
		return fmt.Errorf("ethereum node health check failed: %w", err)
	}
	return nil
}

// CallContract runs eth_call against the latest block
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.retry.Execute(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		out, err = c.client.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", to.Hex(), err)
	}
	return out, nil
}
