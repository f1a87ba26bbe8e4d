package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	infratelegram "github.com/bimakw/deposit-tracker/internal/infrastructure/telegram"
)

// Accounts manages the user's wallet and monitored tokens
type Accounts interface {
	Register(ctx context.Context, userID int64) (bool, error)
	SetWallet(ctx context.Context, userID int64, wallet string) (string, error)
	AddToken(ctx context.Context, userID int64, tokenAddress, symbol string) (*services.TokenDTO, error)
	RemoveToken(ctx context.Context, userID int64, tokenAddress string) (bool, error)
	ClearTokens(ctx context.Context, userID int64) (int64, error)
	ListTokens(ctx context.Context, userID int64) (*services.TokenListResponse, error)
}

// Syncer runs on-demand syncs for a user
type Syncer interface {
	CheckWallet(ctx context.Context, userID int64) error
	Sync(ctx context.Context, userID int64) ([]entities.Deposit, error)
	Reset(ctx context.Context, userID int64) error
}

// Reply is one outgoing chat message
type Reply struct {
	Text     string
	Markdown bool
}

const (
	helpText = `/setwallet <address> - Set the wallet to watch
/addtoken <address> [symbol] - Monitor a token
/removetoken <address> - Stop monitoring a token
/cleartokens - Stop monitoring all tokens
/tokens - List monitored tokens
/check - Check for new deposits now
/reset - Re-scan history on the next check`

	tryAgainText = "Something went wrong, please try again later."
)

// Commands implements the bot's command logic independently of the transport
type Commands struct {
	accounts      Accounts
	syncer        Syncer
	explorerTxURL string
	logger        *zap.Logger
}

// NewCommands creates the command set
func NewCommands(accounts Accounts, syncer Syncer, explorerTxURL string, logger *zap.Logger) *Commands {
	return &Commands{
		accounts:      accounts,
		syncer:        syncer,
		explorerTxURL: explorerTxURL,
		logger:        logger,
	}
}

func text(format string, args ...interface{}) []Reply {
	return []Reply{{Text: fmt.Sprintf(format, args...)}}
}

// Start registers the user
func (c *Commands) Start(ctx context.Context, userID int64) []Reply {
	if _, err := c.accounts.Register(ctx, userID); err != nil {
		return c.fail("start", userID, err)
	}
	return text("Welcome to the Deposit Tracker!\n\n%s", helpText)
}

// SetWallet handles /setwallet <address>
func (c *Commands) SetWallet(ctx context.Context, userID int64, payload string) []Reply {
	args := strings.Fields(payload)
	if len(args) != 1 {
		return text("Usage: /setwallet <address>")
	}

	wallet, err := c.accounts.SetWallet(ctx, userID, args[0])
	if errors.Is(err, domain.ErrValidation) {
		return text("That is not a valid wallet address.")
	}
	if err != nil {
		return c.fail("setwallet", userID, err)
	}
	return text("Wallet set: %s", wallet)
}

// AddToken handles /addtoken <address> [symbol]
func (c *Commands) AddToken(ctx context.Context, userID int64, payload string) []Reply {
	args := strings.Fields(payload)
	if len(args) < 1 || len(args) > 2 {
		return text("Usage: /addtoken <address> [symbol]")
	}

	symbol := ""
	if len(args) == 2 {
		symbol = args[1]
	}

	token, err := c.accounts.AddToken(ctx, userID, args[0], symbol)
	if errors.Is(err, domain.ErrValidation) {
		return text("That is not a valid token address.")
	}
	if err != nil {
		return c.fail("addtoken", userID, err)
	}
	return text("Now monitoring %s (%s)", token.TokenSymbol, token.TokenAddress)
}

// RemoveToken handles /removetoken <address>
func (c *Commands) RemoveToken(ctx context.Context, userID int64, payload string) []Reply {
	args := strings.Fields(payload)
	if len(args) != 1 {
		return text("Usage: /removetoken <address>")
	}

	removed, err := c.accounts.RemoveToken(ctx, userID, args[0])
	if errors.Is(err, domain.ErrValidation) {
		return text("That is not a valid token address.")
	}
	if err != nil {
		return c.fail("removetoken", userID, err)
	}
	if !removed {
		return text("You are not monitoring that token.")
	}
	return text("Token removed.")
}

// ClearTokens handles /cleartokens
func (c *Commands) ClearTokens(ctx context.Context, userID int64) []Reply {
	n, err := c.accounts.ClearTokens(ctx, userID)
	if err != nil {
		return c.fail("cleartokens", userID, err)
	}
	return text("Removed %d token(s).", n)
}

// Tokens handles /tokens
func (c *Commands) Tokens(ctx context.Context, userID int64) []Reply {
	list, err := c.accounts.ListTokens(ctx, userID)
	if err != nil {
		return c.fail("tokens", userID, err)
	}
	if len(list.Data) == 0 {
		return text("You are not monitoring any tokens. Use /addtoken <address> [symbol].")
	}

	var b strings.Builder
	b.WriteString("Monitored tokens:")
	for _, t := range list.Data {
		fmt.Fprintf(&b, "\n%s %s", t.TokenSymbol, t.TokenAddress)
	}
	return []Reply{{Text: b.String()}}
}

// Check handles /check: an on-demand sync that replies with any new deposits
func (c *Commands) Check(ctx context.Context, userID int64) []Reply {
	if err := c.syncer.CheckWallet(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNoWalletConfigured) {
			return text("Set a wallet first with /setwallet <address>.")
		}
		return c.fail("check", userID, err)
	}

	deposits, err := c.syncer.Sync(ctx, userID)
	if errors.Is(err, domain.ErrSyncInProgress) {
		return text("A check is already running, please try again in a moment.")
	}
	if err != nil {
		return c.fail("check", userID, err)
	}
	if len(deposits) == 0 {
		return text("No new deposits.")
	}

	replies := make([]Reply, len(deposits))
	for i, d := range deposits {
		replies[i] = Reply{Text: infratelegram.FormatDeposit(d, c.explorerTxURL), Markdown: true}
	}
	return replies
}

// Reset handles /reset
func (c *Commands) Reset(ctx context.Context, userID int64) []Reply {
	if err := c.syncer.Reset(ctx, userID); err != nil {
		return c.fail("reset", userID, err)
	}
	return text("Sync state reset. The next /check re-scans your history; deposits you were already told about are not sent again.")
}

// fail logs the cause and hides it from the user
func (c *Commands) fail(command string, userID int64, err error) []Reply {
	c.logger.Error("Command failed",
		zap.String("command", command),
		zap.Int64("user_id", userID),
		zap.Error(err),
	)
	return text(tryAgainText)
}
