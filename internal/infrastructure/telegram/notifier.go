package telegram

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// Sender is the part of *telebot.Bot used to deliver messages
type Sender interface {
	Send(to telebot.Recipient, what interface{}, options ...interface{}) (*telebot.Message, error)
}

// NewClient creates a long-polling telebot client
func NewClient(cfg config.TelegramConfig) (*telebot.Bot, error) {
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Token,
		Poller: &telebot.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// MarkdownOptions are the send options for formatted deposit messages
func MarkdownOptions() *telebot.SendOptions {
	return &telebot.SendOptions{
		ParseMode:             telebot.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
}

// Notifier delivers deposit notifications to a user's private chat.
// Telegram user ids double as private chat ids.
type Notifier struct {
	sender        Sender
	explorerTxURL string
	logger        *zap.Logger
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(sender Sender, explorerTxURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:        sender,
		explorerTxURL: explorerTxURL,
		logger:        logger,
	}
}

// NotifyDeposits sends one message per deposit. Every deposit is attempted;
// the first failure is returned after the rest were tried.
func (n *Notifier) NotifyDeposits(ctx context.Context, userID int64, deposits []entities.Deposit) error {
	chat := &telebot.Chat{ID: userID}

	var (
		failed   int
		firstErr error
	)
	for _, d := range deposits {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := n.sender.Send(chat, FormatDeposit(d, n.explorerTxURL), MarkdownOptions()); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			n.logger.Warn("Failed to send deposit notification",
				zap.Int64("user_id", userID),
				zap.String("tx_hash", d.TxHash),
				zap.Error(err),
			)
		}
	}

	if firstErr != nil {
		return fmt.Errorf("failed to deliver %d of %d notifications: %w", failed, len(deposits), firstErr)
	}
	return nil
}
