package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	infratelegram "github.com/bimakw/deposit-tracker/internal/infrastructure/telegram"
)

// commandTimeout bounds a single command, including an on-demand sync
const commandTimeout = 2 * time.Minute

// Bot routes Telegram commands to Commands
type Bot struct {
	bot      *telebot.Bot
	commands *Commands
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewBot creates a new command bot
func NewBot(b *telebot.Bot, commands *Commands, logger *zap.Logger) *Bot {
	return &Bot{
		bot:      b,
		commands: commands,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start registers handlers and polls until Stop is called
func (b *Bot) Start() {
	b.registerHandlers()
	b.logger.Info("Telegram bot started", zap.String("username", b.bot.Me.Username))

	go b.bot.Start()

	<-b.stopCh
	b.bot.Stop()
	b.logger.Info("Telegram bot stopped")
}

// Stop signals the bot to stop polling
func (b *Bot) Stop() {
	close(b.stopCh)
}

func (b *Bot) registerHandlers() {
	b.handle("/start", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.Start(ctx, m.Sender.ID)
	})
	b.handle("/help", func(ctx context.Context, m *telebot.Message) []Reply {
		return []Reply{{Text: helpText}}
	})
	b.handle("/setwallet", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.SetWallet(ctx, m.Sender.ID, m.Payload)
	})
	b.handle("/addtoken", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.AddToken(ctx, m.Sender.ID, m.Payload)
	})
	b.handle("/removetoken", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.RemoveToken(ctx, m.Sender.ID, m.Payload)
	})
	b.handle("/cleartokens", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.ClearTokens(ctx, m.Sender.ID)
	})
	b.handle("/tokens", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.Tokens(ctx, m.Sender.ID)
	})
	b.handle("/check", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.Check(ctx, m.Sender.ID)
	})
	b.handle("/reset", func(ctx context.Context, m *telebot.Message) []Reply {
		return b.commands.Reset(ctx, m.Sender.ID)
	})
}

func (b *Bot) handle(command string, fn func(ctx context.Context, m *telebot.Message) []Reply) {
	b.bot.Handle(command, func(m *telebot.Message) {
		if m.Sender == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		for _, r := range fn(ctx, m) {
			b.send(m.Sender, r)
		}
	})
}

func (b *Bot) send(to *telebot.User, r Reply) {
	var err error
	if r.Markdown {
		_, err = b.bot.Send(to, r.Text, infratelegram.MarkdownOptions())
	} else {
		_, err = b.bot.Send(to, r.Text)
	}
	if err != nil {
		b.logger.Error("Error sending message",
			zap.Int64("user_id", to.ID),
			zap.Error(err),
		)
	}
}
