package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/bimakw/deposit-tracker/internal/testutil"
)

type sentMessage struct {
	to   string
	text string
	opts []interface{}
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failAt map[int]error
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, options ...interface{}) (*telebot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.sent)
	f.sent = append(f.sent, sentMessage{to: to.Recipient(), text: what.(string), opts: options})
	if err, ok := f.failAt[idx]; ok {
		return nil, err
	}
	return &telebot.Message{}, nil
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"USDC", "USDC"},
		{"1.5", `1\.5`},
		{"2024-01-15T10:30:00.000Z", `2024\-01\-15T10:30:00\.000Z`},
		{"a_b*c", `a\_b\*c`},
		{"[x](y)", `\[x\]\(y\)`},
		{"!#+=|{}~>`", "\\!\\#\\+\\=\\|\\{\\}\\~\\>\\`"},
		{`back\slash`, `back\\slash`},
		{"", ""},
	}

	for _, tt := range tests {
		if got := EscapeMarkdown(tt.input); got != tt.expected {
			t.Errorf("EscapeMarkdown(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatDeposit(t *testing.T) {
	d := testutil.CreateTestDeposit(
		testutil.WithSymbol("MY.ST"),
		testutil.WithAmount("1500000000000000000", "1.5"),
		testutil.WithTxHash(testutil.TxHash(1)),
	)

	msg := FormatDeposit(d, "https://polygonscan.com/tx/")

	lines := strings.Split(msg, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), msg)
	}
	if lines[0] != `*MY\.ST Deposit\!*` {
		t.Errorf("unexpected title %q", lines[0])
	}
	if lines[1] != `Amount: 1\.5 MY\.ST` {
		t.Errorf("unexpected amount line %q", lines[1])
	}
	if lines[2] != "From: `0x11111111...111111`" {
		t.Errorf("unexpected sender line %q", lines[2])
	}
	if lines[3] != "Tx: [View on explorer](https://polygonscan.com/tx/"+testutil.TxHash(1)+")" {
		t.Errorf("unexpected tx line %q", lines[3])
	}
	if lines[4] != `Date: 2024\-01\-15T10:30:00\.000Z` {
		t.Errorf("unexpected date line %q", lines[4])
	}
}

func TestFormatDeposit_RawAmountAndNoExplorer(t *testing.T) {
	d := testutil.CreateTestDeposit(testutil.WithAmount("42", ""))

	msg := FormatDeposit(d, "")

	if !strings.Contains(msg, "Amount: 42 TKN") {
		t.Errorf("expected raw amount fallback, got %q", msg)
	}
	if !strings.Contains(msg, "Tx: `"+d.TxHash+"`") {
		t.Errorf("expected plain hash without explorer, got %q", msg)
	}
}

func TestNotifier_NotifyDeposits(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "https://polygonscan.com/tx/", zap.NewNop())

	deposits := testutil.CreateMultipleDeposits(3)
	if err := n.NotifyDeposits(context.Background(), 777, deposits); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(sender.sent))
	}
	for i, m := range sender.sent {
		if m.to != "777" {
			t.Errorf("message %d: expected chat 777, got %s", i, m.to)
		}
		opts, ok := m.opts[0].(*telebot.SendOptions)
		if !ok || opts.ParseMode != telebot.ModeMarkdownV2 {
			t.Errorf("message %d: expected MarkdownV2 options", i)
		}
	}
}

func TestNotifier_NotifyDeposits_PartialFailure(t *testing.T) {
	sendErr := errors.New("telegram: bot was blocked by the user")
	sender := &fakeSender{failAt: map[int]error{0: sendErr}}
	n := NewNotifier(sender, "", zap.NewNop())

	err := n.NotifyDeposits(context.Background(), 1, testutil.CreateMultipleDeposits(2))
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("expected remaining deposits still attempted, got %d sends", len(sender.sent))
	}
}

func TestNotifier_NotifyDeposits_Cancelled(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.NotifyDeposits(ctx, 1, testutil.CreateMultipleDeposits(2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no sends, got %d", len(sender.sent))
	}
}
