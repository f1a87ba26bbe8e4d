package telegram

import (
	"fmt"
	"strings"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
	"github.com/bimakw/deposit-tracker/internal/pkg/address"
)

// markdownV2Special are the characters Telegram requires escaped in MarkdownV2 text
const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdown escapes text for a MarkdownV2 message body
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLinkURL escapes the target of an inline link, where only ')' and '\' are special
func escapeLinkURL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(s)
}

// escapeCode escapes the content of an inline code span
func escapeCode(s string) string {
	return strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(s)
}

// FormatDeposit renders a deposit notification in MarkdownV2
func FormatDeposit(d entities.Deposit, explorerTxURL string) string {
	symbol := EscapeMarkdown(d.TokenSymbol)
	amount := d.AmountFormatted
	if amount == "" {
		amount = d.AmountRaw
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s Deposit\\!*\n", symbol)
	fmt.Fprintf(&b, "Amount: %s %s\n", EscapeMarkdown(amount), symbol)
	fmt.Fprintf(&b, "From: `%s`\n", escapeCode(address.Short(d.FromAddress)))
	if explorerTxURL != "" {
		fmt.Fprintf(&b, "Tx: [View on explorer](%s)\n", escapeLinkURL(explorerTxURL+d.TxHash))
	} else {
		fmt.Fprintf(&b, "Tx: `%s`\n", escapeCode(d.TxHash))
	}
	fmt.Fprintf(&b, "Date: %s", EscapeMarkdown(d.BlockTimestamp))
	return b.String()
}
