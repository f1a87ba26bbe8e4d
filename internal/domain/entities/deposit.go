package entities

import (
	"time"
)

// UnknownSymbol is used when neither the user nor the indexer supplied a symbol
const UnknownSymbol = "UNKNOWN"

// Deposit is an incoming ERC-20 transfer to a user's wallet for a monitored token
type Deposit struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	TxHash          string    `db:"tx_hash"`
	TokenAddress    string    `db:"token_address"`
	TokenSymbol     string    `db:"token_symbol"`
	AmountRaw       string    `db:"amount"`           // Raw integer amount
	AmountFormatted string    `db:"amount_formatted"` // Human readable (with decimals)
	BlockTimestamp  string    `db:"block_timestamp"`  // ISO-8601, sorts chronologically
	FromAddress     string    `db:"from_address"`
	CreatedAt       time.Time `db:"created_at"`
}

// Key returns the dedup identity of the deposit within its user
func (d Deposit) Key() DedupKey {
	return DedupKey{TxHash: d.TxHash, TokenAddress: d.TokenAddress}
}

// DedupKey identifies a recorded deposit for a single user.
// One transaction can carry several monitored tokens, so the hash alone is not enough.
type DedupKey struct {
	TxHash       string
	TokenAddress string
}

// DepositFilter contains filters for querying a user's deposit history
type DepositFilter struct {
	UserID       int64
	TokenAddress *string
	Limit        int
	Offset       int
}

// DefaultDepositFilter returns a filter with sensible defaults
func DefaultDepositFilter(userID int64) DepositFilter {
	return DepositFilter{
		UserID: userID,
		Limit:  50,
		Offset: 0,
	}
}

// MaxTimestamp returns the latest block timestamp among deposits, or "" for none
func MaxTimestamp(deposits []Deposit) string {
	var latest string
	for _, d := range deposits {
		if d.BlockTimestamp > latest {
			latest = d.BlockTimestamp
		}
	}
	return latest
}
