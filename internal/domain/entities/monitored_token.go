package entities

import (
	"time"
)

// MonitoredToken is a token contract a user wants deposit notifications for
type MonitoredToken struct {
	UserID       int64     `db:"user_id"`
	TokenAddress string    `db:"token_address"`
	TokenSymbol  *string   `db:"token_symbol"`
	CreatedAt    time.Time `db:"created_at"`
}

// Symbol returns the display symbol, falling back to UNKNOWN
func (t MonitoredToken) Symbol() string {
	if t.TokenSymbol == nil || *t.TokenSymbol == "" {
		return UnknownSymbol
	}
	return *t.TokenSymbol
}

// TokenAddresses extracts the contract addresses from a token list
func TokenAddresses(tokens []MonitoredToken) []string {
	addrs := make([]string, len(tokens))
	for i, t := range tokens {
		addrs[i] = t.TokenAddress
	}
	return addrs
}
