package entities

import (
	"time"
)

// User is a tracker subscriber. WalletAddress stays nil until the user sets one.
type User struct {
	ID            int64     `db:"user_id"`
	WalletAddress *string   `db:"wallet_address"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// HasWallet reports whether the user can be polled
func (u *User) HasWallet() bool {
	return u != nil && u.WalletAddress != nil && *u.WalletAddress != ""
}

// Wallet returns the wallet address or an empty string
func (u *User) Wallet() string {
	if !u.HasWallet() {
		return ""
	}
	return *u.WalletAddress
}
