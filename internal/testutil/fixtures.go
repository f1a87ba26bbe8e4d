package testutil

import (
	"fmt"
	"time"

	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// Common test addresses
const (
	WalletAddress = "0xabcabcabcabcabcabcabcabcabcabcabcabcabca"
	TokenAddress  = "0xdefdefdefdefdefdefdefdefdefdefdefdefdefd"
	USDCAddress   = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	SenderAddress = "0x1111111111111111111111111111111111111111"
)

// Block timestamps in the format returned by the indexing API
const (
	T1 = "2024-01-15T10:30:00.000Z"
	T2 = "2024-01-15T11:00:00.000Z"
	T3 = "2024-01-15T12:00:00.000Z"
)

// CreateTestDeposit creates a test deposit with default values
func CreateTestDeposit(opts ...DepositOption) entities.Deposit {
	d := entities.Deposit{
		TxHash:          "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TokenAddress:    TokenAddress,
		TokenSymbol:     "TKN",
		AmountRaw:       "1000000000000000000",
		AmountFormatted: "1",
		BlockTimestamp:  T1,
		FromAddress:     SenderAddress,
	}

	for _, opt := range opts {
		opt(&d)
	}

	return d
}

type DepositOption func(*entities.Deposit)

func WithUserID(id int64) DepositOption {
	return func(d *entities.Deposit) {
		d.UserID = id
	}
}

func WithTxHash(hash string) DepositOption {
	return func(d *entities.Deposit) {
		d.TxHash = hash
	}
}

func WithTokenAddress(addr string) DepositOption {
	return func(d *entities.Deposit) {
		d.TokenAddress = addr
	}
}

func WithSymbol(symbol string) DepositOption {
	return func(d *entities.Deposit) {
		d.TokenSymbol = symbol
	}
}

func WithTimestamp(ts string) DepositOption {
	return func(d *entities.Deposit) {
		d.BlockTimestamp = ts
	}
}

func WithAmount(raw, formatted string) DepositOption {
	return func(d *entities.Deposit) {
		d.AmountRaw = raw
		d.AmountFormatted = formatted
	}
}

func WithFromAddress(addr string) DepositOption {
	return func(d *entities.Deposit) {
		d.FromAddress = addr
	}
}

// TxHash builds a distinct 32-byte hash for index i
func TxHash(i int) string {
	return fmt.Sprintf("0x%064x", i)
}

// CreateMultipleDeposits creates n deposits one minute apart, oldest first
func CreateMultipleDeposits(n int, opts ...DepositOption) []entities.Deposit {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	deposits := make([]entities.Deposit, n)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05.000Z")
		all := append([]DepositOption{WithTxHash(TxHash(i + 1)), WithTimestamp(ts)}, opts...)
		deposits[i] = CreateTestDeposit(all...)
	}
	return deposits
}

// Seed prepares a user with a wallet and one monitored token
func Seed(db *MemoryDB, userID int64) {
	db.AddUser(userID, WalletAddress)
	db.AddToken(userID, TokenAddress)
}
