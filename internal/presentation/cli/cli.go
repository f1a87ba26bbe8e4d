// Package cli implements trackerctl, the operator command line for the deposit tracker.
package cli

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

// Accounts manages users, wallets and monitored tokens
type Accounts interface {
	Register(ctx context.Context, userID int64) (bool, error)
	DeleteUser(ctx context.Context, userID int64) error
	SetWallet(ctx context.Context, userID int64, wallet string) (string, error)
	AddToken(ctx context.Context, userID int64, tokenAddress, symbol string) (*services.TokenDTO, error)
	RemoveToken(ctx context.Context, userID int64, tokenAddress string) (bool, error)
	ClearTokens(ctx context.Context, userID int64) (int64, error)
	ListTokens(ctx context.Context, userID int64) (*services.TokenListResponse, error)
}

// Syncer runs and resets a single user's sync
type Syncer interface {
	Sync(ctx context.Context, userID int64) ([]entities.Deposit, error)
	Reset(ctx context.Context, userID int64) error
}

// Poller runs one scheduler cycle over every pollable user
type Poller interface {
	RunOnce(ctx context.Context) (*services.CycleResult, error)
}

// Migrator applies and rolls back schema migrations
type Migrator interface {
	Up() error
	Down(steps int) error
}

// Services are the dependencies of the data commands
type Services struct {
	Accounts Accounts
	Syncer   Syncer
	Poller   Poller
}

// Opener connects the data commands' dependencies; close releases them
type Opener func(ctx context.Context) (svc *Services, close func(), err error)

// NewApp builds the trackerctl command tree. Migrations run without opening services.
func NewApp(open Opener, migrator Migrator, out io.Writer) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "trackerctl",
		Usage:                 "trackerctl [command] [flags]",
		Description:           "Operator commands for the deposit tracker: schema, users, tokens and syncs.",
		Writer:                out,
		Commands: []*cli.Command{
			migrateCommand(migrator, out),
			userCommand(open, out),
			walletCommand(open, out),
			tokenCommand(open, out),
			syncCommand(open, out),
			resetCommand(open, out),
		},
	}
}

// Run executes trackerctl with args
func Run(ctx context.Context, open Opener, migrator Migrator, out io.Writer, args []string) error {
	return NewApp(open, migrator, out).Run(ctx, args)
}

// withServices opens the services for the duration of fn
func withServices(ctx context.Context, open Opener, fn func(*Services) error) error {
	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(svc)
}

func userFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:     "user",
		Usage:    "Telegram user id",
		Required: true,
	}
}
