package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/bimakw/deposit-tracker/internal/pkg/address"
)

func migrateCommand(migrator Migrator, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back schema migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := migrator.Up(); err != nil {
						return err
					}
					fmt.Fprintln(out, "schema is up to date")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "Roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "Number of migrations to roll back", Value: 1},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					steps := int(c.Int("steps"))
					if err := migrator.Down(steps); err != nil {
						return err
					}
					fmt.Fprintf(out, "rolled back %d migration(s)\n", steps)
					return nil
				},
			},
		},
	}
}

func userCommand(open Opener, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Register or delete users",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a user",
				Flags: []cli.Flag{userFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						created, err := svc.Accounts.Register(ctx, userID)
						if err != nil {
							return err
						}
						if created {
							fmt.Fprintf(out, "registered user %d\n", userID)
						} else {
							fmt.Fprintf(out, "user %d already exists\n", userID)
						}
						return nil
					})
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a user with their tokens, deposits and sync state",
				Flags: []cli.Flag{userFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						if err := svc.Accounts.DeleteUser(ctx, userID); err != nil {
							return err
						}
						fmt.Fprintf(out, "deleted user %d\n", userID)
						return nil
					})
				},
			},
		},
	}
}

func walletCommand(open Opener, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Manage a user's wallet",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Set the wallet a user receives deposits on",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "address", Usage: "Wallet address", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						if _, err := svc.Accounts.Register(ctx, userID); err != nil {
							return err
						}
						wallet, err := svc.Accounts.SetWallet(ctx, userID, c.String("address"))
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "wallet for user %d set to %s\n", userID, wallet)
						return nil
					})
				},
			},
		},
	}
}

func tokenCommand(open Opener, out io.Writer) *cli.Command {
	tokenFlag := func() *cli.StringFlag {
		return &cli.StringFlag{Name: "address", Usage: "ERC-20 contract address", Required: true}
	}

	return &cli.Command{
		Name:  "token",
		Usage: "Manage a user's monitored tokens",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Start monitoring a token",
				Flags: []cli.Flag{
					userFlag(),
					tokenFlag(),
					&cli.StringFlag{Name: "symbol", Usage: "Token symbol; looked up on-chain when omitted"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						token, err := svc.Accounts.AddToken(ctx, userID, c.String("address"), c.String("symbol"))
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "monitoring %s (%s) for user %d\n", token.TokenSymbol, token.TokenAddress, userID)
						return nil
					})
				},
			},
			{
				Name:  "remove",
				Usage: "Stop monitoring a token",
				Flags: []cli.Flag{userFlag(), tokenFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						removed, err := svc.Accounts.RemoveToken(ctx, userID, c.String("address"))
						if err != nil {
							return err
						}
						if !removed {
							return fmt.Errorf("token %s is not monitored for user %d", c.String("address"), userID)
						}
						fmt.Fprintf(out, "stopped monitoring %s for user %d\n", c.String("address"), userID)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Stop monitoring every token",
				Flags: []cli.Flag{userFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						n, err := svc.Accounts.ClearTokens(ctx, userID)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "removed %d token(s) for user %d\n", n, userID)
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List monitored tokens",
				Flags: []cli.Flag{userFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					userID := c.Int("user")
					return withServices(ctx, open, func(svc *Services) error {
						list, err := svc.Accounts.ListTokens(ctx, userID)
						if err != nil {
							return err
						}
						if len(list.Data) == 0 {
							fmt.Fprintf(out, "user %d monitors no tokens\n", userID)
							return nil
						}
						for _, t := range list.Data {
							fmt.Fprintf(out, "%s\t%s\n", t.TokenAddress, t.TokenSymbol)
						}
						return nil
					})
				},
			},
		},
	}
}

func syncCommand(open Opener, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync one user, or run a full polling cycle",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "user", Usage: "Telegram user id"},
			&cli.BoolFlag{Name: "all", Usage: "Sync every user with a wallet and notify them"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			all := c.Bool("all")
			userID := c.Int("user")
			if all == (userID != 0) {
				return errors.New("exactly one of --user or --all is required")
			}

			return withServices(ctx, open, func(svc *Services) error {
				if all {
					result, err := svc.Poller.RunOnce(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "cycle %s: %d user(s), %d failed, %d new deposit(s)\n",
						result.CycleID, result.Users, result.Failed, result.DepositsFound)
					return nil
				}

				deposits, err := svc.Syncer.Sync(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d new deposit(s) for user %d\n", len(deposits), userID)
				for _, d := range deposits {
					fmt.Fprintf(out, "%s\t%s %s\tfrom %s\t%s\n",
						d.BlockTimestamp, d.AmountFormatted, d.TokenSymbol, address.Short(d.FromAddress), d.TxHash)
				}
				return nil
			})
		},
	}
}

func resetCommand(open Opener, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Clear a user's sync mark; recorded deposits are kept and never redelivered",
		Flags: []cli.Flag{userFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			userID := c.Int("user")
			return withServices(ctx, open, func(svc *Services) error {
				if err := svc.Syncer.Reset(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintf(out, "sync state reset for user %d\n", userID)
				return nil
			})
		},
	}
}
