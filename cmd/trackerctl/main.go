package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/database"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/ethereum"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/moralis"
	infratelegram "github.com/bimakw/deposit-tracker/internal/infrastructure/telegram"
	"github.com/bimakw/deposit-tracker/internal/pkg/logger"
	"github.com/bimakw/deposit-tracker/internal/presentation/cli"
)

// migrator runs the embedded migrations against the configured database
type migrator struct {
	url string
	log *zap.Logger
}

func (m migrator) Up() error {
	return database.MigrateUp(m.url, m.log)
}

func (m migrator) Down(steps int) error {
	return database.MigrateDown(m.url, steps, m.log)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Operator output goes to stdout; logs go to stderr so they do not interleave
	cfg.Log.Format = "console"
	cfg.Log.Output = "stderr"
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = cli.Run(ctx, openServices(cfg, log), migrator{url: cfg.Database.URL(), log: log}, os.Stdout, os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openServices(cfg *config.Config, log *zap.Logger) cli.Opener {
	return func(ctx context.Context) (*cli.Services, func(), error) {
		db, err := database.NewPostgresDB(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		closers := []func(){func() { _ = db.Close() }}
		closeAll := func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}

		userRepo := database.NewUserRepo(db.DB())
		tokenRepo := database.NewTokenRepo(db.DB())

		engineOpts := []services.EngineOption{}
		var serviceCache services.Cache
		if cfg.Redis.Enabled {
			redisCache, err := cache.NewRedisCache(ctx, cfg.Redis, cfg.API.CacheTTL, log)
			if err != nil {
				log.Warn("Failed to connect to Redis, running without cache and sync lease", zap.Error(err))
			} else {
				closers = append(closers, func() { _ = redisCache.Close() })
				serviceCache = redisCache
				engineOpts = append(engineOpts,
					services.WithCache(redisCache),
					services.WithLease(cache.NewSyncLease(redisCache, cfg.Sync.LeaseTTL)),
				)
			}
		}

		var symbols services.SymbolResolver
		if cfg.Ethereum.RPCURL != "" {
			ethClient, err := ethereum.NewClient(ctx, cfg.Ethereum, log)
			if err != nil {
				log.Warn("Failed to connect to Ethereum node, symbols will not be looked up", zap.Error(err))
			} else {
				closers = append(closers, ethClient.Close)
				symbols = ethereum.NewSymbolResolver(ethClient, log)
			}
		}

		var notifier services.Notifier
		if cfg.Telegram.Token != "" {
			client, err := infratelegram.NewClient(cfg.Telegram)
			if err != nil {
				log.Warn("Failed to connect to Telegram, sync --all will not notify", zap.Error(err))
			} else {
				notifier = infratelegram.NewNotifier(client, cfg.Telegram.ExplorerTxURL, log)
			}
		}

		engine := services.NewDedupEngine(
			userRepo, tokenRepo, database.NewSyncStore(db.DB(), log),
			moralis.NewFetcher(cfg.Moralis, log), cfg.Sync, log, engineOpts...,
		)

		return &cli.Services{
			Accounts: services.NewUserService(userRepo, tokenRepo, symbols, serviceCache, log),
			Syncer:   engine,
			Poller:   services.NewScheduler(userRepo, engine, notifier, cfg.Scheduler, log),
		}, closeAll, nil
	}
}
