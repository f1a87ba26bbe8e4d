package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/application/services"
	"github.com/bimakw/deposit-tracker/internal/config"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/cache"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/database"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/ethereum"
	"github.com/bimakw/deposit-tracker/internal/infrastructure/moralis"
	infratelegram "github.com/bimakw/deposit-tracker/internal/infrastructure/telegram"
	"github.com/bimakw/deposit-tracker/internal/pkg/logger"
	"github.com/bimakw/deposit-tracker/internal/presentation/handlers"
	"github.com/bimakw/deposit-tracker/internal/presentation/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting deposit-tracker",
		zap.String("chain", cfg.Moralis.Chain),
		zap.Duration("poll_interval", cfg.Scheduler.PollInterval),
		zap.Int("worker_count", cfg.Scheduler.WorkerCount),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.URL(), log); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Connect to database
	db, err := database.NewPostgresDB(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Create repositories
	userRepo := database.NewUserRepo(db.DB())
	tokenRepo := database.NewTokenRepo(db.DB())
	syncStore := database.NewSyncStore(db.DB(), log)

	engineOpts := []services.EngineOption{}
	var serviceCache services.Cache
	var cacheChecker, nodeChecker handlers.HealthChecker

	// Connect to Redis (optional): shared cache invalidation and the per-user sync lease
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis, cfg.API.CacheTTL, log)
		if err != nil {
			log.Warn("Failed to connect to Redis, running without cache and sync lease", zap.Error(err))
		} else {
			defer redisCache.Close()
			serviceCache = redisCache
			cacheChecker = redisCache
			engineOpts = append(engineOpts,
				services.WithCache(redisCache),
				services.WithLease(cache.NewSyncLease(redisCache, cfg.Sync.LeaseTTL)),
			)
		}
	}

	// Token symbol lookup (optional)
	var symbols services.SymbolResolver
	if cfg.Ethereum.RPCURL != "" {
		ethClient, err := ethereum.NewClient(ctx, cfg.Ethereum, log)
		if err != nil {
			log.Warn("Failed to connect to Ethereum node, symbols will not be looked up", zap.Error(err))
		} else {
			defer ethClient.Close()
			symbols = ethereum.NewSymbolResolver(ethClient, log)
			nodeChecker = ethClient
		}
	}

	fetcher := moralis.NewFetcher(cfg.Moralis, log)
	engine := services.NewDedupEngine(userRepo, tokenRepo, syncStore, fetcher, cfg.Sync, log, engineOpts...)
	userService := services.NewUserService(userRepo, tokenRepo, symbols, serviceCache, log)

	// Telegram bot and notifier
	var notifier services.Notifier
	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		client, err := infratelegram.NewClient(cfg.Telegram)
		if err != nil {
			log.Fatal("Failed to connect to Telegram", zap.Error(err))
		}
		notifier = infratelegram.NewNotifier(client, cfg.Telegram.ExplorerTxURL, log)

		commands := telegram.NewCommands(userService, engine, cfg.Telegram.ExplorerTxURL, log)
		bot = telegram.NewBot(client, commands, log)
		go bot.Start()
	} else {
		log.Warn("TELEGRAM_TOKEN not set, deposits will be recorded without notifications")
	}

	// Start scheduler
	scheduler := services.NewScheduler(userRepo, engine, notifier, cfg.Scheduler, log)
	scheduler.Start(ctx)

	// Start metrics server
	health := handlers.NewHealthHandler(log,
		handlers.Dependency{Name: "database", Checker: db},
		handlers.Dependency{Name: "cache", Checker: cacheChecker, Optional: true},
		handlers.Dependency{Name: "ethereum", Checker: nodeChecker, Optional: true},
	)
	go startMetricsServer(cfg.Scheduler.MetricsPort, health, log)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Received shutdown signal, stopping tracker...")

	// Graceful shutdown
	cancel()
	scheduler.Stop()
	if bot != nil {
		bot.Stop()
	}

	m := scheduler.GetMetrics()
	log.Info("Tracker stopped",
		zap.Int64("cycles_run", m.CyclesRun),
		zap.Int64("deposits_found", m.DepositsFound),
		zap.Int64("errors", m.ErrorCount),
	)
}

func startMetricsServer(port int, health *handlers.HealthHandler, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.Health)
	mux.HandleFunc("/ready", health.Ready)
	mux.HandleFunc("/live", health.Live)

	addr := fmt.Sprintf(":%d", port)
	log.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Metrics server error", zap.Error(err))
	}
}
