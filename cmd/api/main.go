package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
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
	"github.com/bimakw/deposit-tracker/internal/presentation/middleware"
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

	log.Info("Starting deposit-tracker API",
		zap.Int("port", cfg.API.Port),
	)

	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_TOKEN is required to verify dashboard logins")
	}

	ctx := context.Background()

	// Connect to database
	db, err := database.NewPostgresDB(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to Redis cache (optional)
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(ctx, cfg.Redis, cfg.API.CacheTTL, log)
		if err != nil {
			log.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	var serviceCache services.Cache
	var cacheChecker handlers.HealthChecker
	engineOpts := []services.EngineOption{}
	if redisCache != nil {
		serviceCache = redisCache
		cacheChecker = redisCache
		engineOpts = append(engineOpts,
			services.WithCache(redisCache),
			services.WithLease(cache.NewSyncLease(redisCache, cfg.Sync.LeaseTTL)),
		)
	}

	var symbols services.SymbolResolver
	var nodeChecker handlers.HealthChecker
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

	// On-demand syncs notify through the same chat as scheduled ones
	var notifier services.Notifier
	if client, err := infratelegram.NewClient(cfg.Telegram); err != nil {
		log.Warn("Failed to connect to Telegram, on-demand syncs will not notify", zap.Error(err))
	} else {
		notifier = infratelegram.NewNotifier(client, cfg.Telegram.ExplorerTxURL, log)
	}

	// Create repositories
	userRepo := database.NewUserRepo(db.DB())
	tokenRepo := database.NewTokenRepo(db.DB())
	depositRepo := database.NewDepositRepo(db.DB())
	syncStore := database.NewSyncStore(db.DB(), log)

	// Create services
	engine := services.NewDedupEngine(userRepo, tokenRepo, syncStore, moralis.NewFetcher(cfg.Moralis, log), cfg.Sync, log, engineOpts...)
	userService := services.NewUserService(userRepo, tokenRepo, symbols, serviceCache, log)
	depositService := services.NewDepositService(depositRepo, serviceCache, cfg.API.CacheTTL, log)
	statsService := services.NewStatsService(userRepo, depositRepo, serviceCache, cfg.API.CacheTTL, log)

	// Create handlers
	issuer := middleware.NewTokenIssuer(cfg.JWTSigningKey(), cfg.Auth.TokenTTL)
	authHandler := handlers.NewAuthHandler(userService, issuer, cfg.Telegram.Token, cfg.Auth.MaxLoginAge, log)
	meHandler := handlers.NewMeHandler(userService, depositService, engine, notifier, log)
	statsHandler := handlers.NewStatsHandler(statsService, log)
	healthHandler := handlers.NewHealthHandler(log,
		handlers.Dependency{Name: "database", Checker: db},
		handlers.Dependency{Name: "cache", Checker: cacheChecker, Optional: true},
		handlers.Dependency{Name: "ethereum", Checker: nodeChecker, Optional: true},
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

		r.Post("/auth/telegram", authHandler.TelegramLogin)

		r.Route("/api", func(r chi.Router) {
			statsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(issuer, log))
				meHandler.RegisterRoutes(r)
			})
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		log.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
