package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/bimakw/deposit-tracker/internal/pkg/validator"
)

// Config holds all configuration for the application
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Indexing API configuration
	Moralis MoralisConfig

	// Ethereum node configuration (optional, used for token symbol lookup)
	Ethereum EthereumConfig

	// Dedup engine configuration
	Sync SyncConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// API server configuration
	API APIConfig

	// Dashboard authentication
	Auth AuthConfig

	// Telegram bot configuration
	Telegram TelegramConfig

	// Logging configuration
	Log LogConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"tracker"`
	Password        string        `envconfig:"DB_PASSWORD" default:"tracker"`
	Name            string        `envconfig:"DB_NAME" default:"deposit_tracker"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25" validate:"min=1"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnectAttempts uint          `envconfig:"DB_CONNECT_ATTEMPTS" default:"10" validate:"min=1"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// RedisConfig holds Redis connection settings.
// KeyPrefix namespaces every key so the tracker can share a Redis database.
type RedisConfig struct {
	Host      string `envconfig:"REDIS_HOST" default:"localhost"`
	Port      int    `envconfig:"REDIS_PORT" default:"6379"`
	Password  string `envconfig:"REDIS_PASSWORD" default:""`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	Enabled   bool   `envconfig:"REDIS_ENABLED" default:"true"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"deposit-tracker:"`
}

// MoralisConfig holds indexing API settings
type MoralisConfig struct {
	BaseURL        string        `envconfig:"MORALIS_BASE_URL" default:"https://deep-index.moralis.io/api/v2.2" validate:"url"`
	APIKey         string        `envconfig:"MORALIS_API_KEY" default:""`
	Chain          string        `envconfig:"MORALIS_CHAIN" default:"polygon" validate:"required"`
	PageSize       int           `envconfig:"MORALIS_PAGE_SIZE" default:"25" validate:"min=1,max=100"`
	MaxPages       int           `envconfig:"MORALIS_MAX_PAGES" default:"1000" validate:"min=0"`
	RequestTimeout time.Duration `envconfig:"MORALIS_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"MORALIS_MAX_RETRIES" default:"2" validate:"min=0"`
	RetryWaitMin   time.Duration `envconfig:"MORALIS_RETRY_WAIT_MIN" default:"4s"`
	RetryWaitMax   time.Duration `envconfig:"MORALIS_RETRY_WAIT_MAX" default:"10s"`
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL         string        `envconfig:"ETH_RPC_URL" default:""`
	RequestTimeout time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"10s"`
}

// SyncConfig holds dedup engine settings
type SyncConfig struct {
	AdvanceStaleMark bool          `envconfig:"SYNC_ADVANCE_STALE_MARK" default:"true"`
	ConflictAttempts uint          `envconfig:"SYNC_CONFLICT_ATTEMPTS" default:"3" validate:"min=1"`
	LeaseTTL         time.Duration `envconfig:"SYNC_LEASE_TTL" default:"2m"`
}

// SchedulerConfig holds polling loop settings
type SchedulerConfig struct {
	PollInterval time.Duration `envconfig:"SCHEDULER_POLL_INTERVAL" default:"24h"`
	WorkerCount  int           `envconfig:"SCHEDULER_WORKER_COUNT" default:"1" validate:"min=1"`
	MetricsPort  int           `envconfig:"SCHEDULER_METRICS_PORT" default:"8080"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`
}

// AuthConfig holds dashboard login settings
type AuthConfig struct {
	// Falls back to the Telegram bot token when empty
	JWTSecret   string        `envconfig:"AUTH_JWT_SECRET" default:""`
	TokenTTL    time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"60m"`
	MaxLoginAge time.Duration `envconfig:"AUTH_MAX_LOGIN_AGE" default:"20m"`
}

// TelegramConfig holds bot settings
type TelegramConfig struct {
	Token         string        `envconfig:"TELEGRAM_TOKEN" default:""`
	PollTimeout   time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"10s"`
	ExplorerTxURL string        `envconfig:"TELEGRAM_EXPLORER_TX_URL" default:"https://polygonscan.com/tx/"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
	Output string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

// Load loads configuration from a .env file (if any) and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := validator.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// JWTSigningKey returns the key used to sign dashboard tokens
func (c *Config) JWTSigningKey() []byte {
	if c.Auth.JWTSecret != "" {
		return []byte(c.Auth.JWTSecret)
	}
	return []byte(c.Telegram.Token)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL used by migrations
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
