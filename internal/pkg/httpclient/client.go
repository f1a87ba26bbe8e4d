// Package httpclient builds retrying HTTP clients for upstream APIs.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type config struct {
	timeout      time.Duration
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int
	logger       *zap.Logger
}

// Option configures the client returned by New
type Option func(*config)

// New returns a retryablehttp.Client. Defaults: 5s per-request timeout,
// 2 retries, backoff between 1s and 5s, no logging.
// Retries happen on connection errors, 5xx and 429 responses.
func New(opts ...Option) *retryablehttp.Client {
	cfg := config{
		timeout:      5 * time.Second,
		retryWaitMin: 1 * time.Second,
		retryWaitMax: 5 * time.Second,
		retryMax:     2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	if cfg.logger != nil {
		client.Logger = zapLeveledLogger{l: cfg.logger.Sugar()}
	}
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.RetryMax = cfg.retryMax
	client.Backoff = cappedBackoff
	return client
}

// cappedBackoff is retryablehttp.DefaultBackoff with the Retry-After value
// also limited to max, so an upstream header cannot stall a caller
func cappedBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	if wait > max {
		return max
	}
	return wait
}

// WithTimeout sets the timeout of a single request attempt
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryWaitMin sets the minimum backoff between attempts
func WithRetryWaitMin(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = d
	}
}

// WithRetryWaitMax sets the maximum backoff between attempts
func WithRetryWaitMax(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMax = d
	}
}

// WithRetryMax sets the number of retries after the first attempt
func WithRetryMax(n int) Option {
	return func(c *config) {
		c.retryMax = n
	}
}

// WithLogger routes retry diagnostics to logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// zapLeveledLogger adapts zap to retryablehttp.LeveledLogger
type zapLeveledLogger struct {
	l *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = zapLeveledLogger{}

func (z zapLeveledLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z zapLeveledLogger) Info(msg string, kv ...interface{})  { z.l.Infow(msg, kv...) }
func (z zapLeveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z zapLeveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
