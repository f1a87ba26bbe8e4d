package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("uses defaults when no options are provided", func(t *testing.T) {
		client := New()

		require.NotNil(t, client)
		assert.Nil(t, client.Logger)
		assert.Equal(t, 5*time.Second, client.HTTPClient.Timeout)
		assert.Equal(t, 1*time.Second, client.RetryWaitMin)
		assert.Equal(t, 5*time.Second, client.RetryWaitMax)
		assert.Equal(t, 2, client.RetryMax)
	})

	t.Run("applies options", func(t *testing.T) {
		client := New(
			WithTimeout(30*time.Second),
			WithRetryWaitMin(4*time.Second),
			WithRetryWaitMax(10*time.Second),
			WithRetryMax(3),
			WithLogger(zap.NewNop()),
		)

		assert.Equal(t, 30*time.Second, client.HTTPClient.Timeout)
		assert.Equal(t, 4*time.Second, client.RetryWaitMin)
		assert.Equal(t, 10*time.Second, client.RetryWaitMax)
		assert.Equal(t, 3, client.RetryMax)
		assert.IsType(t, zapLeveledLogger{}, client.Logger)
	})
}

func TestRetryBehaviour(t *testing.T) {
	t.Run("retries server errors then succeeds", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&hits, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := New(WithRetryWaitMin(time.Millisecond), WithRetryWaitMax(2*time.Millisecond))
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client := New(WithRetryWaitMin(time.Millisecond), WithRetryWaitMax(2*time.Millisecond))
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("caps Retry-After at the max wait", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&hits, 1) == 1 {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := New(WithRetryWaitMin(time.Millisecond), WithRetryWaitMax(2*time.Millisecond))
		start := time.Now()
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestCappedBackoff(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Retry-After": []string{"3600"}},
	}
	assert.Equal(t, 10*time.Second, cappedBackoff(4*time.Second, 10*time.Second, 0, resp))

	// Without a header the exponential schedule is kept below the cap
	assert.Equal(t, 4*time.Second, cappedBackoff(4*time.Second, 10*time.Second, 0, nil))
	assert.Equal(t, 10*time.Second, cappedBackoff(4*time.Second, 10*time.Second, 5, nil))
}
