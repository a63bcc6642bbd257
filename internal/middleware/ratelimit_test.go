package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimitedHandler(t *testing.T, mr *miniredis.Miniredis, limit int) http.Handler {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	config := RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:login",
	}

	return RateLimitMiddleware(redisClient, config, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func loginFrom(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestProperty_RateLimitingBlocksExcessiveAttempts(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("attempts past the limit get 429", prop.ForAll(
		func(limit int, excess int) bool {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("Failed to start miniredis: %v", err)
			}
			defer mr.Close()

			handler := newLimitedHandler(t, mr, limit)

			allowed, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				switch loginFrom(handler, "192.168.1.100:5000").Code {
				case http.StatusOK:
					allowed++
				case http.StatusTooManyRequests:
					blocked++
				}
			}

			return allowed == limit && blocked == excess
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimit_KeyedByIPNotPort(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	handler := newLimitedHandler(t, mr, 2)

	assert.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:2000").Code)
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(handler, "10.0.0.1:3000").Code)

	// A different client has its own window
	assert.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.2:1000").Code)
	assert.True(t, mr.Exists("ratelimit:login:10.0.0.1"))
}

func TestRateLimit_HeadersAndWindowReset(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	handler := newLimitedHandler(t, mr, 1)

	w := loginFrom(handler, "10.0.0.1:1000")
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = loginFrom(handler, "10.0.0.1:1000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1000").Code)
}

func TestRateLimit_FailsOpenWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	handler := newLimitedHandler(t, mr, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1000").Code)
	}
}
