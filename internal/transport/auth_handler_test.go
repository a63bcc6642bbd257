package transport

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"price-catalog/internal/middleware"
	"price-catalog/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthRouter(t *testing.T, limiter func(http.Handler) http.Handler) http.Handler {
	t.Helper()

	checker, err := service.NewBcryptChecker("admin123")
	require.NoError(t, err)

	r := chi.NewRouter()
	NewAuthHandler(service.NewAuthService(checker, service.NewStaticTokenIssuer("mock-token")), zap.NewNop()).
		RegisterRoutes(r, limiter)
	return r
}

func TestLogin(t *testing.T) {
	router := newAuthRouter(t, nil)

	w := do(t, router, http.MethodPost, "/api/login", "application/json", `{"password":"admin123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"token":"mock-token"}`, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/login", "application/json", `{"password":"guess"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Token)
}

func TestLogin_EmptyPasswordIsRejectedAsWrong(t *testing.T) {
	router := newAuthRouter(t, nil)

	for _, body := range []string{`{}`, `{"password":""}`, `{"password":null}`} {
		w := do(t, router, http.MethodPost, "/api/login", "application/json", body)
		require.Equal(t, http.StatusUnauthorized, w.Code, body)
		assert.JSONEq(t, `{"success":false,"message":"Invalid password"}`, w.Body.String(), body)
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	router := newAuthRouter(t, nil)

	for _, body := range []string{`not json`, ``, `{"password":`} {
		w := do(t, router, http.MethodPost, "/api/login", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid request body", errorMessage(t, w), body)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := middleware.RateLimitMiddleware(client, middleware.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:login",
	}, zap.NewNop())
	router := newAuthRouter(t, limiter)

	for i := 0; i < 2; i++ {
		w := do(t, router, http.MethodPost, "/api/login", "application/json", `{"password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	// Even the right password is refused once the window is spent
	w := do(t, router, http.MethodPost, "/api/login", "application/json", `{"password":"admin123"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
