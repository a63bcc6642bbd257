package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"price-catalog/internal/config"
	"price-catalog/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCatalog struct {
	products []*domain.Product
	readyErr error
}

func (s *stubCatalog) List(ctx context.Context) ([]*domain.Product, error) {
	return s.products, nil
}

func (s *stubCatalog) Grouped(ctx context.Context) ([]domain.ItemGroup, error) {
	return domain.GroupByItem(s.products), nil
}

func (s *stubCatalog) Create(ctx context.Context, input domain.ProductInput) (*domain.Product, error) {
	p := &domain.Product{ID: int64(len(s.products) + 1), ItemName: input.ItemName, BrandName: input.BrandName, Price: input.Price, PrevPrice: input.Price}
	s.products = append(s.products, p)
	return p, nil
}

func (s *stubCatalog) Update(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error) {
	return nil, errors.New("not implemented")
}

func (s *stubCatalog) Delete(ctx context.Context, id int64) error {
	return nil
}

func (s *stubCatalog) BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (int, error) {
	return len(inputs), nil
}

func (s *stubCatalog) Ready(ctx context.Context) error {
	return s.readyErr
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test"},
		Auth: config.AuthConfig{
			AdminPassword:   "admin123",
			TokenMode:       config.TokenModeStatic,
			StaticToken:     "mock-token",
			LoginRateLimit:  5,
			LoginRateWindow: time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newTestHandler(t *testing.T, cfg *config.Config, catalog *stubCatalog, redisClient *redis.Client) http.Handler {
	t.Helper()
	auth, err := NewAuthService(cfg.Auth)
	require.NoError(t, err)
	return NewRouter(cfg, zap.NewNop(), Dependencies{Catalog: catalog, Auth: auth, Redis: redisClient})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	catalog := &stubCatalog{}
	h := newTestHandler(t, testConfig(), catalog, nil)

	assert.Equal(t, http.StatusOK, get(h, "/health").Code)
	assert.Equal(t, http.StatusOK, get(h, "/ready").Code)

	catalog.readyErr = errors.New("connection refused")
	w := get(h, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, testConfig(), &stubCatalog{}, nil)

	get(h, "/api/products")
	w := get(h, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/products`)
	assert.Contains(t, body, `service="price-catalog"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	h := newTestHandler(t, cfg, &stubCatalog{}, nil)

	assert.Equal(t, http.StatusNotFound, get(h, "/metrics").Code)
}

func TestTokenGateFollowsConfig(t *testing.T) {
	body := `{"item_name":"Rice","brand_name":"A","price":1}`

	open := newTestHandler(t, testConfig(), &stubCatalog{}, nil)
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body)))
	assert.Equal(t, http.StatusCreated, w.Code)

	cfg := testConfig()
	cfg.Auth.RequireToken = true
	gated := newTestHandler(t, cfg, &stubCatalog{}, nil)

	w = httptest.NewRecorder()
	gated.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer mock-token")
	w = httptest.NewRecorder()
	gated.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusOK, get(gated, "/api/products").Code)
}

func TestLoginRateLimitNeedsRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	cfg.Auth.LoginRateLimit = 1
	h := newTestHandler(t, cfg, &stubCatalog{}, client)

	login := func() int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password":"admin123"}`)))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, login())
	assert.Equal(t, http.StatusTooManyRequests, login())
}

func TestNewAuthService_Modes(t *testing.T) {
	cfg := testConfig().Auth

	_, err := NewAuthService(cfg)
	assert.NoError(t, err)

	cfg.TokenMode = config.TokenModeJWT
	cfg.JWTSecret = "secret"
	auth, err := NewAuthService(cfg)
	require.NoError(t, err)

	token, err := auth.Login(context.Background(), "admin123")
	require.NoError(t, err)
	assert.NotEqual(t, "mock-token", token)
	assert.NoError(t, auth.VerifyToken(token))

	cfg.JWTSecret = ""
	_, err = NewAuthService(cfg)
	assert.Error(t, err)

	cfg.TokenMode = "oauth"
	_, err = NewAuthService(cfg)
	assert.Error(t, err)
}
