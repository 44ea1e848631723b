package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Second, cfg.DBTxTimeout)
	require.True(t, cfg.InventoryAllowNegativeStock)
	require.True(t, cfg.MaxDiscountPercent.Equal(decimal.NewFromInt(100)))
	require.Equal(t, 2*time.Minute, cfg.OrderCacheTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("INVENTORY_ALLOW_NEGATIVE_STOCK", "false")
	t.Setenv("MAX_DISCOUNT_PERCENT", "25.5")
	t.Setenv("DB_TX_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.InventoryAllowNegativeStock)
	require.True(t, cfg.MaxDiscountPercent.Equal(decimal.RequireFromString("25.5")))
	require.Equal(t, 2*time.Second, cfg.DBTxTimeout)
}

func TestLoadConfigRejectsBadDiscountCap(t *testing.T) {
	t.Setenv("MAX_DISCOUNT_PERCENT", "150")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "test"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"env":"test"`)
}

func TestRouterHealthAndProblemFallbacks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewRouter(RouterParams{Logger: logger, Config: &Config{RateLimitPerMinute: 100}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRateLimitReturnsProblem(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: logger, Config: &Config{RateLimitPerMinute: 1}}) {
		r.Use(mw)
	}
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := &Config{AppAddr: "127.0.0.1:0", AppShutdownTimeout: time.Second}
	srv := NewServer(cfg, http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, cfg, srv, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
