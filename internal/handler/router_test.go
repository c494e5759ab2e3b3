package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/middleware"
)

// newRouterForTest はモック依存でフルルーターを構築する。
func newRouterForTest(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.RateLimiter == nil {
		deps.RateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
		t.Cleanup(deps.RateLimiter.Stop)
	}
	if deps.CORSAllowedOrigin == "" {
		deps.CORSAllowedOrigin = "http://localhost:3000"
	}
	if deps.Users == nil {
		deps.Users = &mockUserReader{}
	}
	if deps.Lists == nil {
		deps.Lists = &mockListReader{}
	}
	if deps.Resolver == nil {
		deps.Resolver = &mockResolver{}
	}
	if deps.Syncer == nil {
		deps.Syncer = &mockScheduler{}
	}
	return NewRouter(deps)
}

// TestRouter_Health は/healthが200を返すことを検証する。
func TestRouter_Health(t *testing.T) {
	router := newRouterForTest(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

// TestRouter_Metrics はPrometheusレジストリ指定時に/metricsが
// 公開されることを検証する。
func TestRouter_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	router := newRouterForTest(t, &RouterDeps{Gatherer: registry})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// TestRouter_CORSHeaders はCORSヘッダーが全ルートに付与されることを検証する。
func TestRouter_CORSHeaders(t *testing.T) {
	router := newRouterForTest(t, &RouterDeps{CORSAllowedOrigin: "https://mirror.example"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://mirror.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

// TestRouter_CORSPreflight はOPTIONSプリフライトが204で応答されることを検証する。
func TestRouter_CORSPreflight(t *testing.T) {
	router := newRouterForTest(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodOptions, "/users/hitoshi", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

// TestRouter_SyncTriggerRateLimit は同期トリガーのレート制限超過で
// 429が返ることを検証する。
func TestRouter_SyncTriggerRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 2))
	t.Cleanup(limiter.Stop)

	remote := &anilist.User{ID: 100, Name: "hitoshi"}
	router := newRouterForTest(t, &RouterDeps{
		RateLimiter: limiter,
		Resolver:    &mockResolver{user: remote},
		Syncer:      &mockScheduler{accepted: true},
	})

	// バースト上限（2回）までは202
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/users/hitoshi", nil)
		req.RemoteAddr = "203.0.113.1:50000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want 202", i+1, rec.Code)
		}
	}

	// 3回目は429
	req := httptest.NewRequest(http.MethodPost, "/users/hitoshi", nil)
	req.RemoteAddr = "203.0.113.1:50000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header is missing")
	}

	// 別クライアントは制限されない
	req = httptest.NewRequest(http.MethodPost, "/users/hitoshi", nil)
	req.RemoteAddr = "203.0.113.2:50000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("other client: status = %d, want 202", rec.Code)
	}
}

// TestRouter_GetDoesNotConsumeSyncLimit はGETが同期トリガーの
// レート制限を消費しないことを検証する。
func TestRouter_GetDoesNotConsumeSyncLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 1))
	t.Cleanup(limiter.Stop)

	remote := &anilist.User{ID: 100, Name: "hitoshi"}
	router := newRouterForTest(t, &RouterDeps{
		RateLimiter: limiter,
		Resolver:    &mockResolver{user: remote},
		Syncer:      &mockScheduler{accepted: true},
	})

	// GETを繰り返しても同期トリガーの枠は減らない
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/users/hitoshi", nil)
		req.RemoteAddr = "203.0.113.1:50000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
	}

	req := httptest.NewRequest(http.MethodPost, "/users/hitoshi", nil)
	req.RemoteAddr = "203.0.113.1:50000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
