package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tinlens/internal/analysis"
	"github.com/hitoshi/tinlens/internal/metrics"
	"github.com/hitoshi/tinlens/internal/middleware"
	"github.com/hitoshi/tinlens/internal/model"
)

func newTestRouter(t *testing.T, svc AnalyzeServiceInterface, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordVerdict("web", "verified")

	return NewRouter(&RouterDeps{
		CORSAllowedOrigin: "https://app.example.com",
		RateLimiter:       limiter,
		Logger:            discardLogger(),
		AnalyzeService:    svc,
		UpstreamCheckers: []UpstreamChecker{
			{Name: "exa", Configured: true, Probe: func(context.Context) error { return nil }},
		},
		MetricsHandler: metrics.Handler(reg),
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, &mockAnalyzeService{}, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"POST /api/analyze", http.MethodPost, "/api/analyze", `{"text":"claim"}`, http.StatusOK},
		{"GET /health", http.MethodGet, "/health", "", http.StatusOK},
		{"GET /health/upstreams", http.MethodGet, "/health/upstreams", "", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"GET /api/analyze は許可しない", http.MethodGet, "/api/analyze", "", http.StatusMethodNotAllowed},
		{"未定義のパス", http.MethodGet, "/api/feeds", "", http.StatusNotFound},
		{"プリフライト", http.MethodOptions, "/api/analyze", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MiddlewareChain(t *testing.T) {
	svc := &mockAnalyzeService{
		analyzeFn: func(_ context.Context, req analysis.Request) (*model.BaseAnalysisResult, error) {
			if req.RequestID != "client-supplied-id" {
				t.Errorf("RequestID = %q, want client-supplied-id", req.RequestID)
			}
			return &model.BaseAnalysisResult{}, nil
		},
	}
	router := newTestRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"text":"claim"}`))
	req.Header.Set(middleware.RequestIDHeader, "client-supplied-id")
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(middleware.RequestIDHeader); got != "client-supplied-id" {
		t.Errorf("%s = %q", middleware.RequestIDHeader, got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["request_id"] != "client-supplied-id" {
		t.Errorf("request_id = %v", body["request_id"])
	}
}

func TestRouter_PanicRecovered(t *testing.T) {
	svc := &mockAnalyzeService{
		analyzeFn: func(context.Context, analysis.Request) (*model.BaseAnalysisResult, error) {
			panic("unexpected")
		},
	}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"text":"claim"}`)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRouter_RateLimitAppliesToAnalyzeOnly(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            1.0 / 60,
		Burst:           1,
		CleanupInterval: time.Minute,
	}, discardLogger())
	defer limiter.Stop()
	router := newTestRouter(t, &mockAnalyzeService{}, limiter)

	send := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.RemoteAddr = "203.0.113.7:4321"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if got := send(http.MethodPost, "/api/analyze", `{"text":"a"}`); got != http.StatusOK {
		t.Fatalf("first analyze = %d, want 200", got)
	}
	if got := send(http.MethodPost, "/api/analyze", `{"text":"a"}`); got != http.StatusTooManyRequests {
		t.Errorf("second analyze = %d, want 429", got)
	}
	if got := send(http.MethodGet, "/health", ""); got != http.StatusOK {
		t.Errorf("health = %d, want 200 (not rate limited)", got)
	}
}

func TestRouter_MetricsExposed(t *testing.T) {
	router := newTestRouter(t, &mockAnalyzeService{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), "tinlens_fact_check_verdict_total") {
		t.Errorf("metrics body missing verdict counter:\n%s", w.Body.String())
	}
}
