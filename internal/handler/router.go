package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tinlens/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 解析
	AnalyzeService AnalyzeServiceInterface

	// 診断
	UpstreamCheckers []UpstreamChecker
	MetricsHandler   http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → CORS → SecurityHeaders
//
// 解析エンドポイントにのみクライアント単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	analyzeHandler := NewAnalyzeHandler(deps.AnalyzeService, logger)
	healthHandler := NewHealthHandler(deps.UpstreamCheckers, 0)

	// ヘルスチェック
	r.Get("/health", healthHandler.Health)
	r.Get("/health/upstreams", healthHandler.Upstreams)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 解析
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware()).Post("/analyze", analyzeHandler.Analyze)
		} else {
			r.Post("/analyze", analyzeHandler.Analyze)
		}
	})

	return r
}
