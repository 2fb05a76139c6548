// Package handler はTinLens APIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tinlens/internal/analysis"
	"github.com/hitoshi/tinlens/internal/middleware"
	"github.com/hitoshi/tinlens/internal/model"
)

// AnalyzeServiceInterface は解析ハンドラーが必要とするサービスインターフェース。
type AnalyzeServiceInterface interface {
	// Analyze はURLまたはテキストを解析する。
	Analyze(ctx context.Context, req analysis.Request) (*model.BaseAnalysisResult, error)
}

// AnalyzeHandler は解析リクエストのHTTPハンドラー。
type AnalyzeHandler struct {
	service AnalyzeServiceInterface
	logger  *slog.Logger
}

// NewAnalyzeHandler はAnalyzeHandlerを生成する。
func NewAnalyzeHandler(service AnalyzeServiceInterface, logger *slog.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeHandler{service: service, logger: logger}
}

// analyzeRequest は解析リクエストのボディ。urlとtextはどちらか一方のみ指定できる。
type analyzeRequest struct {
	URL    string `json:"url" validate:"omitempty,url,max=2048"`
	Text   string `json:"text" validate:"required_without=URL,excluded_with=URL,max=20000"`
	UserID string `json:"user_id" validate:"omitempty,max=128"`
}

// analyzeResponse は解析結果にリクエストIDを付与したレスポンス。
type analyzeResponse struct {
	RequestID string `json:"request_id"`
	*model.BaseAnalysisResult
}

// Analyze はコンテンツ解析を処理する。
// POST /api/analyze
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[analyzeRequest](r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	result, err := h.service.Analyze(r.Context(), analysis.Request{
		URL:       req.URL,
		Text:      req.Text,
		UserID:    req.UserID,
		RequestID: requestID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(analyzeResponse{RequestID: requestID, BaseAnalysisResult: result})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (h *AnalyzeHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var pe *model.PipelineError
	if errors.As(err, &pe) {
		writeAPIErrorResponse(w, mapPipelineErrorToHTTPStatus(pe), model.NewAnalysisFailedError(pe))
		return
	}

	// クライアントの切断はログのみ
	if errors.Is(err, context.Canceled) {
		h.logger.Info("analysis canceled",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		return
	}

	h.logger.Error("internal server error",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// mapPipelineErrorToHTTPStatus はパイプラインエラーコードからHTTPステータスコードにマッピングする。
func mapPipelineErrorToHTTPStatus(pe *model.PipelineError) int {
	switch pe.Code {
	case model.ErrCodeUnsupportedPlatform:
		return http.StatusUnprocessableEntity
	case model.ErrCodeConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}
