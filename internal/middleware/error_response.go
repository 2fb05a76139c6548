package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tinlens/internal/model"
)

// ErrorResponseBody は解析APIのエラーレスポンスの統一フォーマット。
// Categoryは validation（入力の誤り）、analysis（パイプラインの失敗）、
// system（サービス側の障害や制限）のいずれか。
// RequestIDはリクエストIDミドルウェアが付与したIDで、ログとの突き合わせに使う。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// リクエストIDはレスポンスヘッダーに設定済みの値を本文にも含める。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	requestID := w.Header().Get(RequestIDHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: requestID,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
