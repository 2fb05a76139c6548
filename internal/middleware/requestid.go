// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名。
const RequestIDHeader = "X-Request-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// requestIDContextKey はリクエストコンテキストにリクエストIDを格納するためのキー。
var requestIDContextKey = contextKey("request_id")

// validRequestID は外部から受け取るリクエストIDとして許可する形式。
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// NewRequestIDMiddleware はリクエストIDをコンテキストとレスポンスヘッダーに設定するミドルウェアを返す。
// 受信ヘッダーの値が安全な形式であれば引き継ぎ、それ以外はUUIDを生成する。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

// WithRequestID はリクエストIDを格納したコンテキストを返す。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext はコンテキストからリクエストIDを取得する。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
