package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/hitoshi/tinlens/internal/security"
)

// StatusClass はHTTPステータスコードに基づく上流レスポンスの分類。
type StatusClass int

const (
	// StatusOK は成功（2xx）。
	StatusOK StatusClass = iota
	// StatusRetryable は再試行で回復しうるステータス（408/429/5xx）。
	StatusRetryable
	// StatusFatal は再試行しても結果が変わらないステータス（その他の4xx）。
	StatusFatal
	// StatusUnknown は未知のステータスコード（1xx/3xx）。
	StatusUnknown
)

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 2 * time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return StatusRetryable
	case statusCode >= 500:
		return StatusRetryable
	case statusCode >= 400:
		return StatusFatal
	default:
		return StatusUnknown
	}
}

// shouldRetry は通信エラーと再試行可能なステータスの場合にtrueを返す。
// キャンセル・サイズ超過・リクエスト生成失敗は再試行しない。
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		var be *buildError
		if errors.As(err, &be) {
			return false
		}
		return !errors.Is(err, context.Canceled) && !errors.Is(err, security.ErrResponseTooLarge)
	}
	if resp == nil {
		return true
	}
	return ClassifyHTTPStatus(resp.StatusCode) == StatusRetryable
}

// newExecutor はリトライポリシーとサーキットブレーカーを組み合わせたfailsafeのExecutorを生成する。
//
//nolint:bodyclose // *http.Response は型パラメータとして使用している
func newExecutor(maxRetries int, baseDelay, maxDelay time.Duration) failsafe.Executor[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		Build()

	return failsafe.With[*http.Response](retry, breaker)
}
