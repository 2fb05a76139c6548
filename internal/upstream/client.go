// Package upstream は外部APIへのHTTP呼び出しの共通基盤を提供する。
// 再試行・サーキットブレーカー（failsafe-go）、送信レート制限（x/time/rate）、
// レスポンスサイズ制限、ステータス別メトリクス記録を一箇所にまとめる。
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tinlens/internal/metrics"
	"github.com/hitoshi/tinlens/internal/security"
)

// defaultMaxBodySize は上流APIレスポンスの既定の最大サイズ（10MB）。
const defaultMaxBodySize = 10 * 1024 * 1024

// Config は上流クライアントの設定。
type Config struct {
	// Service はログとメトリクスに使用するサービス名（exa, openai 等）。
	Service     string
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	RPS         float64 // 0以下の場合は制限なし
	Burst       int
	MaxBodySize int64
}

// Response はボディを読み込み済みの上流レスポンス。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError は上流が非2xxを返した場合のエラー。
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsStatus はerrが指定ステータスのStatusErrorかどうかを返す。
func IsStatus(err error, statusCode int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == statusCode
}

// buildError はリクエスト生成の失敗を表す。再試行の対象外。
type buildError struct{ err error }

func (e *buildError) Error() string { return "build request: " + e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

// RequestFunc は試行ごとに新しいリクエストを生成する。
// 再試行時にボディを再送できるよう、リクエストは毎回作り直す。
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client は1つの上流サービスに対するHTTPクライアント。
type Client struct {
	service    string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	limiter    *rate.Limiter
	maxBody    int64
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// New は上流クライアントを生成する。
// httpClientがnilの場合はcfg.Timeoutを設定したクライアントを使用する。
func New(cfg Config, httpClient *http.Client, rec metrics.Recorder, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	return &Client{
		service:    cfg.Service,
		httpClient: httpClient,
		executor:   newExecutor(cfg.MaxRetries, cfg.BaseDelay, cfg.MaxDelay),
		limiter:    rate.NewLimiter(limit, burst),
		maxBody:    maxBody,
		metrics:    rec,
		logger:     logger,
	}
}

// Service はサービス名を返す。
func (c *Client) Service() string {
	return c.service
}

// Do はリクエストを送信し、2xxの場合のみレスポンスを返す。
// 通信エラーと408/429/5xxは再試行し、それ以外の非2xxはStatusErrorを返す。
func (c *Client) Do(ctx context.Context, build RequestFunc) (*Response, error) {
	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		return c.attempt(ctx, build)
	})

	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && ClassifyHTTPStatus(resp.StatusCode) != StatusOK {
			return nil, c.statusError(resp)
		}
		return nil, fmt.Errorf("%s: %w", c.service, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: empty response", c.service)
	}
	if ClassifyHTTPStatus(resp.StatusCode) != StatusOK {
		return nil, c.statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.service, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// attempt は1回分の送信を行う。ボディはここで読み切り、再試行時の接続リークを防ぐ。
func (c *Client) attempt(ctx context.Context, build RequestFunc) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := build(ctx)
	if err != nil {
		return nil, &buildError{err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(c.service, 0)
		c.logger.Warn("upstream request failed",
			slog.String("service", c.service),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
		)
		return nil, err
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstream(c.service, resp.StatusCode)

	body, err := security.ReadLimited(resp.Body, c.maxBody)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if ClassifyHTTPStatus(resp.StatusCode) != StatusOK {
		c.logger.Warn("upstream returned non-success status",
			slog.String("service", c.service),
			slog.Int("http_status", resp.StatusCode),
		)
	}
	return resp, nil
}

func (c *Client) statusError(resp *http.Response) error {
	var snippet []byte
	if resp.Body != nil {
		snippet, _ = io.ReadAll(io.LimitReader(resp.Body, 512))
	}
	return &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}
