package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultProbeTimeout は上流1件あたりの疎通確認のタイムアウト。
const defaultProbeTimeout = 5 * time.Second

// ProbeFunc は上流サービスへの疎通を確認する。到達できない場合はエラーを返す。
type ProbeFunc func(ctx context.Context) error

// UpstreamChecker は1つの上流サービスの診断設定。
type UpstreamChecker struct {
	Name       string
	Configured bool
	// Probe がnilの場合は疎通確認を行わない。
	Probe ProbeFunc
}

// HealthHandler はヘルスチェックと上流診断のHTTPハンドラー。
type HealthHandler struct {
	checkers []UpstreamChecker
	timeout  time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checkers []UpstreamChecker, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthHandler{checkers: checkers, timeout: timeout}
}

// upstreamStatus は上流1件の診断結果。
type upstreamStatus struct {
	Name       string  `json:"name"`
	Configured bool    `json:"configured"`
	Reachable  *bool   `json:"reachable,omitempty"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// upstreamsResponse は上流診断のレスポンス。
type upstreamsResponse struct {
	Status    string           `json:"status"`
	Upstreams []upstreamStatus `json:"upstreams"`
}

// Health はプロセスの生存を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Upstreams は各上流サービスの設定状況と疎通を並行に確認する。
// 設定済みの上流が1件でも到達できない場合は status を degraded とする。
// GET /health/upstreams
func (h *HealthHandler) Upstreams(w http.ResponseWriter, r *http.Request) {
	statuses := h.check(r.Context())

	resp := upstreamsResponse{Status: "ok", Upstreams: statuses}
	for _, s := range statuses {
		if s.Configured && s.Reachable != nil && !*s.Reachable {
			resp.Status = "degraded"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// check は全上流の診断を並行に実行し、登録順で結果を返す。
func (h *HealthHandler) check(ctx context.Context) []upstreamStatus {
	statuses := make([]upstreamStatus, len(h.checkers))
	g, ctx := errgroup.WithContext(ctx)

	for i, c := range h.checkers {
		statuses[i] = upstreamStatus{Name: c.Name, Configured: c.Configured}
		if !c.Configured || c.Probe == nil {
			continue
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.Probe(probeCtx)
			reachable := err == nil
			statuses[i].Reachable = &reachable
			statuses[i].LatencyMS = float64(time.Since(start).Microseconds()) / 1000
			if err != nil {
				statuses[i].Error = err.Error()
			}
			// 1件の失敗で他の確認を打ち切らない
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// NewHTTPProbe はbaseURLへHEADリクエストを送るProbeFuncを返す。
// 5xx以外のレスポンスが返れば到達可能とみなす。
func NewHTTPProbe(client *http.Client, baseURL string) ProbeFunc {
	if client == nil {
		client = &http.Client{Timeout: defaultProbeTimeout}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	}
}
