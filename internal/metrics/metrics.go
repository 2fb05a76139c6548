// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はパイプラインのメトリクス収集インターフェース。
// オーケストレーターや上流クライアントから利用する。
type Recorder interface {
	RecordStage(platform, stage, outcome string, duration time.Duration)
	RecordFallback(platform, stage string)
	RecordVerdict(platform, verdict string)
	RecordUpstream(service string, statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	stageLatency *prometheus.HistogramVec
	fallbacks    *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	upstream     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tinlens_stage_duration_seconds",
			Help:    "パイプラインステージの処理時間（秒）",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"platform", "stage", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinlens_stage_fallback_total",
			Help: "フォールバック結果で代替したステージの合計数",
		}, []string{"platform", "stage"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinlens_fact_check_verdict_total",
			Help: "判定結果別のファクトチェック数",
		}, []string{"platform", "verdict"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinlens_upstream_responses_total",
			Help: "上流サービス別・HTTPステータスコード別のレスポンス数",
		}, []string{"service", "status_code"}),
	}

	reg.MustRegister(
		c.stageLatency,
		c.fallbacks,
		c.verdicts,
		c.upstream,
	)

	return c
}

// RecordStage はステージの処理時間と結果を記録する。
func (c *Collector) RecordStage(platform, stage, outcome string, duration time.Duration) {
	c.stageLatency.WithLabelValues(platform, stage, outcome).Observe(duration.Seconds())
}

// RecordFallback はフォールバック発生を記録する。
func (c *Collector) RecordFallback(platform, stage string) {
	c.fallbacks.WithLabelValues(platform, stage).Inc()
}

// RecordVerdict はファクトチェックの判定結果を記録する。
func (c *Collector) RecordVerdict(platform, verdict string) {
	c.verdicts.WithLabelValues(platform, verdict).Inc()
}

// RecordUpstream は上流サービスのHTTPステータスコードを記録する。
// 通信エラーでレスポンスが無い場合は0を渡す。
func (c *Collector) RecordUpstream(service string, statusCode int) {
	code := strconv.Itoa(statusCode)
	if statusCode == 0 {
		code = "error"
	}
	c.upstream.WithLabelValues(service, code).Inc()
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordStage(string, string, string, time.Duration) {}
func (Nop) RecordFallback(string, string)                     {}
func (Nop) RecordVerdict(string, string)                      {}
func (Nop) RecordUpstream(string, int)                        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
