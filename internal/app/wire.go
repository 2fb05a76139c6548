package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/tinlens/internal/analysis"
	"github.com/hitoshi/tinlens/internal/config"
	"github.com/hitoshi/tinlens/internal/exa"
	"github.com/hitoshi/tinlens/internal/handler"
	"github.com/hitoshi/tinlens/internal/llm"
	"github.com/hitoshi/tinlens/internal/metrics"
	"github.com/hitoshi/tinlens/internal/research"
	"github.com/hitoshi/tinlens/internal/scrape"
	"github.com/hitoshi/tinlens/internal/security"
	"github.com/hitoshi/tinlens/internal/tiktok"
	"github.com/hitoshi/tinlens/internal/transcribe"
	"github.com/hitoshi/tinlens/internal/twitter"
	"github.com/hitoshi/tinlens/internal/upstream"
)

const (
	upstreamBaseDelay = 500 * time.Millisecond
	upstreamMaxDelay  = 5 * time.Second
	probeTimeout      = 5 * time.Second
)

// components はserveとanalyzeで共有する組み立て済みの依存関係。
type components struct {
	service  *analysis.Service
	checkers []handler.UpstreamChecker
	registry *prometheus.Registry
}

// buildComponents は設定から上流クライアント、研究エンジン、ハンドラー、オーケストレーターを組み立てる。
func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewCollector(registry)

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()
	pageClient := ssrfGuard.NewSafeClient(cfg.FetchTimeout)
	mediaClient := ssrfGuard.NewSafeClient(cfg.UpstreamTimeout)

	newUpstream := func(service string) *upstream.Client {
		return upstream.New(upstream.Config{
			Service:    service,
			Timeout:    cfg.UpstreamTimeout,
			MaxRetries: cfg.UpstreamMaxRetries,
			BaseDelay:  upstreamBaseDelay,
			MaxDelay:   upstreamMaxDelay,
			RPS:        cfg.UpstreamRPS,
			Burst:      1,
		}, nil, rec, logger.With(slog.String("upstream", service)))
	}

	// 3. 上流クライアントの初期化
	llmClient := llm.NewClient(llm.Config{
		APIKey: cfg.OpenAIAPIKey,
		APIURL: cfg.OpenAIAPIURL,
		Model:  cfg.OpenAIModel,
	}, newUpstream("openai"), logger)
	exaClient := exa.NewClient(cfg.ExaAPIKey, cfg.ExaAPIURL, newUpstream("exa"), logger)
	sttClient := transcribe.NewClient(cfg.TranscribeAPIKey, cfg.TranscribeAPIURL, cfg.TranscribeModel, newUpstream("transcribe"), logger)
	tiktokClient := tiktok.NewClient(cfg.TikTokAPIURL, cfg.TikTokAPIKey, newUpstream("tiktok"), logger)
	twitterClient := twitter.NewClient(cfg.TwitterAPIURL, newUpstream("twitter"), logger)

	transcriber := transcribe.NewService(
		transcribe.NewHTTPDownloader(mediaClient, ssrfGuard, cfg.MediaMaxSize),
		sttClient, logger,
	)
	scraper := scrape.NewService(pageClient, ssrfGuard, sanitizer, cfg.FetchMaxSize, logger)

	// 4. 検証エンジンの初期化
	rules, err := research.LoadRules(cfg.CredibilityRulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load credibility rules: %w", err)
	}
	classifier := research.NewChainClassifier(research.NewLLMClassifier(llmClient), research.RuleClassifier{}, logger)
	engine := research.NewEngine(exaClient, llmClient, research.NewEvaluator(rules), classifier, logger)
	news := research.NewNewsDetector(llmClient)

	// 5. パイプラインの構築
	stages := analysis.NewStages(transcriber, news, engine, rec, logger)
	orchestrator := analysis.NewOrchestrator([]analysis.Handler{
		analysis.NewInstagramHandler(stages, pageClient, ssrfGuard, sanitizer, logger),
		analysis.NewTikTokHandler(stages, tiktokClient, sanitizer, logger),
		analysis.NewTwitterHandler(stages, twitterClient, scraper, sanitizer, logger),
		analysis.NewYouTubeHandler(stages, scraper, logger),
		analysis.NewWebHandler(stages, scraper, logger),
		analysis.NewTextHandler(stages, sanitizer),
	}, rec, logger)

	service := analysis.NewService(orchestrator, analysis.NewLoggingConsumer(logger), ssrfGuard, cfg.StrictMode, logger)

	return &components{
		service:  service,
		checkers: upstreamCheckers(cfg, exaClient, llmClient, sttClient, tiktokClient),
		registry: registry,
	}, nil
}

// upstreamCheckers は上流診断の対象を組み立てる。
// 診断先は設定値のURLのみでユーザー入力を含まないため、SSRF防止付きクライアントは使わない。
func upstreamCheckers(cfg *config.Config, exaClient *exa.Client, llmClient *llm.Client, sttClient *transcribe.Client, tiktokClient *tiktok.Client) []handler.UpstreamChecker {
	probeClient := &http.Client{Timeout: probeTimeout}
	probe := func(url string) handler.ProbeFunc {
		if url == "" {
			return nil
		}
		return handler.NewHTTPProbe(probeClient, url)
	}

	return []handler.UpstreamChecker{
		{Name: "exa", Configured: exaClient.Configured(), Probe: probe(cfg.ExaAPIURL)},
		{Name: "openai", Configured: llmClient.Configured(), Probe: probe(cfg.OpenAIAPIURL)},
		{Name: "transcribe", Configured: sttClient.Configured(), Probe: probe(cfg.TranscribeAPIURL)},
		{Name: "tiktok", Configured: tiktokClient.Configured(), Probe: probe(cfg.TikTokAPIURL)},
		{Name: "twitter", Configured: cfg.TwitterAPIURL != "", Probe: probe(cfg.TwitterAPIURL)},
	}
}
