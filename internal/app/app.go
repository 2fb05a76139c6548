package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/tinlens/internal/analysis"
	"github.com/hitoshi/tinlens/internal/config"
	"github.com/hitoshi/tinlens/internal/handler"
	"github.com/hitoshi/tinlens/internal/logger"
	"github.com/hitoshi/tinlens/internal/metrics"
	"github.com/hitoshi/tinlens/internal/middleware"
	"github.com/hitoshi/tinlens/internal/model"
)

// shutdownTimeout はグレースフルシャットダウンの最大待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envファイルを読み込む
	loaded, err := config.LoadEnvFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	if len(loaded) > 0 {
		slog.Debug("loaded env files", slog.Any("files", loaded))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ログはwに、analyzeの結果は標準出力に書き込む。
func Run(w io.Writer, args []string) error {
	return run(w, os.Stdout, args)
}

func run(w, out io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("strict_mode", cfg.StrictMode),
	)

	switch cmd {
	case CommandAnalyze:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAnalyze(ctx, cfg, out, args[1:])
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	comps, err := buildComponents(cfg, slog.Default())
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), slog.Default())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		AnalyzeService:    comps.service,
		UpstreamCheckers:  comps.checkers,
		MetricsHandler:    metrics.Handler(comps.registry),
	})

	// 解析は複数の上流呼び出しを含むため、書き込みタイムアウトを長めに取る
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runAnalyze は引数のURLまたはテキストを1件解析し、結果をJSONでoutに書き込む。
// 引数がhttp(s)のURL1件であればURLとして、それ以外は空白で連結してテキストとして扱う。
func runAnalyze(ctx context.Context, cfg *config.Config, out io.Writer, args []string) error {
	req, err := analyzeRequestFromArgs(args)
	if err != nil {
		return err
	}

	comps, err := buildComponents(cfg, slog.Default())
	if err != nil {
		return err
	}
	return analyzeTo(ctx, comps.service, req, out)
}

// analyzer は解析サービスのインターフェース。
type analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*model.BaseAnalysisResult, error)
}

func analyzeTo(ctx context.Context, svc analyzer, req analysis.Request, out io.Writer) error {
	result, err := svc.Analyze(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// analyzeRequestFromArgs はanalyzeサブコマンドの引数から解析リクエストを生成する。
func analyzeRequestFromArgs(args []string) (analysis.Request, error) {
	input := strings.TrimSpace(strings.Join(args, " "))
	if input == "" {
		return analysis.Request{}, errors.New("usage: tinlens analyze <url|text>")
	}
	if len(args) == 1 && isHTTPURL(input) {
		return analysis.Request{URL: input}, nil
	}
	return analysis.Request{Text: input}, nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
