package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort        string
	CORSAllowedOrigin string

	// Logging
	LogLevel string

	// Pipeline
	StrictMode bool

	// Exa (web search / contents)
	ExaAPIKey string
	ExaAPIURL string

	// LLM (OpenAI互換)
	OpenAIAPIKey string
	OpenAIAPIURL string
	OpenAIModel  string

	// Speech-to-text
	TranscribeAPIKey string
	TranscribeAPIURL string
	TranscribeModel  string

	// Platform APIs
	TikTokAPIURL  string
	TikTokAPIKey  string
	TwitterAPIURL string

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64
	MediaMaxSize int64

	// Upstream
	UpstreamTimeout    time.Duration
	UpstreamMaxRetries int
	UpstreamRPS        float64

	// Credibility
	CredibilityRulesPath string
}

// envFiles は起動時に読み込むローカル環境ファイル。後のファイルが優先される。
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles はカレントディレクトリの.envファイルを環境変数に読み込む。
// 存在しないファイルは無視し、読み込んだファイル名を返す。
func LoadEnvFiles() ([]string, error) {
	loaded := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", file, err)
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// Load は環境変数からConfigを読み込む。
// StrictMode有効時は、フォールバックで補えない上流サービスの認証情報を必須とする。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.StrictMode = getEnvBool("STRICT_MODE", false)

	cfg.ExaAPIKey = os.Getenv("EXA_API_KEY")
	cfg.ExaAPIURL = getEnvString("EXA_API_URL", "https://api.exa.ai")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIAPIURL = getEnvString("OPENAI_API_URL", "https://api.openai.com/v1")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")

	// 文字起こしはOpenAIの認証情報を流用できる
	cfg.TranscribeAPIKey = getEnvString("TRANSCRIBE_API_KEY", cfg.OpenAIAPIKey)
	cfg.TranscribeAPIURL = getEnvString("TRANSCRIBE_API_URL", cfg.OpenAIAPIURL)
	cfg.TranscribeModel = getEnvString("TRANSCRIBE_MODEL", "whisper-1")

	cfg.TikTokAPIURL = os.Getenv("TIKTOK_API_URL")
	cfg.TikTokAPIKey = os.Getenv("TIKTOK_API_KEY")
	cfg.TwitterAPIURL = getEnvString("TWITTER_API_URL", "https://cdn.syndication.twimg.com")

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5*1024*1024)
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 25*1024*1024)

	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second)
	cfg.UpstreamMaxRetries = getEnvInt("UPSTREAM_MAX_RETRIES", 2)
	cfg.UpstreamRPS = getEnvFloat("UPSTREAM_RPS", 5)

	cfg.CredibilityRulesPath = os.Getenv("CREDIBILITY_RULES_PATH")

	if cfg.StrictMode {
		var missing []string
		if cfg.ExaAPIKey == "" {
			missing = append(missing, "EXA_API_KEY")
		}
		if cfg.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("required environment variables are not set in strict mode: %v", missing)
		}
	}

	if cfg.UpstreamMaxRetries < 0 {
		cfg.UpstreamMaxRetries = 0
	}
	if cfg.UpstreamRPS <= 0 {
		return nil, fmt.Errorf("UPSTREAM_RPS must be positive, got %v", cfg.UpstreamRPS)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
