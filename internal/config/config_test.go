package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnvVars はテスト実行環境の設定値が結果に影響しないよう空にする。
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_PORT", "CORS_ALLOWED_ORIGIN", "LOG_LEVEL", "STRICT_MODE",
		"EXA_API_KEY", "EXA_API_URL",
		"OPENAI_API_KEY", "OPENAI_API_URL", "OPENAI_MODEL",
		"TRANSCRIBE_API_KEY", "TRANSCRIBE_API_URL", "TRANSCRIBE_MODEL",
		"TIKTOK_API_URL", "TIKTOK_API_KEY", "TWITTER_API_URL",
		"FETCH_TIMEOUT", "FETCH_MAX_SIZE", "MEDIA_MAX_SIZE",
		"UPSTREAM_TIMEOUT", "UPSTREAM_MAX_RETRIES", "UPSTREAM_RPS",
		"CREDIBILITY_RULES_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.StrictMode {
		t.Error("StrictMode should default to false")
	}
	if cfg.ExaAPIURL != "https://api.exa.ai" {
		t.Errorf("ExaAPIURL = %q, want %q", cfg.ExaAPIURL, "https://api.exa.ai")
	}
	if cfg.OpenAIAPIURL != "https://api.openai.com/v1" {
		t.Errorf("OpenAIAPIURL = %q, want %q", cfg.OpenAIAPIURL, "https://api.openai.com/v1")
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("OpenAIModel = %q, want %q", cfg.OpenAIModel, "gpt-4o-mini")
	}
	if cfg.TranscribeModel != "whisper-1" {
		t.Errorf("TranscribeModel = %q, want %q", cfg.TranscribeModel, "whisper-1")
	}
	if cfg.TwitterAPIURL != "https://cdn.syndication.twimg.com" {
		t.Errorf("TwitterAPIURL = %q", cfg.TwitterAPIURL)
	}

	// Fetch defaults
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v, want %v", cfg.FetchTimeout, 15*time.Second)
	}
	if cfg.FetchMaxSize != 5242880 {
		t.Errorf("FetchMaxSize = %d, want %d", cfg.FetchMaxSize, 5242880)
	}
	if cfg.MediaMaxSize != 26214400 {
		t.Errorf("MediaMaxSize = %d, want %d", cfg.MediaMaxSize, 26214400)
	}

	// Upstream defaults
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Errorf("UpstreamTimeout = %v, want %v", cfg.UpstreamTimeout, 30*time.Second)
	}
	if cfg.UpstreamMaxRetries != 2 {
		t.Errorf("UpstreamMaxRetries = %d, want %d", cfg.UpstreamMaxRetries, 2)
	}
	if cfg.UpstreamRPS != 5 {
		t.Errorf("UpstreamRPS = %v, want %v", cfg.UpstreamRPS, 5)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STRICT_MODE", "true")
	t.Setenv("EXA_API_KEY", "exa-key")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("UPSTREAM_MAX_RETRIES", "4")
	t.Setenv("UPSTREAM_RPS", "0.5")
	t.Setenv("CREDIBILITY_RULES_PATH", "/etc/tinlens/credibility.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "3000")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.StrictMode {
		t.Error("StrictMode should be true")
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("OpenAIModel = %q, want %q", cfg.OpenAIModel, "gpt-4o")
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v, want %v", cfg.FetchTimeout, 5*time.Second)
	}
	if cfg.UpstreamMaxRetries != 4 {
		t.Errorf("UpstreamMaxRetries = %d, want %d", cfg.UpstreamMaxRetries, 4)
	}
	if cfg.UpstreamRPS != 0.5 {
		t.Errorf("UpstreamRPS = %v, want %v", cfg.UpstreamRPS, 0.5)
	}
	if cfg.CredibilityRulesPath != "/etc/tinlens/credibility.yaml" {
		t.Errorf("CredibilityRulesPath = %q", cfg.CredibilityRulesPath)
	}
}

func TestLoad_TranscribeFallsBackToOpenAI(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("OPENAI_API_KEY", "sk-shared")
	t.Setenv("OPENAI_API_URL", "http://llm.internal/v1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.TranscribeAPIKey != "sk-shared" {
		t.Errorf("TranscribeAPIKey = %q, want %q", cfg.TranscribeAPIKey, "sk-shared")
	}
	if cfg.TranscribeAPIURL != "http://llm.internal/v1" {
		t.Errorf("TranscribeAPIURL = %q, want %q", cfg.TranscribeAPIURL, "http://llm.internal/v1")
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("STRICT_MODE", "maybe")
	t.Setenv("FETCH_TIMEOUT", "soon")
	t.Setenv("UPSTREAM_MAX_RETRIES", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.StrictMode {
		t.Error("StrictMode should fall back to false")
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v, want %v", cfg.FetchTimeout, 15*time.Second)
	}
	if cfg.UpstreamMaxRetries != 2 {
		t.Errorf("UpstreamMaxRetries = %d, want %d", cfg.UpstreamMaxRetries, 2)
	}
}

func TestLoad_StrictModeWithoutKeys_ReturnsError(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("STRICT_MODE", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing EXA_API_KEY in strict mode, got nil")
	}
}

func TestLoad_NonPositiveRPS_ReturnsError(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("UPSTREAM_RPS", "-1")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for negative UPSTREAM_RPS, got nil")
	}
}

func TestLoadEnvFiles_OverloadsFromDotEnv(t *testing.T) {
	clearEnvVars(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_MODEL=gpt-from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Chdir(dir)

	loaded, err := LoadEnvFiles()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(loaded) != 1 || loaded[0] != ".env" {
		t.Errorf("loaded = %v, want [.env]", loaded)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.OpenAIModel != "gpt-from-file" {
		t.Errorf("OpenAIModel = %q, want %q", cfg.OpenAIModel, "gpt-from-file")
	}
}

func TestLoadEnvFiles_NoFiles(t *testing.T) {
	t.Chdir(t.TempDir())

	loaded, err := LoadEnvFiles()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded = %v, want empty", loaded)
	}
}
