// Package llm はOpenAI互換のChat Completions APIによるテキスト生成クライアントを提供する。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/upstream"
)

const defaultAPIURL = "https://api.openai.com/v1"

// Request はテキスト生成の入力。
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	// JSON が有効な場合、JSONオブジェクトのみを返すよう要求する。
	JSON bool
}

// Generator はテキスト生成のインターフェース。
// 研究エンジンやニュース判定から利用し、テストではフェイクに差し替える。
type Generator interface {
	GenerateText(ctx context.Context, req Request) (string, error)
}

// Config はクライアントの接続設定。
type Config struct {
	APIKey string
	APIURL string
	Model  string
}

// Client はOpenAI互換APIのクライアント。
type Client struct {
	http   *upstream.Client
	apiKey string
	apiURL string
	model  string
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, httpClient *upstream.Client, logger *slog.Logger) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   httpClient,
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
		logger: logger,
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateText はプロンプトからテキストを生成する。
// APIキーが未設定の場合は通信せずにmodel.ErrNotConfiguredを返す。
func (c *Client) GenerateText(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("openai: %w", model.ErrNotConfigured)
	}
	if c.model == "" {
		return "", errors.New("openai: model is required")
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
		return r, nil
	})
	if err != nil {
		c.logger.Error("LLM APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai: empty completion")
	}
	return text, nil
}
