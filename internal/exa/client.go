// Package exa はExaのWeb検索APIとコンテンツ取得APIのクライアントを提供する。
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/upstream"
)

const (
	defaultAPIURL = "https://api.exa.ai"
	// maxTextCharacters は取得する本文の最大文字数。
	maxTextCharacters = 4000
)

// SearchResult は検索結果の1件。Exaが返さない項目はゼロ値またはnil。
type SearchResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	Text          string   `json:"text,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Highlights    []string `json:"highlights,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
}

// ContentResult はコンテンツ取得結果の1件。
type ContentResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title,omitempty"`
	Text          string   `json:"text,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Highlights    []string `json:"highlights,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
}

// Searcher はWeb検索とコンテンツ取得のインターフェース。
type Searcher interface {
	Search(ctx context.Context, query string, numResults int) ([]SearchResult, error)
	GetContents(ctx context.Context, urls []string) ([]ContentResult, error)
}

// Client はExa APIのクライアント。
type Client struct {
	http   *upstream.Client
	apiKey string
	apiURL string
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(apiKey, apiURL string, httpClient *upstream.Client, logger *slog.Logger) *Client {
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, apiKey: apiKey, apiURL: apiURL, logger: logger}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type searchRequest struct {
	Query      string          `json:"query"`
	NumResults int             `json:"numResults"`
	Type       string          `json:"type"`
	Contents   contentsOptions `json:"contents"`
}

type contentsOptions struct {
	Text       textOptions `json:"text"`
	Summary    struct{}    `json:"summary"`
	Highlights struct{}    `json:"highlights"`
}

type textOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type contentsRequest struct {
	URLs []string `json:"urls"`
	contentsOptions
}

// Search はクエリでWeb検索を行い、最大numResults件の結果を返す。
func (c *Client) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("exa: %w", model.ErrNotConfigured)
	}
	if numResults <= 0 {
		numResults = 10
	}

	req := searchRequest{
		Query:      query,
		NumResults: numResults,
		Type:       "auto",
		Contents:   contentsOptions{Text: textOptions{MaxCharacters: maxTextCharacters}},
	}

	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.post(ctx, "/search", req, &out); err != nil {
		c.logger.Error("Exa検索APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return out.Results, nil
}

// GetContents は指定URLの本文・要約・ハイライトを取得する。
// 取得できなかったURLは結果に含まれない。
func (c *Client) GetContents(ctx context.Context, urls []string) ([]ContentResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("exa: %w", model.ErrNotConfigured)
	}
	if len(urls) == 0 {
		return []ContentResult{}, nil
	}

	req := contentsRequest{
		URLs:            urls,
		contentsOptions: contentsOptions{Text: textOptions{MaxCharacters: maxTextCharacters}},
	}

	var out struct {
		Results []ContentResult `json:"results"`
	}
	if err := c.post(ctx, "/contents", req, &out); err != nil {
		c.logger.Error("Exaコンテンツ取得APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("url_count", len(urls)),
		)
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("exa: marshal request: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("x-api-key", c.apiKey)
		return r, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("exa: decode response: %w", err)
	}
	return nil
}
