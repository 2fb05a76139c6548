// Package tiktok はサードパーティのTikTokダウンローダーAPIのクライアントを提供する。
package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/upstream"
)

// ErrUnavailable はAPIが成功以外のステータスを返した場合のエラー。
var ErrUnavailable = errors.New("tiktok downloader returned no result")

// Count は数値または数値文字列で返される統計値。
type Count float64

// UnmarshalJSON は数値・数値文字列・nullを受け付ける。解釈できない値は0とする。
func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*c = 0
		return nil
	}
	*c = Count(v)
	return nil
}

// Author は投稿者情報。
type Author struct {
	Nickname string `json:"nickname"`
	Username string `json:"username"`
	UniqueID string `json:"uniqueId"`
}

// Handle は@を除いたユーザー名を返す。
func (a Author) Handle() string {
	h := a.Username
	if h == "" {
		h = a.UniqueID
	}
	return strings.TrimPrefix(h, "@")
}

// Statistics はエンゲージメント数値。
type Statistics struct {
	PlayCount    Count `json:"playCount"`
	DiggCount    Count `json:"diggCount"`
	CommentCount Count `json:"commentCount"`
	ShareCount   Count `json:"shareCount"`
	CollectCount Count `json:"collectCount"`
}

// VideoInfo はプラットフォームネイティブの動画情報。
type VideoInfo struct {
	PlayAddr     []string `json:"playAddr"`
	DownloadAddr []string `json:"downloadAddr"`
	Cover        []string `json:"cover"`
	Duration     float64  `json:"duration"`
}

// Post はダウンローダーAPIが返す投稿。
type Post struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	CreateTime int64      `json:"createTime"`
	Desc       string     `json:"desc"`
	Author     Author     `json:"author"`
	Statistics Statistics `json:"statistics"`
	Hashtag    []string   `json:"hashtag"`
	VideoHD    string     `json:"videoHD"`
	VideoSD    string     `json:"videoSD"`
	Direct     string     `json:"direct"`
	Video      VideoInfo  `json:"video"`
	Cover      string     `json:"cover"`
}

// DownloadURL はHD、SD、直接リンク、プラットフォームネイティブの順に最初に見つかったURLを返す。
func (p *Post) DownloadURL() string {
	for _, candidate := range []string{p.VideoHD, p.VideoSD, p.Direct} {
		if candidate != "" {
			return candidate
		}
	}
	for _, list := range [][]string{p.Video.DownloadAddr, p.Video.PlayAddr} {
		for _, candidate := range list {
			if candidate != "" {
				return candidate
			}
		}
	}
	return ""
}

// CoverURL はサムネイルURLを返す。
func (p *Post) CoverURL() string {
	if p.Cover != "" {
		return p.Cover
	}
	for _, c := range p.Video.Cover {
		if c != "" {
			return c
		}
	}
	return ""
}

// CreatedAt は投稿日時を返す。不明な場合はnil。
func (p *Post) CreatedAt() *time.Time {
	if p.CreateTime <= 0 {
		return nil
	}
	t := time.Unix(p.CreateTime, 0).UTC()
	return &t
}

// Stats はエンゲージメント数値をドメインモデルに変換する。
func (p *Post) Stats() model.Stats {
	return model.Stats{
		Plays:    model.PositiveCount(float64(p.Statistics.PlayCount)),
		Views:    model.PositiveCount(float64(p.Statistics.PlayCount)),
		Likes:    model.PositiveCount(float64(p.Statistics.DiggCount)),
		Comments: model.PositiveCount(float64(p.Statistics.CommentCount)),
		Shares:   model.PositiveCount(float64(p.Statistics.ShareCount)),
		Saves:    model.PositiveCount(float64(p.Statistics.CollectCount)),
	}
}

type downloadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  *Post  `json:"result"`
}

// Fetcher はTikTok投稿取得のインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, videoURL string) (*Post, error)
}

// Client はダウンローダーAPIのクライアント。
type Client struct {
	http   *upstream.Client
	apiURL string
	apiKey string
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(apiURL, apiKey string, httpClient *upstream.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   httpClient,
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		logger: logger,
	}
}

// Configured はAPIのURLが設定されているかを返す。
func (c *Client) Configured() bool {
	return c != nil && c.apiURL != ""
}

// Fetch は動画URLの投稿情報を取得する。
// status が success 以外、または結果が空の場合はErrUnavailableを返す。
func (c *Client) Fetch(ctx context.Context, videoURL string) (*Post, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("tiktok: %w", model.ErrNotConfigured)
	}

	endpoint := c.apiURL + "/api/download?url=" + url.QueryEscape(videoURL)
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var out downloadResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("tiktok: decode response: %w", err)
	}
	if out.Status != "success" || out.Result == nil {
		c.logger.Warn("TikTokダウンローダーが結果を返しませんでした",
			slog.String("status", out.Status),
			slog.String("message", out.Message),
		)
		if out.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, out.Message)
		}
		return nil, ErrUnavailable
	}
	return out.Result, nil
}
