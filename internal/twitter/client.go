// Package twitter はTwitter/Xのシンジケーション（埋め込み用）エンドポイントから
// ポスト情報を取得するクライアントを提供する。
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/tinlens/internal/upstream"
)

// ErrNotFound はポストが存在しない・非公開・削除済みの場合のエラー。
var ErrNotFound = errors.New("tweet not found")

// User は投稿者情報。
type User struct {
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
	Verified   bool   `json:"verified"`
	BlueCheck  bool   `json:"is_blue_verified"`
}

// Hashtag はエンティティ内のハッシュタグ。
type Hashtag struct {
	Text string `json:"text"`
}

// Entities はポスト本文のエンティティ。
type Entities struct {
	Hashtags []Hashtag `json:"hashtags"`
}

// Variant は動画のエンコード別URL。
type Variant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// VideoInfo は動画の詳細。
type VideoInfo struct {
	DurationMillis int64     `json:"duration_millis"`
	Variants       []Variant `json:"variants"`
}

// MediaDetail は添付メディア。
type MediaDetail struct {
	Type          string    `json:"type"`
	MediaURLHTTPS string    `json:"media_url_https"`
	VideoInfo     VideoInfo `json:"video_info"`
}

// Tweet はシンジケーションAPIが返すポスト。
type Tweet struct {
	TypeName          string        `json:"__typename"`
	IDStr             string        `json:"id_str"`
	Text              string        `json:"text"`
	CreatedAtRaw      string        `json:"created_at"`
	FavoriteCount     float64       `json:"favorite_count"`
	ConversationCount float64       `json:"conversation_count"`
	User              User          `json:"user"`
	Entities          Entities      `json:"entities"`
	MediaDetails      []MediaDetail `json:"mediaDetails"`
}

// CreatedAt は投稿日時を返す。解釈できない場合はnil。
func (t *Tweet) CreatedAt() *time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RubyDate} {
		if ts, err := time.Parse(layout, t.CreatedAtRaw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// Hashtags は#を除いたハッシュタグを返す。
func (t *Tweet) Hashtags() []string {
	tags := make([]string, 0, len(t.Entities.Hashtags))
	for _, h := range t.Entities.Hashtags {
		if tag := strings.TrimPrefix(strings.TrimSpace(h.Text), "#"); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Video は最初の動画（GIFアニメを含む）の最高ビットレートのmp4 URLと長さ（秒）を返す。
func (t *Tweet) Video() (videoURL string, seconds float64) {
	for _, m := range t.MediaDetails {
		if m.Type != "video" && m.Type != "animated_gif" {
			continue
		}
		best := -1
		for _, v := range m.VideoInfo.Variants {
			if v.ContentType != "video/mp4" || v.URL == "" {
				continue
			}
			if v.Bitrate > best {
				best = v.Bitrate
				videoURL = v.URL
			}
		}
		if videoURL != "" {
			return videoURL, float64(m.VideoInfo.DurationMillis) / 1000
		}
	}
	return "", 0
}

// ThumbnailURL は最初のメディアの画像URLを返す。
func (t *Tweet) ThumbnailURL() string {
	for _, m := range t.MediaDetails {
		if m.MediaURLHTTPS != "" {
			return m.MediaURLHTTPS
		}
	}
	return ""
}

// Fetcher はポスト取得のインターフェース。
type Fetcher interface {
	FetchTweet(ctx context.Context, id string) (*Tweet, error)
}

// Client はシンジケーションAPIのクライアント。
type Client struct {
	http   *upstream.Client
	apiURL string
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(apiURL string, httpClient *upstream.Client, logger *slog.Logger) *Client {
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		apiURL = "https://cdn.syndication.twimg.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, apiURL: apiURL, logger: logger}
}

// FetchTweet はポストIDからポスト情報を取得する。
func (c *Client) FetchTweet(ctx context.Context, id string) (*Tweet, error) {
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return nil, fmt.Errorf("twitter: invalid tweet id %q", id)
	}

	q := url.Values{}
	q.Set("id", id)
	q.Set("lang", "en")
	q.Set("token", SyndicationToken(id))
	endpoint := c.apiURL + "/tweet-result?" + q.Encode()

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TinLens/1.0)")
		return req, nil
	})
	if err != nil {
		if upstream.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	var tweet Tweet
	if err := json.Unmarshal(resp.Body, &tweet); err != nil {
		return nil, fmt.Errorf("twitter: decode response: %w", err)
	}
	if tweet.TypeName == "TweetTombstone" || (tweet.IDStr == "" && tweet.Text == "") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	c.logger.Debug("ポストを取得しました",
		slog.String("tweet_id", id),
		slog.Int("media", len(tweet.MediaDetails)),
	)
	return &tweet, nil
}

// SyndicationToken は埋め込みウィジェットと同じ方法でトークンを算出する。
// (id / 1e15) * π を36進数で表し、0と小数点を取り除いた文字列。
func SyndicationToken(id string) string {
	n, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return ""
	}
	s := formatBase36(n / 1e15 * math.Pi)
	return strings.NewReplacer("0", "", ".", "").Replace(s)
}

// formatBase36 は非負の浮動小数点数を36進数の文字列に変換する。
func formatBase36(f float64) string {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	intPart, frac := math.Modf(f)
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(intPart), 36))
	if frac == 0 {
		return b.String()
	}
	b.WriteByte('.')
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	for i := 0; i < 11 && frac > 0; i++ {
		frac *= 36
		d, rest := math.Modf(frac)
		b.WriteByte(digits[int(d)])
		frac = rest
	}
	return b.String()
}
