// Package scrape は汎用Webページの取得と本文抽出を提供する。
// 記事本文はreadabilityで抽出してMarkdownに変換し、メタデータはheadのmetaタグから取得する。
// ページ自体がRSS/Atomフィードの場合は最新エピソードを本文として扱う。
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/hitoshi/tinlens/internal/security"
)

// ErrNotHTML はHTMLでもフィードでもないレスポンスの場合のエラー。
var ErrNotHTML = errors.New("response is neither html nor a feed")

// userAgent はページ取得時のUser-Agent。
const userAgent = "Mozilla/5.0 (compatible; TinLens/1.0; +https://tinlens.app)"

// Metadata はページのメタ情報。
type Metadata struct {
	PublishedTime *time.Time
	ModifiedTime  *time.Time
	Keywords      []string
	Language      string
	SiteName      string
	ImageURL      string
}

// Result はScrapeの結果。
type Result struct {
	URL         string
	Title       string
	Content     string
	Author      string
	Description string
	// MediaURL はog:videoまたはフィードのエンクロージャーから得た音声・動画のURL。
	MediaURL string
	// IsFeed はページがRSS/Atomフィードだった場合にtrue。
	IsFeed   bool
	Metadata Metadata
}

// Scraper は汎用スクレイピングのインターフェース。
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*Result, error)
}

// Service はSSRF防止付きクライアントでページを取得するScraper。
type Service struct {
	client    *http.Client
	guard     security.Guard
	sanitizer security.TextSanitizer
	maxSize   int64
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// clientがnilの場合はguardから生成したSSRF防止付きクライアントを使用する。
func NewService(client *http.Client, guard security.Guard, sanitizer security.TextSanitizer, maxSize int64, logger *slog.Logger) *Service {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, guard: guard, sanitizer: sanitizer, maxSize: maxSize, logger: logger}
}

// getHTTPClient はHTTPクライアントを取得する。
// SSRFGuardが設定されている場合はSSRF防止付きクライアントを返す。
func (s *Service) getHTTPClient() *http.Client {
	if s.client != nil {
		return s.client
	}
	if s.guard != nil {
		return s.guard.NewSafeClient(15 * time.Second)
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// Scrape はページを取得し、本文とメタデータを抽出する。
func (s *Service) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	if s.guard != nil {
		if err := s.guard.ValidateURL(pageURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("ページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ページがステータス %d を返しました", resp.StatusCode)
	}

	body, err := security.ReadLimited(resp.Body, s.maxSize)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if IsDirectFeed(contentType, body) {
		result, err := parseFeed(body, s.sanitizer)
		if err != nil {
			return nil, err
		}
		result.URL = pageURL
		s.logger.Debug("フィードとして解析しました",
			slog.String("url", pageURL),
			slog.String("media_url", result.MediaURL),
		)
		return result, nil
	}

	if mediaType, _, _ := mime.ParseMediaType(contentType); contentType != "" && !strings.Contains(strings.ToLower(mediaType), "html") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	return s.extractHTML(body, pageURL), nil
}

// extractHTML はHTMLから本文とメタデータを抽出する。
func (s *Service) extractHTML(body []byte, pageURL string) *Result {
	meta := parseMeta(body)

	title, content := extractArticle(body, pageURL)
	if title == "" {
		title = meta.title
	}
	if content == "" {
		content = s.sanitizer.PlainText(meta.description)
	}

	return &Result{
		URL:         pageURL,
		Title:       strings.TrimSpace(title),
		Content:     content,
		Author:      meta.author,
		Description: s.sanitizer.PlainText(meta.description),
		MediaURL:    meta.videoURL,
		Metadata: Metadata{
			PublishedTime: meta.published,
			ModifiedTime:  meta.modified,
			Keywords:      meta.keywords,
			Language:      meta.language,
			SiteName:      meta.siteName,
			ImageURL:      meta.imageURL,
		},
	}
}

// extractArticle はreadabilityで本文を抽出し、LLMに渡しやすいMarkdownに変換する。
// Markdown変換に失敗した場合はプレーンテキストを返す。
func extractArticle(body []byte, pageURL string) (title, content string) {
	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil || article.Node == nil {
		return "", ""
	}

	if md, err := htmltomarkdown.ConvertNode(article.Node); err == nil {
		if text := normalizeContent(string(md)); text != "" {
			return article.Title(), text
		}
	}

	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return article.Title(), ""
	}
	return article.Title(), normalizeContent(buf.String())
}

// normalizeContent は行頭末の空白を除き、連続する空行を1行にまとめる。
func normalizeContent(content string) string {
	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank {
				cleaned = append(cleaned, "")
				blank = true
			}
			continue
		}
		blank = false
		cleaned = append(cleaned, trimmed)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
