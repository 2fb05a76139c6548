package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/security"
)

// desktopUserAgent はInstagramがログイン画面ではなくメタ情報付きのページを返すUser-Agent。
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// instagramMaxPage はInstagramページの最大サイズ（5MB）。
const instagramMaxPage = 5 * 1024 * 1024

var (
	rawVideoURL    = regexp.MustCompile(`"video_url"\s*:\s*"([^"]+)"`)
	rawOGVideo     = regexp.MustCompile(`<meta[^>]+property=["']og:video(?::secure_url)?["'][^>]+content=["']([^"']+)["']`)
	ogTitleAuthor  = regexp.MustCompile(`^(.+?)\s*\(@([\w.]+)\)`)
	ogTitleOn      = regexp.MustCompile(`^(.+?) on Instagram`)
	ogDescStats    = regexp.MustCompile(`^([\d.,]+[KkMm]?) likes?, ([\d.,]+[KkMm]?) comments? - ([\w.]+) on [^:]+:\s*"?(.*?)"?\s*$`)
	iso8601Seconds = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

// InstagramHandler はInstagramの投稿・リールを扱う。
// 取得に失敗してもエラーにはせず、常に最小限の抽出結果を返す。
type InstagramHandler struct {
	*Stages
	client    *http.Client
	guard     security.Guard
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewInstagramHandler はInstagramHandlerの新しいインスタンスを生成する。
func NewInstagramHandler(stages *Stages, client *http.Client, guard security.Guard, sanitizer security.TextSanitizer, logger *slog.Logger) *InstagramHandler {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InstagramHandler{Stages: stages, client: client, guard: guard, sanitizer: sanitizer, logger: logger}
}

// Platform はinstagramを返す。
func (h *InstagramHandler) Platform() model.Platform {
	return model.PlatformInstagram
}

func (h *InstagramHandler) getHTTPClient() *http.Client {
	if h.client != nil {
		return h.client
	}
	if h.guard != nil {
		return h.guard.NewSafeClient(15 * time.Second)
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// ExtractContent はページのJSON-LD、Open Graph、埋め込みJSONの順にメタ情報を読み取る。
func (h *InstagramHandler) ExtractContent(ctx context.Context, url string, pc *model.ProcessingContext) (*model.ExtractedContent, error) {
	body, err := h.fetch(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		h.logger.Warn("Instagramページの取得に失敗しました",
			slog.String("request_id", pc.RequestID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordFallback(string(model.PlatformInstagram), model.StageExtract)
		return fallbackContent(url, model.PlatformInstagram, model.ContentTypeImage), nil
	}

	extracted := fallbackContent(url, model.PlatformInstagram, model.ContentTypeImage)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		applyJSONLD(doc, extracted)
		h.applyOpenGraph(doc, extracted)
	}
	if extracted.MediaURL == "" {
		extracted.MediaURL = scanRawVideoURL(body)
	}

	extracted.Description = h.sanitizer.PlainText(extracted.Description)
	extracted.Content = extracted.Description
	extracted.Hashtags = extractHashtags(extracted.Description)
	if extracted.MediaURL != "" {
		extracted.Type = model.ContentTypeVideo
	}
	return extracted, nil
}

func (h *InstagramHandler) fetch(ctx context.Context, url string) ([]byte, error) {
	if h.guard != nil {
		if err := h.guard.ValidateURL(url); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := h.getHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram returned status %d", resp.StatusCode)
	}
	return security.ReadLimited(resp.Body, instagramMaxPage)
}

// applyJSONLD はJSON-LDのVideoObjectから値を埋める。@graphや配列の入れ子も辿る。
func applyJSONLD(doc *goquery.Document, extracted *model.ExtractedContent) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		obj := findVideoObject(data)
		if obj == nil {
			return true
		}

		if name := jsonString(obj["name"]); name != "" {
			extracted.Title = name
		}
		extracted.Description = firstNonEmptyString(jsonString(obj["description"]), jsonString(obj["caption"]))
		extracted.MediaURL = jsonString(obj["contentUrl"])
		extracted.ThumbnailURL = jsonString(obj["thumbnailUrl"])
		if t, err := time.Parse(time.RFC3339, jsonString(obj["uploadDate"])); err == nil {
			t = t.UTC()
			extracted.PublishedAt = &t
		}
		if author, ok := obj["author"].(map[string]any); ok {
			extracted.Creator = creatorOrUnknown(jsonString(author["name"]), jsonString(author["alternateName"]))
			extracted.CreatorHandle = strings.TrimPrefix(jsonString(author["alternateName"]), "@")
		}
		extracted.Duration = parseISODuration(jsonString(obj["duration"]))
		applyInteractionStats(obj["interactionStatistic"], &extracted.Stats)
		return false
	})
}

func findVideoObject(v any) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if obj := findVideoObject(item); obj != nil {
				return obj
			}
		}
	case map[string]any:
		if isType(node["@type"], "VideoObject") {
			return node
		}
		if graph, ok := node["@graph"]; ok {
			return findVideoObject(graph)
		}
	}
	return nil
}

func isType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// jsonString は文字列、または文字列配列の最初の要素を返す。
func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s := jsonString(item); s != "" {
				return s
			}
		}
	case map[string]any:
		return jsonString(t["url"])
	}
	return ""
}

func applyInteractionStats(v any, stats *model.Stats) {
	items, ok := v.([]any)
	if !ok {
		if single, isMap := v.(map[string]any); isMap {
			items = []any{single}
		}
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		count := jsonNumber(obj["userInteractionCount"])
		switch interaction := strings.ToLower(interactionName(obj["interactionType"])); {
		case strings.Contains(interaction, "watch"):
			stats.Views = model.PositiveCount(count)
		case strings.Contains(interaction, "like"):
			stats.Likes = model.PositiveCount(count)
		case strings.Contains(interaction, "comment"):
			stats.Comments = model.PositiveCount(count)
		case strings.Contains(interaction, "share"):
			stats.Shares = model.PositiveCount(count)
		}
	}
}

// interactionName は "https://schema.org/LikeAction" または {"@type":"LikeAction"} から種別を返す。
func interactionName(v any) string {
	if obj, ok := v.(map[string]any); ok {
		return jsonString(obj["@type"])
	}
	return jsonString(v)
}

func jsonNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return parseCompactCount(t)
	}
	return 0
}

// parseISODuration はISO 8601の期間（PT1M30S等）を秒に変換する。
func parseISODuration(s string) float64 {
	m := iso8601Seconds.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || s == "" {
		return 0
	}
	var total float64
	for i, unit := range []float64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0
		}
		total += v * unit
	}
	return total
}

// applyOpenGraph はJSON-LDで埋まらなかった項目をOpen Graphから補う。
func (h *InstagramHandler) applyOpenGraph(doc *goquery.Document, extracted *model.ExtractedContent) {
	og := func(property string) string {
		v, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).First().Attr("content")
		return strings.TrimSpace(v)
	}

	title := og("og:title")
	if m := ogTitleAuthor.FindStringSubmatch(title); m != nil {
		if extracted.Creator == model.UnknownCreator {
			extracted.Creator = strings.TrimSpace(m[1])
		}
		if extracted.CreatorHandle == "" {
			extracted.CreatorHandle = m[2]
		}
	} else if m := ogTitleOn.FindStringSubmatch(title); m != nil && extracted.Creator == model.UnknownCreator {
		extracted.Creator = strings.TrimSpace(m[1])
	}
	if title != "" && extracted.Title == fallbackTitle(extracted) {
		extracted.Title = title
	}

	desc := og("og:description")
	if m := ogDescStats.FindStringSubmatch(desc); m != nil {
		if extracted.Stats.Likes == nil {
			extracted.Stats.Likes = model.PositiveCount(parseCompactCount(m[1]))
		}
		if extracted.Stats.Comments == nil {
			extracted.Stats.Comments = model.PositiveCount(parseCompactCount(m[2]))
		}
		if extracted.CreatorHandle == "" {
			extracted.CreatorHandle = m[3]
		}
		if extracted.Creator == model.UnknownCreator {
			extracted.Creator = m[3]
		}
		desc = m[4]
	}
	if extracted.Description == "" {
		extracted.Description = desc
	}
	if extracted.ThumbnailURL == "" {
		extracted.ThumbnailURL = og("og:image")
	}
	if extracted.MediaURL == "" {
		extracted.MediaURL = firstNonEmptyString(og("og:video:secure_url"), og("og:video"))
	}
}

// fallbackTitle はフォールバック時に設定されるホスト名のタイトルを返す。
func fallbackTitle(extracted *model.ExtractedContent) string {
	return fallbackContent(extracted.OriginalURL, extracted.Platform, extracted.Type).Title
}

// scanRawVideoURL は埋め込みJSONまたはmetaタグを正規表現で探す。
// HTMLパーサーが読めない崩れたページのための最後の手段。
func scanRawVideoURL(body []byte) string {
	if m := rawVideoURL.FindSubmatch(body); m != nil {
		return decodeEscapedURL(string(m[1]))
	}
	if m := rawOGVideo.FindSubmatch(body); m != nil {
		return decodeEscapedURL(string(m[1]))
	}
	return ""
}

func decodeEscapedURL(s string) string {
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	return html.UnescapeString(s)
}

// parseCompactCount は "1,234" や "12.5K" のような表記を数値に変換する。
func parseCompactCount(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	multiplier := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		multiplier = 1e3
		s = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1e6
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v * multiplier
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
