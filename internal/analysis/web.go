package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/scrape"
)

// directMediaExts は文字起こし対象として扱うURLの拡張子。
var directMediaExts = map[string]model.ContentType{
	".mp3":  model.ContentTypeAudio,
	".m4a":  model.ContentTypeAudio,
	".wav":  model.ContentTypeAudio,
	".ogg":  model.ContentTypeAudio,
	".mp4":  model.ContentTypeVideo,
	".mov":  model.ContentTypeVideo,
	".webm": model.ContentTypeVideo,
}

// WebHandler は汎用Webページを扱う。YouTubeも同じ経路でプラットフォーム名のみ変えて処理する。
type WebHandler struct {
	*Stages
	platform model.Platform
	scraper  scrape.Scraper
	logger   *slog.Logger
}

// NewWebHandler は汎用WebページのHandlerを生成する。
func NewWebHandler(stages *Stages, scraper scrape.Scraper, logger *slog.Logger) *WebHandler {
	return newWebHandler(model.PlatformWeb, stages, scraper, logger)
}

// NewYouTubeHandler はYouTube用のHandlerを生成する。
func NewYouTubeHandler(stages *Stages, scraper scrape.Scraper, logger *slog.Logger) *WebHandler {
	return newWebHandler(model.PlatformYouTube, stages, scraper, logger)
}

func newWebHandler(p model.Platform, stages *Stages, scraper scrape.Scraper, logger *slog.Logger) *WebHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebHandler{Stages: stages, platform: p, scraper: scraper, logger: logger}
}

// Platform はwebまたはyoutubeを返す。
func (h *WebHandler) Platform() model.Platform {
	return h.platform
}

// ExtractContent はページを取得して本文とメタ情報を抽出する。
func (h *WebHandler) ExtractContent(ctx context.Context, rawURL string, pc *model.ProcessingContext) (*model.ExtractedContent, error) {
	page, err := h.scrape(ctx, rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if pc.StrictMode {
			return nil, model.NewExtractionError(h.platform, err)
		}
		h.logger.Warn("ページの取得に失敗しました",
			slog.String("request_id", pc.RequestID),
			slog.String("platform", string(h.platform)),
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordFallback(string(h.platform), model.StageExtract)
		return fallbackContent(rawURL, h.platform, model.ContentTypeArticle), nil
	}

	extracted := fallbackContent(rawURL, h.platform, model.ContentTypeArticle)
	if page.Title != "" {
		extracted.Title = page.Title
	}
	extracted.Description = page.Description
	extracted.Content = page.Content
	extracted.Creator = creatorOrUnknown(page.Author, page.Metadata.SiteName)
	extracted.ThumbnailURL = page.Metadata.ImageURL
	extracted.PublishedAt = page.Metadata.PublishedTime
	extracted.Hashtags = normalizeHashtags(page.Metadata.Keywords)

	if mediaURL, contentType := mediaFor(rawURL, page); mediaURL != "" {
		extracted.MediaURL = mediaURL
		extracted.Type = contentType
	}
	return extracted, nil
}

func (h *WebHandler) scrape(ctx context.Context, rawURL string) (*scrape.Result, error) {
	if h.scraper == nil {
		return nil, fmt.Errorf("scrape: %w", model.ErrNotConfigured)
	}
	return h.scraper.Scrape(ctx, rawURL)
}

// mediaFor は文字起こし対象のメディアURLを返す。
// フィードのエンクロージャー、または拡張子で音声・動画と分かるURLのみを対象とする。
func mediaFor(rawURL string, page *scrape.Result) (string, model.ContentType) {
	if page.IsFeed && page.MediaURL != "" {
		if t, ok := directMediaExts[mediaExt(page.MediaURL)]; ok {
			return page.MediaURL, t
		}
		return page.MediaURL, model.ContentTypeAudio
	}
	for _, candidate := range []string{page.MediaURL, rawURL} {
		if t, ok := directMediaExts[mediaExt(candidate)]; ok {
			return candidate, t
		}
	}
	return "", ""
}

func mediaExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
