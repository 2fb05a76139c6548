package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/security"
	"github.com/hitoshi/tinlens/internal/tiktok"
)

// maxTitleLength はキャプションから作るタイトルの最大文字数。
const maxTitleLength = 100

// TikTokHandler はダウンローダーAPI経由でTikTok動画を扱う。
type TikTokHandler struct {
	*Stages
	fetcher   tiktok.Fetcher
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewTikTokHandler はTikTokHandlerの新しいインスタンスを生成する。
// fetcherがnilの場合は常にフォールバックする。
func NewTikTokHandler(stages *Stages, fetcher tiktok.Fetcher, sanitizer security.TextSanitizer, logger *slog.Logger) *TikTokHandler {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TikTokHandler{Stages: stages, fetcher: fetcher, sanitizer: sanitizer, logger: logger}
}

// Platform はtiktokを返す。
func (h *TikTokHandler) Platform() model.Platform {
	return model.PlatformTikTok
}

// ExtractContent は投稿情報を取得する。APIが失敗した場合はStrictMode時のみエラーを返す。
func (h *TikTokHandler) ExtractContent(ctx context.Context, url string, pc *model.ProcessingContext) (*model.ExtractedContent, error) {
	post, err := h.fetch(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if pc.StrictMode {
			return nil, model.NewExtractionError(model.PlatformTikTok, err)
		}
		h.logger.Warn("TikTok投稿の取得に失敗しました",
			slog.String("request_id", pc.RequestID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordFallback(string(model.PlatformTikTok), model.StageExtract)
		return fallbackContent(url, model.PlatformTikTok, model.ContentTypeVideo), nil
	}

	extracted := fallbackContent(url, model.PlatformTikTok, model.ContentTypeVideo)
	caption := h.sanitizer.PlainText(post.Desc)
	if title := truncate(firstLine(caption), maxTitleLength); title != "" {
		extracted.Title = title
	}
	extracted.Description = caption
	extracted.Content = caption
	extracted.Creator = creatorOrUnknown(post.Author.Nickname, post.Author.Handle())
	extracted.CreatorHandle = post.Author.Handle()
	extracted.MediaURL = post.DownloadURL()
	extracted.ThumbnailURL = post.CoverURL()
	extracted.PublishedAt = post.CreatedAt()
	extracted.Duration = post.Video.Duration
	extracted.Stats = post.Stats()

	extracted.Hashtags = normalizeHashtags(post.Hashtag)
	if len(extracted.Hashtags) == 0 {
		extracted.Hashtags = extractHashtags(caption)
	}
	return extracted, nil
}

func (h *TikTokHandler) fetch(ctx context.Context, url string) (*tiktok.Post, error) {
	if h.fetcher == nil {
		return nil, fmt.Errorf("tiktok: %w", model.ErrNotConfigured)
	}
	post, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if post == nil || strings.TrimSpace(post.Desc) == "" && post.DownloadURL() == "" {
		return nil, tiktok.ErrUnavailable
	}
	return post, nil
}
