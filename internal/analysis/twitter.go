package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/platform"
	"github.com/hitoshi/tinlens/internal/scrape"
	"github.com/hitoshi/tinlens/internal/security"
	"github.com/hitoshi/tinlens/internal/twitter"
)

// maxScrapedTweetText はスクレイピングで代替取得した本文の最大文字数。
const maxScrapedTweetText = 1000

// TwitterHandler はTwitter/Xのポストを扱う。
// シンジケーションAPI、汎用スクレイピング、最小限のスタブの順に試す。
type TwitterHandler struct {
	*Stages
	fetcher   twitter.Fetcher
	scraper   scrape.Scraper
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewTwitterHandler はTwitterHandlerの新しいインスタンスを生成する。
func NewTwitterHandler(stages *Stages, fetcher twitter.Fetcher, scraper scrape.Scraper, sanitizer security.TextSanitizer, logger *slog.Logger) *TwitterHandler {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TwitterHandler{Stages: stages, fetcher: fetcher, scraper: scraper, sanitizer: sanitizer, logger: logger}
}

// Platform はtwitterを返す。
func (h *TwitterHandler) Platform() model.Platform {
	return model.PlatformTwitter
}

// ExtractContent はポストを取得する。すべての取得方法が失敗した場合、
// StrictMode時はExtractionErrorを返し、それ以外はtext型のスタブを返す。
func (h *TwitterHandler) ExtractContent(ctx context.Context, url string, pc *model.ProcessingContext) (*model.ExtractedContent, error) {
	tweet, err := h.fetchTweet(ctx, url)
	if err == nil {
		return h.fromTweet(url, tweet), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	h.logger.Warn("ポストの取得に失敗したためスクレイピングを試します",
		slog.String("request_id", pc.RequestID),
		slog.String("url", url),
		slog.String("error", err.Error()),
	)

	extracted, scrapeErr := h.scrapeTweet(ctx, url)
	if scrapeErr == nil {
		h.metrics.RecordFallback(string(model.PlatformTwitter), model.StageExtract)
		return extracted, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if pc.StrictMode {
		return nil, model.NewExtractionError(model.PlatformTwitter, errors.Join(err, scrapeErr))
	}
	h.logger.Warn("スクレイピングにも失敗したためスタブを返します",
		slog.String("request_id", pc.RequestID),
		slog.String("url", url),
		slog.String("error", scrapeErr.Error()),
	)
	h.metrics.RecordFallback(string(model.PlatformTwitter), model.StageExtract)
	return fallbackContent(url, model.PlatformTwitter, model.ContentTypeText), nil
}

func (h *TwitterHandler) fetchTweet(ctx context.Context, url string) (*twitter.Tweet, error) {
	if h.fetcher == nil {
		return nil, fmt.Errorf("twitter: %w", model.ErrNotConfigured)
	}
	id := platform.TweetID(url)
	if id == "" {
		return nil, fmt.Errorf("tweet id not found in %q", url)
	}
	return h.fetcher.FetchTweet(ctx, id)
}

func (h *TwitterHandler) fromTweet(url string, tweet *twitter.Tweet) *model.ExtractedContent {
	extracted := fallbackContent(url, model.PlatformTwitter, model.ContentTypeText)
	text := h.sanitizer.PlainText(tweet.Text)

	if title := truncate(firstLine(text), maxTitleLength); title != "" {
		extracted.Title = title
	}
	extracted.Description = text
	extracted.Content = text
	extracted.Creator = creatorOrUnknown(tweet.User.Name, tweet.User.ScreenName)
	extracted.CreatorHandle = tweet.User.ScreenName
	extracted.PublishedAt = tweet.CreatedAt()
	extracted.ThumbnailURL = tweet.ThumbnailURL()
	extracted.Stats = model.Stats{
		Likes:    model.PositiveCount(tweet.FavoriteCount),
		Comments: model.PositiveCount(tweet.ConversationCount),
	}

	extracted.Hashtags = normalizeHashtags(tweet.Hashtags())
	if len(extracted.Hashtags) == 0 {
		extracted.Hashtags = extractHashtags(text)
	}

	if videoURL, seconds := tweet.Video(); videoURL != "" {
		extracted.MediaURL = videoURL
		extracted.Duration = seconds
		extracted.Type = model.ContentTypeVideo
	} else if extracted.ThumbnailURL != "" {
		extracted.Type = model.ContentTypeImage
	}
	return extracted
}

// scrapeTweet は汎用スクレイパーでページを取得し、本文を切り詰めて返す。
func (h *TwitterHandler) scrapeTweet(ctx context.Context, url string) (*model.ExtractedContent, error) {
	if h.scraper == nil {
		return nil, fmt.Errorf("scrape: %w", model.ErrNotConfigured)
	}
	page, err := h.scraper.Scrape(ctx, url)
	if err != nil {
		return nil, err
	}

	text := truncate(firstNonEmptyString(page.Content, page.Description), maxScrapedTweetText)
	if text == "" {
		return nil, errors.New("scraped page has no text")
	}

	extracted := fallbackContent(url, model.PlatformTwitter, model.ContentTypeText)
	if page.Title != "" {
		extracted.Title = page.Title
	}
	extracted.Description = text
	extracted.Content = text
	extracted.Creator = creatorOrUnknown(page.Author)
	extracted.ThumbnailURL = page.Metadata.ImageURL
	extracted.PublishedAt = page.Metadata.PublishedTime
	extracted.Hashtags = extractHashtags(text)
	return extracted, nil
}
