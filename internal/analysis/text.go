package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/security"
)

// TextHandler はURLを伴わない生テキストを扱う。ネットワークアクセスは行わない。
type TextHandler struct {
	*Stages
	sanitizer security.TextSanitizer
}

// NewTextHandler はTextHandlerの新しいインスタンスを生成する。
func NewTextHandler(stages *Stages, sanitizer security.TextSanitizer) *TextHandler {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &TextHandler{Stages: stages, sanitizer: sanitizer}
}

// Platform はtextを返す。
func (h *TextHandler) Platform() model.Platform {
	return model.PlatformText
}

// ExtractContent はProcessingContext.RawTextをタイトル・説明・本文に展開する。
func (h *TextHandler) ExtractContent(_ context.Context, url string, pc *model.ProcessingContext) (*model.ExtractedContent, error) {
	text := h.sanitizer.PlainText(pc.RawText)
	if strings.TrimSpace(text) == "" {
		h.logger.Debug("テキストが空です", slog.String("request_id", pc.RequestID))
	}

	title := truncate(firstLine(text), maxTitleLength)
	if title == "" {
		title = string(model.PlatformText)
	}
	return &model.ExtractedContent{
		Title:       title,
		Description: text,
		Content:     text,
		Creator:     model.UnknownCreator,
		Hashtags:    extractHashtags(text),
		Type:        model.ContentTypeText,
		OriginalURL: url,
		Platform:    model.PlatformText,
	}, nil
}
